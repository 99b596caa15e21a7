package main

import (
	"context"
	"io"
	"net/http"
	"strings"

	contractx "github.com/warit-san/deskmesh/agent/contract"
	dataagentx "github.com/warit-san/deskmesh/agent/dataagent"
	meshx "github.com/warit-san/deskmesh/agent/mesh"
	routerx "github.com/warit-san/deskmesh/agent/router"
	storex "github.com/warit-san/deskmesh/agent/store"
	supportagentx "github.com/warit-san/deskmesh/agent/supportagent"
	toolserverx "github.com/warit-san/deskmesh/agent/toolserver"
	a2ax "github.com/warit-san/deskmesh/pkg/a2a"
	configx "github.com/warit-san/deskmesh/pkg/config"
	logx "github.com/warit-san/deskmesh/pkg/logger"
	_ "github.com/warit-san/deskmesh/pkg/logger/autoload"
	protocolx "github.com/warit-san/deskmesh/pkg/protocol"
)

type AppConfig struct {
	// Transport selects how agents reach each other: "mesh" keeps every agent
	// in this process, "a2a" sends tasks to the configured HTTP endpoints.
	Transport string `envconfig:"TRANSPORT" split_words:"true" default:"mesh"`

	DataAddr    string `envconfig:"DATA_ADDR" split_words:"true" default:":8001"`
	SupportAddr string `envconfig:"SUPPORT_ADDR" split_words:"true" default:":8002"`
	RouterAddr  string `envconfig:"ROUTER_ADDR" split_words:"true" default:":8003"`

	// PostgresDSN switches the record store to Postgres; empty keeps the
	// in-memory store seeded with demo records.
	PostgresDSN string `envconfig:"POSTGRES_DSN" split_words:"true"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("")
	log := logx.For("main")

	st := buildStore(appCfg)

	// The tool server and its client share an in-process pipe pair; the data
	// agent only ever sees the byte-stream protocol.
	toolSrv := toolserverx.New(st, logx.For("toolserver"))
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()
	go func() {
		if err := toolSrv.Serve(context.Background(), serverR, serverW); err != nil {
			log.Error().Err(err).Msg("tool server stopped")
		}
	}()
	invoker := protocolx.NewClient(clientR, clientW)

	bus := meshx.New()
	var messenger contractx.Messenger = bus
	if strings.EqualFold(appCfg.Transport, "a2a") {
		messenger = a2ax.MustNewClient(*configx.MustNew[a2ax.ClientConfig]("A2A"))
	}

	dataAgent := dataagentx.New(invoker, *configx.MustNew[dataagentx.Config]("DATA"), logx.For("dataagent"))
	supportAgent := supportagentx.New(messenger, *configx.MustNew[supportagentx.Config]("SUPPORT"), logx.For("supportagent"))
	bus.Register(contractx.RoleData, dataAgent)
	bus.Register(contractx.RoleSupport, supportAgent)

	rtr, err := routerx.New(messenger, buildClassifier(), *configx.MustNew[routerx.Config]("ROUTER"), logx.For("router"))
	if err != nil {
		log.Fatal().Err(err).Msg("build router")
	}

	go serve(appCfg.DataAddr, a2ax.Handler(dataAgent, dataCard(appCfg.DataAddr)))
	go serve(appCfg.SupportAddr, a2ax.Handler(supportAgent, supportCard(appCfg.SupportAddr)))

	log.Info().
		Str("transport", appCfg.Transport).
		Str("router_addr", appCfg.RouterAddr).
		Msg("deskmesh up")
	serve(appCfg.RouterAddr, a2ax.Handler(rtr, routerCard(appCfg.RouterAddr)))
}

func buildStore(appCfg *AppConfig) storex.Store {
	log := logx.For("store")

	if strings.TrimSpace(appCfg.PostgresDSN) != "" {
		st, err := storex.NewBunStore(*configx.MustNew[storex.BunConfig]("POSTGRES"))
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres store")
		}
		log.Info().Msg("using postgres store")
		return st
	}

	mem := storex.NewMemoryStore()
	mem.SeedCustomer(storex.Customer{Name: "Alice Johnson", Email: "alice@example.com", Status: storex.CustomerActive, Plan: "pro"})
	mem.SeedCustomer(storex.Customer{Name: "Bob Smith", Email: "bob@example.com", Status: storex.CustomerActive, Plan: "basic"})
	mem.SeedCustomer(storex.Customer{Name: "Carol Davis", Email: "carol@example.com", Status: storex.CustomerDisabled, Plan: "pro"})
	log.Info().Msg("using in-memory store with demo records")
	return mem
}

func buildClassifier() contractx.Classifier {
	llmCfg := configx.MustNew[routerx.LLMConfig]("LLM")
	if !llmCfg.Enabled() {
		return routerx.RuleClassifier{}
	}
	classifier, err := routerx.NewLLMClassifier(*llmCfg)
	if err != nil {
		l := logx.For("main")
		l.Warn().Err(err).Msg("llm classifier unavailable, using rules")
		return routerx.RuleClassifier{}
	}
	return classifier
}

func serve(addr string, handler http.Handler) {
	if err := http.ListenAndServe(addr, handler); err != nil {
		l := logx.For("main")
		l.Fatal().Err(err).Str("addr", addr).Msg("http server stopped")
	}
}

func dataCard(addr string) a2ax.AgentCard {
	return a2ax.AgentCard{
		Name:        "Customer Data Agent",
		Description: "Reads and updates customer records and tickets through the data tools.",
		URL:         cardURL(addr),
		Version:     "1.0.0",
		InputModes:  []string{"application/json"},
		OutputModes: []string{"application/json"},
		Skills: []a2ax.Skill{
			{ID: "customer_records", Name: "Customer records", Description: "Lookup, listing and updates for customer records.", Tags: []string{"customers"}},
			{ID: "tickets", Name: "Tickets", Description: "Ticket creation and per-customer ticket history.", Tags: []string{"tickets"}},
		},
	}
}

func supportCard(addr string) a2ax.AgentCard {
	return a2ax.AgentCard{
		Name:        "Support Agent",
		Description: "Triages support issues and escalates repeated or compound problems.",
		URL:         cardURL(addr),
		Version:     "1.0.0",
		InputModes:  []string{"application/json", "text/plain"},
		OutputModes: []string{"application/json", "text/plain"},
		Skills: []a2ax.Skill{
			{ID: "triage", Name: "Issue triage", Description: "Drafts next steps and opens escalation tickets when warranted.", Tags: []string{"support"}},
			{ID: "reports", Name: "Reports", Description: "Formats open-ticket reports.", Tags: []string{"support", "reports"}},
		},
	}
}

func routerCard(addr string) a2ax.AgentCard {
	return a2ax.AgentCard{
		Name:        "Router",
		Description: "Classifies customer messages, plans tasks across agents and merges the results.",
		URL:         cardURL(addr),
		Version:     "1.0.0",
		InputModes:  []string{"text/plain"},
		OutputModes: []string{"application/json", "text/plain"},
		Skills: []a2ax.Skill{
			{ID: "routing", Name: "Request routing", Description: "Multi-intent classification and orchestration.", Tags: []string{"routing"}},
		},
	}
}

func cardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://127.0.0.1" + addr + "/"
	}
	return "http://" + addr + "/"
}
