// Package router owns the conversation turn: it classifies the user's
// utterance, plans structured tasks, dispatches them to the data and support
// agents and merges the step outcomes into one reply. It is the only
// component that talks to more than one agent.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	contractx "github.com/warit-san/deskmesh/agent/contract"
)

type Config struct {
	// StepTimeout bounds every dispatched step individually.
	StepTimeout time.Duration `envconfig:"STEP_TIMEOUT" split_words:"true" default:"10s"`
	// MaxFanOut caps how many per-customer steps a report may expand into.
	MaxFanOut int `envconfig:"MAX_FAN_OUT" split_words:"true" default:"25"`
	// ConfidenceThreshold is the floor under which the router asks for
	// clarification instead of dispatching.
	ConfidenceThreshold float64 `envconfig:"CONFIDENCE_THRESHOLD" split_words:"true" default:"0.5"`

	// BillingPrecedence and CancellationPrecedence order the two intents when
	// both appear in one utterance; the heavier one runs first and gates the
	// other. Billing outranks cancellation by default because an unresolved
	// charge blocks a clean account closure.
	BillingPrecedence      int `envconfig:"BILLING_PRECEDENCE" split_words:"true" default:"2"`
	CancellationPrecedence int `envconfig:"CANCELLATION_PRECEDENCE" split_words:"true" default:"1"`

	// Precedence is derived from the two fields above; populate it directly
	// only in tests.
	Precedence map[contractx.Intent]int `ignored:"true"`
}

func (c Config) normalized() Config {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.MaxFanOut <= 0 {
		c.MaxFanOut = 25
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.5
	}
	if c.Precedence == nil {
		c.Precedence = map[contractx.Intent]int{
			contractx.IntentBillingDispute: c.BillingPrecedence,
			contractx.IntentCancellation:   c.CancellationPrecedence,
		}
	}
	return c
}

type Router struct {
	messenger  contractx.Messenger
	classifier contractx.Classifier
	dispatcher *dispatcher
	cfg        Config
	log        zerolog.Logger

	graphRunner compose.Runnable[turnInput, Response]

	newID func() string
}

var _ contractx.Handler = (*Router)(nil)

func New(messenger contractx.Messenger, classifier contractx.Classifier, cfg Config, log zerolog.Logger) (*Router, error) {
	if messenger == nil {
		return nil, errors.New("messenger is required")
	}
	if classifier == nil {
		classifier = RuleClassifier{}
	}
	cfg = cfg.normalized()

	r := &Router{
		messenger:  messenger,
		classifier: classifier,
		dispatcher: newDispatcher(messenger, cfg, log),
		cfg:        cfg,
		log:        log,
		newID:      func() string { return uuid.NewString() },
	}

	graphRunner, err := r.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	r.graphRunner = graphRunner

	return r, nil
}

// Respond runs one conversation turn. A missing conversation id starts a new
// conversation.
func (r *Router) Respond(ctx context.Context, conversationID, utterance string) (Response, error) {
	return r.respond(ctx, conversationID, "", utterance)
}

func (r *Router) respond(ctx context.Context, conversationID, parentTaskID, utterance string) (Response, error) {
	if conversationID == "" {
		conversationID = r.newID()
	}
	return r.graphRunner.Invoke(ctx, turnInput{
		ConversationID: conversationID,
		ParentTaskID:   parentTaskID,
		Utterance:      utterance,
	})
}

// Handle adapts the router to the agent task interface so it can sit behind
// the same transport as the other agents. Plan steps correlate back to the
// incoming task.
func (r *Router) Handle(ctx context.Context, task contractx.Task) (contractx.TaskReply, error) {
	resp, err := r.respond(ctx, task.ConversationID, task.ID, task.Payload.Text)
	if err != nil {
		return contractx.TaskReply{}, err
	}
	reply := contractx.TaskReply{
		TaskID: task.ID,
		Status: resp.Status,
		Text:   resp.Reply,
		Data: map[string]any{
			"conversation_id":     resp.ConversationID,
			"needs_clarification": resp.NeedsClarification,
		},
		Errors: resp.Errors,
	}
	return reply, nil
}
