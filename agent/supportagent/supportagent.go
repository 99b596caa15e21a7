// Package supportagent drafts user-facing responses and decides when a
// situation escalates into a ticket. It never mutates records itself; ticket
// creation is requested from the data agent so record mutation stays owned by
// one component.
package supportagent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	contractx "github.com/warit-san/deskmesh/agent/contract"
)

type Config struct {
	// OpenTicketEscalation is the open-ticket count in a customer's history
	// at which a repeated unresolved issue escalates.
	OpenTicketEscalation int `envconfig:"OPEN_TICKET_ESCALATION" split_words:"true" default:"2"`
}

type Agent struct {
	messenger contractx.Messenger
	cfg       Config
	log       zerolog.Logger
}

var _ contractx.Handler = (*Agent)(nil)

func New(messenger contractx.Messenger, cfg Config, log zerolog.Logger) *Agent {
	if cfg.OpenTicketEscalation <= 0 {
		cfg.OpenTicketEscalation = 2
	}
	return &Agent{messenger: messenger, cfg: cfg, log: log}
}

func (a *Agent) Handle(ctx context.Context, task contractx.Task) (contractx.TaskReply, error) {
	switch task.Kind {
	case contractx.TaskTriage:
		return a.triage(ctx, task), nil
	case contractx.TaskFormatReport:
		return a.formatReport(task), nil
	default:
		return contractx.TaskReply{
			TaskID: task.ID,
			Status: contractx.StatusFailure,
			Errors: []contractx.ErrorDescriptor{{
				Kind:    contractx.KindValidation,
				Message: fmt.Sprintf("unsupported task kind %q", task.Kind),
			}},
		}, nil
	}
}

type signals struct {
	urgent   bool
	cancel   bool
	billing  bool
	shipping bool
}

func detectSignals(text string) signals {
	t := strings.ToLower(text)
	return signals{
		urgent:   containsAny(t, "charged twice", "fraud", "immediately", "urgent", "refund now"),
		cancel:   containsAny(t, "cancel", "cancellation", "subscription"),
		billing:  containsAny(t, "billing", "charge", "charged", "invoice", "payment"),
		shipping: containsAny(t, "shipping", "package", "delivery", "tracking"),
	}
}

func (a *Agent) triage(ctx context.Context, task contractx.Task) contractx.TaskReply {
	sig := detectSignals(task.Payload.Text)
	cid := task.Payload.CustomerID

	var errs []contractx.ErrorDescriptor
	openTickets := 0
	historyKnown := false

	if cid > 0 {
		count, err := a.openTicketCount(ctx, task, cid)
		if err != nil {
			// Missing context degrades the reply, it does not abort triage.
			desc := contractx.Describe(err)
			errs = append(errs, desc)
			a.log.Warn().Str("task", task.ID).Str("kind", string(desc.Kind)).Msg("history fetch failed")
		} else {
			openTickets = count
			historyKnown = true
		}
	}

	escalate := (sig.cancel && sig.billing) || (historyKnown && openTickets >= a.cfg.OpenTicketEscalation)

	var escalated *contractx.TaskReply
	if escalate && cid > 0 {
		reply := a.requestEscalationTicket(ctx, task, cid, sig)
		escalated = &reply
		if reply.Failed() {
			errs = append(errs, reply.Errors...)
		}
	}

	text := draft(sig, cid, openTickets, escalate, escalated)

	status := contractx.StatusSuccess
	if len(errs) > 0 {
		status = contractx.StatusPartial
	}

	data := map[string]any{
		"escalated":    escalate,
		"open_tickets": openTickets,
	}
	if escalated != nil && !escalated.Failed() {
		if t, ok := escalated.Data["ticket"]; ok {
			data["ticket"] = t
		}
	}

	return contractx.TaskReply{
		TaskID: task.ID,
		Status: status,
		Text:   text,
		Data:   data,
		Errors: errs,
	}
}

// openTicketCount asks the data agent for the customer's ticket history and
// counts entries still open.
func (a *Agent) openTicketCount(ctx context.Context, parent contractx.Task, cid int64) (int, error) {
	reply, err := a.messenger.Send(ctx, contractx.RoleData, contractx.Task{
		ConversationID: parent.ConversationID,
		CorrelationID:  parent.ID,
		Kind:           contractx.TaskCustomerHistory,
		Payload:        contractx.TaskPayload{CustomerID: cid},
	})
	if err != nil {
		return 0, err
	}
	if reply.Failed() {
		if desc := reply.FirstError(); desc != nil {
			return 0, desc
		}
		return 0, fmt.Errorf("%w: history lookup failed", contractx.ErrInternal)
	}

	raw, ok := reply.Data["tickets"].([]any)
	if !ok {
		return 0, nil
	}
	open := 0
	for _, entry := range raw {
		t, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if status, _ := t["status"].(string); status == "open" {
			open++
		}
	}
	return open, nil
}

func (a *Agent) requestEscalationTicket(ctx context.Context, parent contractx.Task, cid int64, sig signals) contractx.TaskReply {
	priority := "medium"
	if sig.urgent {
		priority = "high"
	}

	issue := "Escalated by support triage: " + summarizeIssue(sig, parent.Payload.Text)
	reply, err := a.messenger.Send(ctx, contractx.RoleData, contractx.Task{
		ConversationID: parent.ConversationID,
		CorrelationID:  parent.ID,
		Kind:           contractx.TaskCreateTicket,
		Payload: contractx.TaskPayload{
			CustomerID: cid,
			Issue:      issue,
			Priority:   priority,
		},
	})
	if err != nil {
		desc := contractx.Describe(err)
		return contractx.TaskReply{
			Status: contractx.StatusFailure,
			Errors: []contractx.ErrorDescriptor{desc},
		}
	}
	return reply
}

func summarizeIssue(sig signals, text string) string {
	var topics []string
	if sig.cancel {
		topics = append(topics, "cancellation")
	}
	if sig.billing {
		topics = append(topics, "billing dispute")
	}
	if sig.shipping {
		topics = append(topics, "shipping")
	}
	if len(topics) == 0 {
		topics = append(topics, "repeated unresolved issue")
	}
	summary := strings.Join(topics, " + ")
	if text != "" {
		summary += ": " + text
	}
	return summary
}

func draft(sig signals, cid int64, openTickets int, escalate bool, escalated *contractx.TaskReply) string {
	var lines []string

	switch {
	case sig.urgent:
		lines = append(lines,
			"I hear this is urgent and I can help you quickly.",
			"Next steps:",
			"1) Confirm the order or subscription identifier if you have it.",
			"2) Confirm the dates and amounts of the charges in question.",
		)
	case sig.cancel && sig.billing:
		lines = append(lines,
			"It sounds like you have two issues: cancellation and billing.",
			"The billing issue needs to be resolved before the cancellation can proceed.",
			"Next steps:",
			"1) Tell me which billing problem you see (unexpected charge, failed payment, duplicate invoice).",
			"2) Confirm what you want cancelled and the effective date you prefer.",
		)
	case sig.cancel:
		lines = append(lines,
			"I can help with cancellation.",
			"Next step: confirm what you want cancelled and the effective date you prefer.",
		)
	case sig.shipping:
		lines = append(lines,
			"I can help with shipping and delivery.",
			"Next step: share a tracking number or order id if available.",
		)
	default:
		lines = append(lines, "Tell me what happened (refund, shipping, cancellation, damaged item, billing).")
		if cid > 0 {
			lines = append(lines, fmt.Sprintf("I see customer %d in your message; include an order id if you have one.", cid))
		}
	}

	if openTickets > 0 {
		lines = append(lines, fmt.Sprintf("Your account has %d open ticket(s); I have taken that history into account.", openTickets))
	}
	if escalate {
		if escalated != nil && !escalated.Failed() {
			lines = append(lines, "This has been escalated: a ticket was opened on your behalf and our team will follow up.")
		} else {
			lines = append(lines, "This qualifies for escalation; opening a ticket failed, so please retry or contact us directly.")
		}
	}

	return strings.Join(lines, "\n")
}

func (a *Agent) formatReport(task contractx.Task) contractx.TaskReply {
	rows, _ := task.Payload.Context["open_tickets"].([]any)

	var lines []string
	lines = append(lines, "| customer_id | ticket_id | priority | issue |")
	lines = append(lines, "| --- | --- | --- | --- |")

	type row struct {
		customerID, ticketID int64
		priority, issue      string
	}
	parsed := make([]row, 0, len(rows))
	for _, raw := range rows {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		parsed = append(parsed, row{
			customerID: asInt64(m["customer_id"]),
			ticketID:   asInt64(m["ticket_id"]),
			priority:   asString(m["priority"]),
			issue:      asString(m["issue"]),
		})
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		if parsed[i].customerID != parsed[j].customerID {
			return parsed[i].customerID < parsed[j].customerID
		}
		return parsed[i].ticketID < parsed[j].ticketID
	})
	for _, r := range parsed {
		lines = append(lines, fmt.Sprintf("| %d | %d | %s | %s |", r.customerID, r.ticketID, r.priority, r.issue))
	}

	return contractx.TaskReply{
		TaskID: task.ID,
		Status: contractx.StatusSuccess,
		Text:   strings.Join(lines, "\n"),
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
