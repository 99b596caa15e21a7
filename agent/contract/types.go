package contract

import "encoding/json"

type AgentRole string

const (
	RoleRouter  AgentRole = "router"
	RoleData    AgentRole = "data"
	RoleSupport AgentRole = "support"
)

// TaskKind is the closed vocabulary of structured sub-requests an agent can
// receive. The router plans in these terms; agents never re-interpret natural
// language beyond their own kind set.
type TaskKind string

const (
	TaskGetCustomer     TaskKind = "data.get_customer"
	TaskListCustomers   TaskKind = "data.list_customers"
	TaskUpdateCustomer  TaskKind = "data.update_customer"
	TaskCreateTicket    TaskKind = "data.create_ticket"
	TaskCustomerHistory TaskKind = "data.customer_history"

	TaskTriage       TaskKind = "support.triage"
	TaskFormatReport TaskKind = "support.format_report"
)

// Task is one unit of work dispatched between agents. The dispatching side
// owns it until a reply or terminal error comes back.
type Task struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	CorrelationID  string      `json:"correlation_id,omitempty"`
	Role           AgentRole   `json:"role"`
	Kind           TaskKind    `json:"kind"`
	Payload        TaskPayload `json:"payload"`
}

// TaskPayload carries the structured content of a task. Fields are
// kind-specific; unused fields stay zero.
type TaskPayload struct {
	Text       string         `json:"text,omitempty"`
	CustomerID int64          `json:"customer_id,omitempty"`
	Status     string         `json:"status,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Issue      string         `json:"issue,omitempty"`
	Priority   string         `json:"priority,omitempty"`
	// Context carries results of earlier plan steps into dependent steps.
	Context map[string]any `json:"context,omitempty"`
}

type TaskStatus string

const (
	StatusSuccess TaskStatus = "success"
	StatusPartial TaskStatus = "partial"
	StatusFailure TaskStatus = "failure"
)

// TaskReply is immutable once produced.
type TaskReply struct {
	TaskID string            `json:"task_id"`
	Status TaskStatus        `json:"status"`
	Text   string            `json:"text,omitempty"`
	Data   map[string]any    `json:"data,omitempty"`
	Errors []ErrorDescriptor `json:"errors,omitempty"`
}

// Failed reports whether the reply is terminal-bad for the step that issued it.
func (r TaskReply) Failed() bool {
	return r.Status == StatusFailure
}

// FirstError returns the leading error descriptor, if any.
func (r TaskReply) FirstError() *ErrorDescriptor {
	if len(r.Errors) == 0 {
		return nil
	}
	return &r.Errors[0]
}

// ToolResult is the outcome of exactly one tool invocation: either a content
// payload or a structured error, never both.
type ToolResult struct {
	Tool    string           `json:"tool"`
	Content json.RawMessage  `json:"content,omitempty"`
	Error   *ErrorDescriptor `json:"error,omitempty"`
}

// Decode unmarshals the success content into out.
func (r ToolResult) Decode(out any) error {
	if r.Error != nil {
		return r.Error
	}
	return json.Unmarshal(r.Content, out)
}

// Intent is the closed classification vocabulary.
type Intent string

const (
	IntentAccountHelp       Intent = "account_help"
	IntentCustomerLookup    Intent = "customer_lookup"
	IntentCancellation      Intent = "cancellation"
	IntentBillingDispute    Intent = "billing_dispute"
	IntentOpenTicketsReport Intent = "open_tickets_report"
)

// KnownIntent reports whether in belongs to the closed vocabulary.
func KnownIntent(in Intent) bool {
	switch in {
	case IntentAccountHelp, IntentCustomerLookup, IntentCancellation,
		IntentBillingDispute, IntentOpenTicketsReport:
		return true
	}
	return false
}

// Classification is the pure output of a Classifier: tagged intents from the
// closed set plus whatever entities the utterance carried.
type Classification struct {
	Intents    []Intent `json:"intents"`
	CustomerID int64    `json:"customer_id,omitempty"`
	Confidence float64  `json:"confidence"`
}

func (c Classification) Has(in Intent) bool {
	for _, got := range c.Intents {
		if got == in {
			return true
		}
	}
	return false
}
