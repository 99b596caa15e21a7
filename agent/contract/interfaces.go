package contract

import "context"

// Handler is one agent's task entry point.
type Handler interface {
	Handle(ctx context.Context, task Task) (TaskReply, error)
}

// Messenger is the inter-agent substrate: send a structured task to a logical
// role, await the structured reply. Transport detail stays behind it.
type Messenger interface {
	Send(ctx context.Context, role AgentRole, task Task) (TaskReply, error)
}

// Classifier maps a raw utterance to intents from the closed vocabulary.
// Implementations must be pure with respect to the utterance.
type Classifier interface {
	Classify(ctx context.Context, utterance string) (Classification, error)
}

// ToolInvoker is the tool protocol boundary: exactly one ToolResult per call.
type ToolInvoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (ToolResult, error)
}
