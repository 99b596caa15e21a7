// Package a2a carries the HTTP JSON-RPC transport between agent processes:
// the message/send envelope, a server adapter for any contract.Handler, and
// a client messenger addressed by logical role. The orchestration core never
// imports transport detail; it sees only contract.Messenger.
package a2a

import (
	"encoding/json"

	"github.com/google/uuid"
	contractx "github.com/warit-san/deskmesh/agent/contract"
)

const (
	Version = "2.0"

	MethodMessageSend = "message/send"

	PartKindText = "text"
	PartKindData = "data"

	AgentCardPath = "/.well-known/agent-card.json"
)

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Message Message `json:"message"`
}

type rpcResponse struct {
	JSONRPC string                     `json:"jsonrpc"`
	ID      string                     `json:"id"`
	Result  *Message                   `json:"result,omitempty"`
	Error   *contractx.ErrorDescriptor `json:"error,omitempty"`
}

// Message is the A2A envelope: a role-tagged list of parts.
type Message struct {
	Kind      string `json:"kind"`
	Role      string `json:"role"`
	MessageID string `json:"messageId,omitempty"`
	Parts     []Part `json:"parts"`
}

// Part is either free text or a structured data payload.
type Part struct {
	Kind string          `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AgentCard is the capability-discovery document served at AgentCardPath.
type AgentCard struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Version     string   `json:"version"`
	Skills      []Skill  `json:"skills"`
	InputModes  []string `json:"defaultInputModes"`
	OutputModes []string `json:"defaultOutputModes"`
}

type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// TaskMessage wraps a task into a user message with a single data part.
func TaskMessage(task contractx.Task) (Message, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:      "message",
		Role:      "user",
		MessageID: uuid.NewString(),
		Parts:     []Part{{Kind: PartKindData, Data: raw}},
	}, nil
}

// ReplyMessage wraps a task reply into an agent message.
func ReplyMessage(reply contractx.TaskReply) (Message, error) {
	raw, err := json.Marshal(reply)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		Kind:      "message",
		Role:      "agent",
		MessageID: uuid.NewString(),
		Parts:     []Part{{Kind: PartKindData, Data: raw}},
	}
	if reply.Text != "" {
		msg.Parts = append(msg.Parts, Part{Kind: PartKindText, Text: reply.Text})
	}
	return msg, nil
}

func decodeTask(msg Message) (contractx.Task, error) {
	for _, p := range msg.Parts {
		if p.Kind == PartKindData && len(p.Data) > 0 {
			var task contractx.Task
			if err := json.Unmarshal(p.Data, &task); err != nil {
				return contractx.Task{}, err
			}
			return task, nil
		}
	}
	return contractx.Task{}, &contractx.ErrorDescriptor{
		Kind:    contractx.KindValidation,
		Message: "message carries no data part",
	}
}

func decodeReply(msg Message) (contractx.TaskReply, error) {
	for _, p := range msg.Parts {
		if p.Kind == PartKindData && len(p.Data) > 0 {
			var reply contractx.TaskReply
			if err := json.Unmarshal(p.Data, &reply); err != nil {
				return contractx.TaskReply{}, err
			}
			return reply, nil
		}
	}
	return contractx.TaskReply{}, &contractx.ErrorDescriptor{
		Kind:    contractx.KindValidation,
		Message: "reply carries no data part",
	}
}
