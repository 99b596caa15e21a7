// Package protocol defines the call/result envelope exchanged between a
// tool-invoking agent and the tool server over an ordered byte stream. The
// frame is one JSON object per line; calls and results are matched 1:1 by
// request id.
package protocol

import (
	"encoding/json"
	"strings"

	contractx "github.com/warit-san/deskmesh/agent/contract"
)

const (
	Version = "2.0"

	MethodToolsCall = "tools/call"
	MethodToolsList = "tools/list"
)

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  Params `json:"params,omitempty"`
}

type Params struct {
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type Response struct {
	JSONRPC string                    `json:"jsonrpc"`
	ID      string                    `json:"id"`
	Result  json.RawMessage           `json:"result,omitempty"`
	Error   *contractx.ErrorDescriptor `json:"error,omitempty"`
}

// NewCall builds a tools/call request.
func NewCall(id, tool string, args map[string]any) Request {
	return Request{
		JSONRPC: Version,
		ID:      id,
		Method:  MethodToolsCall,
		Params:  Params{Name: tool, Arguments: args},
	}
}

// Validate rejects frames that must never reach tool dispatch.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &contractx.ErrorDescriptor{Kind: contractx.KindValidation, Message: "request id is required"}
	}
	switch r.Method {
	case MethodToolsCall:
		if strings.TrimSpace(r.Params.Name) == "" {
			return &contractx.ErrorDescriptor{Kind: contractx.KindValidation, Message: "tool name is required"}
		}
		return nil
	case MethodToolsList:
		return nil
	default:
		return &contractx.ErrorDescriptor{Kind: contractx.KindValidation, Message: "unknown method: " + r.Method}
	}
}

// OK builds a success response with marshalled content.
func OK(id string, content any) Response {
	raw, err := json.Marshal(content)
	if err != nil {
		return Fail(id, &contractx.ErrorDescriptor{Kind: contractx.KindInternal, Message: "encode result: " + err.Error()})
	}
	return Response{JSONRPC: Version, ID: id, Result: raw}
}

// Fail builds an error response.
func Fail(id string, desc *contractx.ErrorDescriptor) Response {
	return Response{JSONRPC: Version, ID: id, Error: desc}
}
