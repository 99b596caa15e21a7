package a2a

import (
	"encoding/json"
	"net/http"

	contractx "github.com/warit-san/deskmesh/agent/contract"
)

// Handler adapts a contract.Handler into the message/send HTTP endpoint and
// serves the agent card at the well-known path.
func Handler(h contractx.Handler, card AgentCard) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(AgentCardPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, card)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, rpcResponse{
				JSONRPC: Version,
				Error:   &contractx.ErrorDescriptor{Kind: contractx.KindValidation, Message: "parse error"},
			})
			return
		}
		if req.Method != MethodMessageSend {
			writeJSON(w, http.StatusOK, rpcResponse{
				JSONRPC: Version,
				ID:      req.ID,
				Error:   &contractx.ErrorDescriptor{Kind: contractx.KindValidation, Message: "method not found"},
			})
			return
		}

		task, err := decodeTask(req.Params.Message)
		if err != nil {
			desc := contractx.Describe(err)
			writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: Version, ID: req.ID, Error: &desc})
			return
		}

		reply, err := h.Handle(r.Context(), task)
		if err != nil {
			desc := contractx.Describe(err)
			writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: Version, ID: req.ID, Error: &desc})
			return
		}

		msg, err := ReplyMessage(reply)
		if err != nil {
			desc := contractx.Describe(err)
			writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: Version, ID: req.ID, Error: &desc})
			return
		}
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: Version, ID: req.ID, Result: &msg})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
