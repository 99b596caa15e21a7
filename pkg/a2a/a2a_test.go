package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	contractx "github.com/warit-san/deskmesh/agent/contract"
)

type scriptedHandler struct {
	reply contractx.TaskReply
	err   error
	delay time.Duration
	seen  []contractx.Task
}

func (h *scriptedHandler) Handle(ctx context.Context, task contractx.Task) (contractx.TaskReply, error) {
	h.seen = append(h.seen, task)
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return contractx.TaskReply{}, ctx.Err()
		}
	}
	return h.reply, h.err
}

func testCard() AgentCard {
	return AgentCard{
		Name:        "Test Agent",
		Description: "test",
		URL:         "http://127.0.0.1/",
		Version:     "1.0.0",
		Skills:      []Skill{{ID: "s", Name: "skill", Description: "d"}},
	}
}

func clientFor(t *testing.T, dataURL string) *Client {
	t.Helper()

	c, err := NewClient(ClientConfig{
		DataURL:    dataURL,
		SupportURL: dataURL,
		RouterURL:  dataURL,
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestSendRoundTrip(t *testing.T) {
	t.Parallel()

	h := &scriptedHandler{reply: contractx.TaskReply{
		Status: contractx.StatusSuccess,
		Text:   "hello",
		Data:   map[string]any{"customer": map[string]any{"id": float64(1)}},
	}}
	srv := httptest.NewServer(Handler(h, testCard()))
	defer srv.Close()

	c := clientFor(t, srv.URL)
	reply, err := c.Send(context.Background(), contractx.RoleData, contractx.Task{
		Kind:    contractx.TaskGetCustomer,
		Payload: contractx.TaskPayload{CustomerID: 1},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Status != contractx.StatusSuccess || reply.Text != "hello" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	if len(h.seen) != 1 {
		t.Fatalf("expected one delivery, got %d", len(h.seen))
	}
	got := h.seen[0]
	if got.Kind != contractx.TaskGetCustomer || got.Payload.CustomerID != 1 {
		t.Fatalf("task lost in transit: %+v", got)
	}
	if got.ID == "" {
		t.Fatalf("expected client-assigned task id")
	}
}

func TestSendSurfacesHandlerError(t *testing.T) {
	t.Parallel()

	h := &scriptedHandler{err: &contractx.ErrorDescriptor{Kind: contractx.KindNotFound, Message: "gone"}}
	srv := httptest.NewServer(Handler(h, testCard()))
	defer srv.Close()

	c := clientFor(t, srv.URL)
	_, err := c.Send(context.Background(), contractx.RoleData, contractx.Task{Kind: contractx.TaskGetCustomer})
	if err == nil {
		t.Fatalf("expected error")
	}
	var desc *contractx.ErrorDescriptor
	if !errors.As(err, &desc) || desc.Kind != contractx.KindNotFound {
		t.Fatalf("expected not_found descriptor, got %v", err)
	}
}

func TestSendTimeout(t *testing.T) {
	t.Parallel()

	h := &scriptedHandler{delay: time.Second, reply: contractx.TaskReply{Status: contractx.StatusSuccess}}
	srv := httptest.NewServer(Handler(h, testCard()))
	defer srv.Close()

	c := clientFor(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Send(ctx, contractx.RoleData, contractx.Task{Kind: contractx.TaskGetCustomer})
	if !errors.Is(err, contractx.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestAgentCardServed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(Handler(&scriptedHandler{}, testCard()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + AgentCardPath)
	if err != nil {
		t.Fatalf("GET card: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if card.Name != "Test Agent" || len(card.Skills) != 1 {
		t.Fatalf("unexpected card: %+v", card)
	}
}

func TestHandlerRejectsUnknownMethod(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(Handler(&scriptedHandler{}, testCard()))
	defer srv.Close()

	body := `{"jsonrpc":"2.0","id":"1","method":"message/stream","params":{}}`
	resp, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Error *contractx.ErrorDescriptor `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Error == nil || parsed.Error.Kind != contractx.KindValidation {
		t.Fatalf("expected validation error, got %+v", parsed.Error)
	}
}

func TestReplyMessageCarriesTextPart(t *testing.T) {
	t.Parallel()

	msg, err := ReplyMessage(contractx.TaskReply{Status: contractx.StatusSuccess, Text: "hi"})
	if err != nil {
		t.Fatalf("ReplyMessage() error = %v", err)
	}
	var hasText, hasData bool
	for _, p := range msg.Parts {
		switch p.Kind {
		case PartKindText:
			hasText = p.Text == "hi"
		case PartKindData:
			hasData = len(p.Data) > 0
		}
	}
	if !hasText || !hasData {
		t.Fatalf("expected text and data parts, got %+v", msg.Parts)
	}
}
