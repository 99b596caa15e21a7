package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	contractx "github.com/warit-san/deskmesh/agent/contract"
)

// scriptedServer reads request frames and answers each via the respond
// callback, which may delay or reorder replies.
func scriptedServer(t *testing.T, respond func(req Request) *Response) (*Client, func()) {
	t.Helper()

	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	go func() {
		sc := bufio.NewScanner(serverR)
		enc := json.NewEncoder(serverW)
		var encMu sync.Mutex
		for sc.Scan() {
			var req Request
			if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
				t.Errorf("server decode: %v", err)
				return
			}
			go func(req Request) {
				if resp := respond(req); resp != nil {
					encMu.Lock()
					err := enc.Encode(resp)
					encMu.Unlock()
					if err != nil && !errors.Is(err, io.ErrClosedPipe) {
						t.Errorf("server encode: %v", err)
					}
				}
			}(req)
		}
	}()

	c := NewClient(clientR, clientW)
	cleanup := func() {
		clientW.Close()
		serverW.Close()
	}
	return c, cleanup
}

func okResponse(id string, content any) *Response {
	resp := OK(id, content)
	return &resp
}

func TestInvokeMatchesResponsesByID(t *testing.T) {
	t.Parallel()

	// The first call's reply is delayed past the second call's, so delivery
	// must go by id, not arrival order.
	c, cleanup := scriptedServer(t, func(req Request) *Response {
		if req.Params.Name == "slow" {
			time.Sleep(50 * time.Millisecond)
			return okResponse(req.ID, map[string]any{"tool": "slow"})
		}
		return okResponse(req.ID, map[string]any{"tool": "fast"})
	})
	defer cleanup()

	type outcome struct {
		tool string
		got  map[string]any
		err  error
	}
	results := make(chan outcome, 2)
	for _, tool := range []string{"slow", "fast"} {
		go func(tool string) {
			res, err := c.Invoke(context.Background(), tool, nil)
			var got map[string]any
			if err == nil {
				err = res.Decode(&got)
			}
			results <- outcome{tool: tool, got: got, err: err}
		}(tool)
	}

	for i := 0; i < 2; i++ {
		out := <-results
		if out.err != nil {
			t.Fatalf("Invoke(%s) error = %v", out.tool, out.err)
		}
		if out.got["tool"] != out.tool {
			t.Fatalf("reply for %q carried %v", out.tool, out.got)
		}
	}
}

func TestInvokePassesThroughToolError(t *testing.T) {
	t.Parallel()

	c, cleanup := scriptedServer(t, func(req Request) *Response {
		resp := Fail(req.ID, &contractx.ErrorDescriptor{Kind: contractx.KindNotFound, Message: "no such customer"})
		return &resp
	})
	defer cleanup()

	res, err := c.Invoke(context.Background(), "get_customer", map[string]any{"customer_id": 9})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.Error == nil || res.Error.Kind != contractx.KindNotFound {
		t.Fatalf("expected not_found tool error, got %+v", res.Error)
	}
}

func TestInvokeTimeoutLeavesStreamUsable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c, cleanup := scriptedServer(t, func(req Request) *Response {
		if req.Params.Name == "stuck" {
			<-release
			return okResponse(req.ID, map[string]any{"late": true})
		}
		return okResponse(req.ID, map[string]any{"ok": true})
	})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Invoke(ctx, "stuck", nil)
	if !errors.Is(err, contractx.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The stale frame for the abandoned call must be dropped, not delivered
	// to the next caller.
	close(release)
	res, err := c.Invoke(context.Background(), "next", nil)
	if err != nil {
		t.Fatalf("Invoke() after timeout error = %v", err)
	}
	var got map[string]any
	if err := res.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["ok"] != true {
		t.Fatalf("expected fresh reply, got %v", got)
	}
}

func TestInvokeFailsPendingOnStreamClose(t *testing.T) {
	t.Parallel()

	c, cleanup := scriptedServer(t, func(req Request) *Response { return nil })

	done := make(chan error, 1)
	go func() {
		_, err := c.Invoke(context.Background(), "never", nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cleanup()

	select {
	case err := <-done:
		if !errors.Is(err, contractx.ErrInternal) {
			t.Fatalf("expected ErrInternal on stream close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pending call never failed after stream close")
	}
}

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"call ok", NewCall("1", "get_customer", nil), true},
		{"empty id", NewCall("", "get_customer", nil), false},
		{"empty tool", NewCall("1", "  ", nil), false},
		{"list ok", Request{JSONRPC: Version, ID: "1", Method: MethodToolsList}, true},
		{"unknown method", Request{JSONRPC: Version, ID: "1", Method: "tools/explode"}, false},
	}
	for _, tc := range cases {
		err := tc.req.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
