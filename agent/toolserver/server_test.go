package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	contractx "github.com/warit-san/deskmesh/agent/contract"
	storex "github.com/warit-san/deskmesh/agent/store"
	"github.com/warit-san/deskmesh/pkg/protocol"
)

func testServer(t *testing.T) (*Server, *storex.MemoryStore) {
	t.Helper()

	st := storex.NewMemoryStore()
	st.SeedCustomer(storex.Customer{Name: "Alice", Email: "alice@example.com", Status: storex.CustomerActive, Plan: "pro"})
	st.SeedCustomer(storex.Customer{Name: "Bob", Email: "bob@example.com", Status: storex.CustomerActive, Plan: "basic"})
	return New(st, zerolog.Nop()), st
}

func call(t *testing.T, s *Server, tool string, args map[string]any) protocol.Response {
	t.Helper()
	return s.Handle(context.Background(), protocol.NewCall("req-1", tool, args))
}

func TestHandleUnknownToolRejectedBeforeStore(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t)
	resp := call(t, s, "drop_table", nil)
	if resp.Error == nil || resp.Error.Kind != contractx.KindValidation {
		t.Fatalf("expected validation error, got %+v", resp.Error)
	}
}

func TestHandleRejectsMissingID(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t)
	req := protocol.NewCall("", ToolGetCustomer, map[string]any{"customer_id": 1})
	resp := s.Handle(context.Background(), req)
	if resp.Error == nil || resp.Error.Kind != contractx.KindValidation {
		t.Fatalf("expected validation error for empty id, got %+v", resp.Error)
	}
}

func TestGetCustomerNotFoundKind(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t)
	resp := call(t, s, ToolGetCustomer, map[string]any{"customer_id": 404})
	if resp.Error == nil || resp.Error.Kind != contractx.KindNotFound {
		t.Fatalf("expected not_found error, got %+v", resp.Error)
	}
}

func TestGetCustomerValidation(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t)
	for name, args := range map[string]map[string]any{
		"missing id":     {},
		"non-integer id": {"customer_id": "one"},
		"fractional id":  {"customer_id": 1.5},
	} {
		resp := call(t, s, ToolGetCustomer, args)
		if resp.Error == nil || resp.Error.Kind != contractx.KindValidation {
			t.Fatalf("%s: expected validation error, got %+v", name, resp.Error)
		}
	}
}

func TestCreateTicketValidatesPriority(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t)
	resp := call(t, s, ToolCreateTicket, map[string]any{
		"customer_id": 1,
		"issue":       "broken",
		"priority":    "urgent",
	})
	if resp.Error == nil || resp.Error.Kind != contractx.KindValidation {
		t.Fatalf("expected validation error, got %+v", resp.Error)
	}
}

func TestListCustomersCapsLimit(t *testing.T) {
	t.Parallel()

	s, st := testServer(t)
	for i := 0; i < 150; i++ {
		st.SeedCustomer(storex.Customer{Name: fmt.Sprintf("c%d", i), Email: "x@example.com", Status: storex.CustomerActive, Plan: "basic"})
	}

	resp := call(t, s, ToolListCustomers, map[string]any{"limit": 500})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result struct {
		Customers []storex.Customer `json:"customers"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Customers) != 100 {
		t.Fatalf("expected cap of 100 rows, got %d", len(result.Customers))
	}
}

func TestToolsListReturnsCatalog(t *testing.T) {
	t.Parallel()

	s, _ := testServer(t)
	resp := s.Handle(context.Background(), protocol.Request{
		JSONRPC: protocol.Version,
		ID:      "req-list",
		Method:  protocol.MethodToolsList,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Tools) != 5 {
		t.Fatalf("expected 5 tools, got %d", len(result.Tools))
	}
}

func TestConcurrentUpdatesSameCustomerAllApply(t *testing.T) {
	t.Parallel()

	s, st := testServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := call(t, s, ToolCreateTicket, map[string]any{
				"customer_id": 1,
				"issue":       fmt.Sprintf("issue %d", i),
				"priority":    "low",
			})
			if resp.Error != nil {
				t.Errorf("create ticket %d: %+v", i, resp.Error)
			}
		}(i)
	}
	wg.Wait()

	tickets, err := st.TicketsForCustomer(context.Background(), 1)
	if err != nil {
		t.Fatalf("TicketsForCustomer() error = %v", err)
	}
	if len(tickets) != 16 {
		t.Fatalf("expected all 16 writes applied, got %d", len(tickets))
	}
	seen := map[int64]bool{}
	for _, tk := range tickets {
		if seen[tk.ID] {
			t.Fatalf("duplicate ticket id %d", tk.ID)
		}
		seen[tk.ID] = true
	}
}
