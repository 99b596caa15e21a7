package toolserver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/warit-san/deskmesh/agent/contract"
	storex "github.com/warit-san/deskmesh/agent/store"
)

const (
	ToolGetCustomer        = "get_customer"
	ToolListCustomers      = "list_customers"
	ToolUpdateCustomer     = "update_customer"
	ToolCreateTicket       = "create_ticket"
	ToolGetCustomerHistory = "get_customer_history"

	defaultListLimit = 50
	maxListLimit     = 100
)

var priorities = map[string]bool{"low": true, "medium": true, "high": true}

// Catalog describes the fixed tool set for tools/list.
func Catalog() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolGetCustomer,
			Desc: "Fetch a customer record by id.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {Type: schema.Integer, Desc: "Customer id", Required: true},
			}),
		},
		{
			Name: ToolListCustomers,
			Desc: "List customers in id order, optionally filtered by status.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"status": {Type: schema.String, Desc: "active or disabled", Enum: []string{storex.CustomerActive, storex.CustomerDisabled}},
				"limit":  {Type: schema.Integer, Desc: "Max rows, capped at 100"},
			}),
		},
		{
			Name: ToolUpdateCustomer,
			Desc: "Merge the supplied fields into a customer record.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {Type: schema.Integer, Desc: "Customer id", Required: true},
				"data":        {Type: schema.Object, Desc: "Field name to new value", Required: true},
			}),
		},
		{
			Name: ToolCreateTicket,
			Desc: "Open a support ticket for a customer.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {Type: schema.Integer, Desc: "Customer id", Required: true},
				"issue":       {Type: schema.String, Desc: "Issue description", Required: true},
				"priority":    {Type: schema.String, Desc: "low, medium or high", Enum: []string{"low", "medium", "high"}, Required: true},
			}),
		},
		{
			Name: ToolGetCustomerHistory,
			Desc: "List a customer's tickets in chronological order.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {Type: schema.Integer, Desc: "Customer id", Required: true},
			}),
		},
	}
}

// Mutating reports whether tool has side effects. Everything else is
// read-only and safe to retry.
func Mutating(tool string) bool {
	return tool == ToolUpdateCustomer || tool == ToolCreateTicket
}

func (s *Server) execute(ctx context.Context, tool string, args map[string]any) (any, error) {
	switch tool {
	case ToolGetCustomer:
		id, err := intArg(args, "customer_id", true)
		if err != nil {
			return nil, err
		}
		c, err := s.store.GetCustomer(ctx, id)
		if err != nil {
			return nil, storeErr(err)
		}
		return map[string]any{"customer": c}, nil

	case ToolListCustomers:
		status, err := stringArg(args, "status", false)
		if err != nil {
			return nil, err
		}
		if status != "" && status != storex.CustomerActive && status != storex.CustomerDisabled {
			return nil, validationf("status must be %q or %q", storex.CustomerActive, storex.CustomerDisabled)
		}
		limit, err := intArg(args, "limit", false)
		if err != nil {
			return nil, err
		}
		if limit < 0 {
			return nil, validationf("limit must be >= 0")
		}
		if limit == 0 {
			limit = defaultListLimit
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		customers, err := s.store.ListCustomers(ctx, status, int(limit))
		if err != nil {
			return nil, storeErr(err)
		}
		return map[string]any{"customers": customers}, nil

	case ToolUpdateCustomer:
		id, err := intArg(args, "customer_id", true)
		if err != nil {
			return nil, err
		}
		data, err := objectArg(args, "data", true)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, validationf("data must supply at least one field")
		}

		unlock := s.lockCustomer(id)
		defer unlock()

		c, err := s.store.UpdateCustomer(ctx, id, data)
		if err != nil {
			return nil, storeErr(err)
		}
		return map[string]any{"customer": c}, nil

	case ToolCreateTicket:
		id, err := intArg(args, "customer_id", true)
		if err != nil {
			return nil, err
		}
		issue, err := stringArg(args, "issue", true)
		if err != nil {
			return nil, err
		}
		priority, err := stringArg(args, "priority", true)
		if err != nil {
			return nil, err
		}
		if !priorities[priority] {
			return nil, validationf("priority must be low, medium or high")
		}

		unlock := s.lockCustomer(id)
		defer unlock()

		t, err := s.store.CreateTicket(ctx, &storex.Ticket{
			CustomerID: id,
			Issue:      issue,
			Priority:   priority,
		})
		if err != nil {
			return nil, storeErr(err)
		}
		return map[string]any{"ticket": t}, nil

	case ToolGetCustomerHistory:
		id, err := intArg(args, "customer_id", true)
		if err != nil {
			return nil, err
		}
		tickets, err := s.store.TicketsForCustomer(ctx, id)
		if err != nil {
			return nil, storeErr(err)
		}
		if tickets == nil {
			tickets = []storex.Ticket{}
		}
		return map[string]any{"tickets": tickets}, nil

	default:
		return nil, validationf("unknown tool: %s", tool)
	}
}

func storeErr(err error) error {
	switch {
	case errors.Is(err, storex.ErrCustomerNotFound):
		return &contractx.ErrorDescriptor{Kind: contractx.KindNotFound, Message: err.Error()}
	case errors.Is(err, storex.ErrUnknownField):
		return &contractx.ErrorDescriptor{Kind: contractx.KindValidation, Message: err.Error()}
	default:
		return &contractx.ErrorDescriptor{Kind: contractx.KindInternal, Message: err.Error()}
	}
}

func validationf(format string, args ...any) error {
	return &contractx.ErrorDescriptor{Kind: contractx.KindValidation, Message: fmt.Sprintf(format, args...)}
}

func intArg(args map[string]any, name string, required bool) (int64, error) {
	raw, ok := args[name]
	if !ok {
		if required {
			return 0, validationf("%s is required", name)
		}
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, validationf("%s must be an integer", name)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, validationf("%s must be an integer", name)
	}
}

func stringArg(args map[string]any, name string, required bool) (string, error) {
	raw, ok := args[name]
	if !ok {
		if required {
			return "", validationf("%s is required", name)
		}
		return "", nil
	}
	v, ok := raw.(string)
	if !ok || (required && v == "") {
		return "", validationf("%s must be a non-empty string", name)
	}
	return v, nil
}

func objectArg(args map[string]any, name string, required bool) (map[string]any, error) {
	raw, ok := args[name]
	if !ok {
		if required {
			return nil, validationf("%s is required", name)
		}
		return nil, nil
	}
	v, ok := raw.(map[string]any)
	if !ok {
		return nil, validationf("%s must be an object", name)
	}
	return v, nil
}
