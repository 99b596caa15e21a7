// Package dataagent is the thin policy layer between structured data tasks
// and the tool protocol. It recognizes a fixed set of sub-intents supplied by
// the router; it never interprets natural language itself.
package dataagent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/warit-san/deskmesh/agent/contract"
	"github.com/warit-san/deskmesh/agent/toolserver"
)

type Config struct {
	ReadRetries  int           `envconfig:"READ_RETRIES" split_words:"true" default:"2"`
	RetryBackoff time.Duration `envconfig:"RETRY_BACKOFF" split_words:"true" default:"100ms"`
}

type Agent struct {
	invoker contractx.ToolInvoker
	cfg     Config
	log     zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

var _ contractx.Handler = (*Agent)(nil)

func New(invoker contractx.ToolInvoker, cfg Config, log zerolog.Logger) *Agent {
	if cfg.ReadRetries < 0 {
		cfg.ReadRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	return &Agent{
		invoker: invoker,
		cfg:     cfg,
		log:     log,
		sleep:   sleepCtx,
	}
}

// Handle maps one task to one tool call and shapes the result into a reply.
// Tool errors come back as failure replies, never as Go errors; the router
// decides what a failed step means for the turn.
func (a *Agent) Handle(ctx context.Context, task contractx.Task) (contractx.TaskReply, error) {
	tool, args, err := toToolCall(task)
	if err != nil {
		return failureReply(task, contractx.Describe(err)), nil
	}

	result, err := a.invoke(ctx, tool, args)
	if err != nil {
		return failureReply(task, contractx.Describe(err)), nil
	}
	if result.Error != nil {
		a.log.Warn().
			Str("task", task.ID).
			Str("tool", tool).
			Str("kind", string(result.Error.Kind)).
			Msg("tool call failed")
		return failureReply(task, *result.Error), nil
	}

	var data map[string]any
	if err := result.Decode(&data); err != nil {
		return failureReply(task, contractx.ErrorDescriptor{
			Kind:    contractx.KindInternal,
			Message: fmt.Sprintf("decode %s result: %v", tool, err),
		}), nil
	}

	return contractx.TaskReply{
		TaskID: task.ID,
		Status: contractx.StatusSuccess,
		Data:   data,
	}, nil
}

// invoke retries read-only tools on transient failures. Mutations run exactly
// once: after an internal error the write may have landed, so retrying could
// duplicate a ticket or reapply an update.
func (a *Agent) invoke(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
	attempts := 1
	if !toolserver.Mutating(tool) {
		attempts += a.cfg.ReadRetries
	}

	var result contractx.ToolResult
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := a.sleep(ctx, a.cfg.RetryBackoff*time.Duration(attempt)); serr != nil {
				return contractx.ToolResult{}, fmt.Errorf("%w: %v", contractx.ErrTimeout, serr)
			}
			a.log.Debug().Str("tool", tool).Int("attempt", attempt+1).Msg("retrying tool call")
		}

		result, err = a.invoker.Invoke(ctx, tool, args)
		if err != nil {
			desc := contractx.Describe(err)
			if desc.Transient() && attempt+1 < attempts {
				continue
			}
			return contractx.ToolResult{}, err
		}
		if result.Error != nil && result.Error.Transient() && attempt+1 < attempts {
			continue
		}
		return result, nil
	}
	return result, err
}

func toToolCall(task contractx.Task) (string, map[string]any, error) {
	p := task.Payload
	switch task.Kind {
	case contractx.TaskGetCustomer:
		if p.CustomerID <= 0 {
			return "", nil, fmt.Errorf("%w: customer_id is required", contractx.ErrValidation)
		}
		return toolserver.ToolGetCustomer, map[string]any{"customer_id": p.CustomerID}, nil

	case contractx.TaskListCustomers:
		args := map[string]any{}
		if p.Status != "" {
			args["status"] = p.Status
		}
		if p.Limit > 0 {
			args["limit"] = p.Limit
		}
		return toolserver.ToolListCustomers, args, nil

	case contractx.TaskUpdateCustomer:
		if p.CustomerID <= 0 {
			return "", nil, fmt.Errorf("%w: customer_id is required", contractx.ErrValidation)
		}
		if len(p.Fields) == 0 {
			return "", nil, fmt.Errorf("%w: fields are required", contractx.ErrValidation)
		}
		return toolserver.ToolUpdateCustomer, map[string]any{
			"customer_id": p.CustomerID,
			"data":        p.Fields,
		}, nil

	case contractx.TaskCreateTicket:
		if p.CustomerID <= 0 {
			return "", nil, fmt.Errorf("%w: customer_id is required", contractx.ErrValidation)
		}
		if p.Issue == "" {
			return "", nil, fmt.Errorf("%w: issue is required", contractx.ErrValidation)
		}
		priority := p.Priority
		if priority == "" {
			priority = "medium"
		}
		return toolserver.ToolCreateTicket, map[string]any{
			"customer_id": p.CustomerID,
			"issue":       p.Issue,
			"priority":    priority,
		}, nil

	case contractx.TaskCustomerHistory:
		if p.CustomerID <= 0 {
			return "", nil, fmt.Errorf("%w: customer_id is required", contractx.ErrValidation)
		}
		return toolserver.ToolGetCustomerHistory, map[string]any{"customer_id": p.CustomerID}, nil

	default:
		return "", nil, fmt.Errorf("%w: unsupported task kind %q", contractx.ErrValidation, task.Kind)
	}
}

func failureReply(task contractx.Task, desc contractx.ErrorDescriptor) contractx.TaskReply {
	return contractx.TaskReply{
		TaskID: task.ID,
		Status: contractx.StatusFailure,
		Errors: []contractx.ErrorDescriptor{desc},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
