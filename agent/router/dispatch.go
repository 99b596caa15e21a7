package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	contractx "github.com/warit-san/deskmesh/agent/contract"
)

// stepResult pairs a plan step with its outcome. Exactly one of reply/desc is
// meaningful unless the step was skipped by its gate.
type stepResult struct {
	step    planStep
	taskID  string
	reply   contractx.TaskReply
	skipped bool
	desc    *contractx.ErrorDescriptor
}

func (r stepResult) succeeded() bool {
	return !r.skipped && r.desc == nil && !r.reply.Failed()
}

type dispatcher struct {
	messenger contractx.Messenger
	cfg       Config
	log       zerolog.Logger
	newID     func() string
}

func newDispatcher(m contractx.Messenger, cfg Config, log zerolog.Logger) *dispatcher {
	return &dispatcher{
		messenger: m,
		cfg:       cfg,
		log:       log,
		newID:     func() string { return uuid.NewString() },
	}
}

// run executes the plan level by level. Every level is a barrier: all of its
// steps finish (or time out) before the next level starts. Steps inside a
// level run concurrently and never cancel each other; a slow or failed step
// only surfaces in its own result.
func (d *dispatcher) run(ctx context.Context, conversationID, parentTaskID string, plan routingPlan) []stepResult {
	var (
		results []stepResult
		byID    = map[string]stepResult{}
		rows    []map[string]any
		levels  = append([][]planStep{}, plan.levels...)
	)

	for li := 0; li < len(levels); li++ {
		level := levels[li]
		outcomes := make([]stepResult, len(level))

		var wg sync.WaitGroup
		for i, step := range level {
			if res, done := d.preflight(step, byID); done {
				outcomes[i] = res
				continue
			}

			correlationID := correlationFor(step, byID, parentTaskID)
			wg.Add(1)
			go func(i int, step planStep, correlationID string) {
				defer wg.Done()
				outcomes[i] = d.send(ctx, conversationID, correlationID, d.withCarriedContext(step, byID, rows))
			}(i, step, correlationID)
		}
		wg.Wait()

		for _, res := range outcomes {
			results = append(results, res)
			byID[res.step.id] = res

			if res.step.fanOut != nil && res.succeeded() {
				children := d.fanOutLevel(res)
				if len(children) > 0 {
					next := append([][]planStep{}, levels[:li+1]...)
					next = append(next, children)
					levels = append(next, levels[li+1:]...)
				}
			}
		}

		rows = append(rows, collectTicketRows(outcomes)...)
	}

	return results
}

// preflight resolves a step without dispatching it when its gate did not
// succeed. The skip is recorded as a conflict so aggregation can report it.
func (d *dispatcher) preflight(step planStep, byID map[string]stepResult) (stepResult, bool) {
	if step.gate == "" {
		return stepResult{}, false
	}
	gate, ok := byID[step.gate]
	if ok && gate.succeeded() {
		return stepResult{}, false
	}
	d.log.Info().Str("step", step.id).Str("gate", step.gate).Msg("step skipped by gate")
	return stepResult{
		step:    step,
		skipped: true,
		desc: &contractx.ErrorDescriptor{
			Kind:    contractx.KindConflict,
			Message: fmt.Sprintf("skipped: gate step %q did not succeed", step.gate),
		},
	}, true
}

// withCarriedContext injects upstream results into the step payload. The
// input step is copied; plan steps stay immutable.
func (d *dispatcher) withCarriedContext(step planStep, byID map[string]stepResult, rows []map[string]any) planStep {
	needsRows := step.kind == contractx.TaskFormatReport
	if len(step.carryFrom) == 0 && !needsRows {
		return step
	}

	carried := map[string]any{}
	for k, v := range step.payload.Context {
		carried[k] = v
	}
	for _, from := range step.carryFrom {
		if res, ok := byID[from]; ok && res.succeeded() {
			carried[from] = res.reply.Data
		}
	}
	if needsRows {
		generic := make([]any, len(rows))
		for i, r := range rows {
			generic[i] = r
		}
		carried["open_tickets"] = generic
	}

	step.payload.Context = carried
	return step
}

// correlationFor picks the parent task id a step's task correlates to: the
// gating step's task when the step depends on one, otherwise the task that
// started the turn.
func correlationFor(step planStep, byID map[string]stepResult, parentTaskID string) string {
	if step.gate != "" {
		if gate, ok := byID[step.gate]; ok && gate.taskID != "" {
			return gate.taskID
		}
	}
	return parentTaskID
}

// send dispatches one step with its own deadline. The step context is
// detached from the turn context: once a task is in flight the receiving
// agent finishes it even if the caller abandons the turn, so mutations are
// never half-cancelled.
func (d *dispatcher) send(ctx context.Context, conversationID, correlationID string, step planStep) stepResult {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.StepTimeout)
	defer cancel()

	task := contractx.Task{
		ID:             d.newID(),
		ConversationID: conversationID,
		CorrelationID:  correlationID,
		Kind:           step.kind,
		Payload:        step.payload,
	}

	started := time.Now()
	reply, err := d.messenger.Send(sctx, step.role, task)
	elapsed := time.Since(started)

	if err != nil {
		desc := contractx.Describe(err)
		if errors.Is(err, context.DeadlineExceeded) {
			desc = contractx.ErrorDescriptor{
				Kind:    contractx.KindTimeout,
				Message: fmt.Sprintf("step %q exceeded %s", step.id, d.cfg.StepTimeout),
			}
		}
		d.log.Warn().
			Str("step", step.id).
			Str("kind", string(step.kind)).
			Dur("elapsed", elapsed).
			Str("error_kind", string(desc.Kind)).
			Msg("step failed")
		return stepResult{step: step, taskID: task.ID, desc: &desc}
	}

	d.log.Debug().
		Str("step", step.id).
		Str("kind", string(step.kind)).
		Str("status", string(reply.Status)).
		Dur("elapsed", elapsed).
		Msg("step finished")
	return stepResult{step: step, taskID: task.ID, reply: reply}
}

// fanOutLevel expands a succeeded list step into one history step per
// customer, in ascending id order, capped by MaxFanOut.
func (d *dispatcher) fanOutLevel(res stepResult) []planStep {
	ids := customerIDs(res.reply.Data)
	if len(ids) > d.cfg.MaxFanOut {
		d.log.Warn().Int("customers", len(ids)).Int("cap", d.cfg.MaxFanOut).Msg("fan-out capped")
		ids = ids[:d.cfg.MaxFanOut]
	}

	steps := make([]planStep, 0, len(ids))
	for _, id := range ids {
		// Children gate on (and correlate to) the list step that spawned them.
		steps = append(steps, planStep{
			id:      fmt.Sprintf("history_%d", id),
			kind:    res.step.fanOut.kind,
			role:    contractx.RoleData,
			payload: contractx.TaskPayload{CustomerID: id},
			gate:    res.step.id,
		})
	}
	return steps
}

func customerIDs(data map[string]any) []int64 {
	raw, _ := data["customers"].([]any)
	ids := make([]int64, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if id := asInt64(m["id"]); id > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// collectTicketRows flattens open tickets out of history replies into report
// rows. Order is made deterministic later; completion order does not matter.
func collectTicketRows(outcomes []stepResult) []map[string]any {
	var rows []map[string]any
	for _, res := range outcomes {
		if res.step.kind != contractx.TaskCustomerHistory || !res.succeeded() {
			continue
		}
		cid := res.step.payload.CustomerID
		raw, _ := res.reply.Data["tickets"].([]any)
		for _, entry := range raw {
			t, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if status, _ := t["status"].(string); status != "open" {
				continue
			}
			rows = append(rows, map[string]any{
				"customer_id": cid,
				"ticket_id":   asInt64(t["id"]),
				"priority":    asString(t["priority"]),
				"issue":       asString(t["issue"]),
			})
		}
	}
	return rows
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
