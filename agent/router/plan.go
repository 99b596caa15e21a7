package router

import (
	"fmt"
	"strings"

	contractx "github.com/warit-san/deskmesh/agent/contract"
)

// planStep is one task specification inside a routing plan. Steps in the same
// level are independent and dispatched concurrently; a gated step only runs
// when its gate step succeeded.
type planStep struct {
	id      string
	kind    contractx.TaskKind
	role    contractx.AgentRole
	payload contractx.TaskPayload

	// required marks a load-bearing step: its failure fails the whole turn.
	required bool
	// gate names an earlier step that must have succeeded.
	gate string
	// carryFrom names earlier steps whose reply data is injected into this
	// step's payload context before dispatch.
	carryFrom []string
	// fanOut expands a follow-up level with one step per customer in this
	// step's result.
	fanOut *fanOutSpec
}

type fanOutSpec struct {
	kind contractx.TaskKind
}

type routingPlan struct {
	levels [][]planStep
}

func (p routingPlan) empty() bool { return len(p.levels) == 0 }

// steps returns all steps in plan order.
func (p routingPlan) steps() []planStep {
	var out []planStep
	for _, level := range p.levels {
		out = append(out, level...)
	}
	return out
}

const (
	stepBillingReview   = "billing_review"
	stepCancellation    = "cancellation_review"
	stepCustomerContext = "customer_context"
	stepTriage          = "triage"
	stepListActive      = "list_active_customers"
	stepFormatReport    = "format_report"
)

// buildPlan turns a classification into an executable plan. A non-empty
// clarify string means the router should ask instead of dispatch.
func buildPlan(class contractx.Classification, utterance string, cfg Config) (routingPlan, string, error) {
	if class.Has(contractx.IntentOpenTicketsReport) {
		return reportPlan(cfg), "", nil
	}

	if class.Has(contractx.IntentCancellation) && class.Has(contractx.IntentBillingDispute) {
		return conflictPlan(class, utterance, cfg)
	}

	var (
		first  []planStep
		second []planStep
	)
	addedLookup := false
	addedTriage := false

	addLookup := func(required bool) {
		if addedLookup || class.CustomerID <= 0 {
			return
		}
		addedLookup = true
		first = append(first, planStep{
			id:       stepCustomerContext,
			kind:     contractx.TaskGetCustomer,
			role:     contractx.RoleData,
			payload:  contractx.TaskPayload{CustomerID: class.CustomerID},
			required: required,
		})
	}
	addTriage := func(gate string, carry ...string) {
		if addedTriage {
			return
		}
		addedTriage = true
		step := planStep{
			id:        stepTriage,
			kind:      contractx.TaskTriage,
			role:      contractx.RoleSupport,
			payload:   contractx.TaskPayload{Text: utterance, CustomerID: class.CustomerID},
			gate:      gate,
			carryFrom: carry,
		}
		if gate == "" {
			first = append(first, step)
		} else {
			second = append(second, step)
		}
	}

	for _, intent := range class.Intents {
		switch intent {
		case contractx.IntentAccountHelp:
			if class.CustomerID > 0 {
				// Support advice depends on the authoritative record.
				addLookup(true)
				addTriage(stepCustomerContext, stepCustomerContext)
			} else {
				addTriage("")
			}
		case contractx.IntentCancellation, contractx.IntentBillingDispute:
			addTriage("")
			addLookup(false)
		case contractx.IntentCustomerLookup:
			if class.CustomerID <= 0 {
				return routingPlan{}, "I can look that up, but I need a customer id. Which customer is this about?", nil
			}
			addLookup(true)
		}
	}

	if len(first) == 0 && len(second) == 0 {
		return routingPlan{}, "Tell me a bit more about what you need (account help, billing, cancellation, or a customer lookup).", nil
	}

	plan := routingPlan{}
	plan.levels = append(plan.levels, first)
	if len(second) > 0 {
		plan.levels = append(plan.levels, second)
	}
	return plan, "", validatePlan(plan)
}

// conflictPlan resolves the cancellation/billing contradiction by the
// configured precedence: the heavier intent's step runs first and gates the
// other. Equal weights are an unresolved conflict and short-circuit to a
// clarification instead of guessing.
func conflictPlan(class contractx.Classification, utterance string, cfg Config) (routingPlan, string, error) {
	billingWeight := cfg.Precedence[contractx.IntentBillingDispute]
	cancelWeight := cfg.Precedence[contractx.IntentCancellation]
	if billingWeight == cancelWeight {
		return routingPlan{}, "", fmt.Errorf("%w: cancellation and billing dispute carry equal precedence", contractx.ErrPlanConflict)
	}

	if class.CustomerID <= 0 {
		// Without an identity there is nothing to verify; support triages
		// both topics in one conversation turn.
		plan := routingPlan{levels: [][]planStep{{{
			id:      stepTriage,
			kind:    contractx.TaskTriage,
			role:    contractx.RoleSupport,
			payload: contractx.TaskPayload{Text: utterance},
		}}}}
		return plan, "", validatePlan(plan)
	}

	review := planStep{
		id:       stepBillingReview,
		kind:     contractx.TaskGetCustomer,
		role:     contractx.RoleData,
		payload:  contractx.TaskPayload{CustomerID: class.CustomerID},
		required: true,
	}
	resolve := planStep{
		id:        stepCancellation,
		kind:      contractx.TaskTriage,
		role:      contractx.RoleSupport,
		payload:   contractx.TaskPayload{Text: utterance, CustomerID: class.CustomerID},
		carryFrom: []string{stepBillingReview},
	}

	var plan routingPlan
	if billingWeight > cancelWeight {
		resolve.gate = stepBillingReview
		plan.levels = [][]planStep{{review}, {resolve}}
	} else {
		review.gate = stepCancellation
		review.required = false
		resolve.carryFrom = nil
		plan.levels = [][]planStep{{resolve}, {review}}
	}
	return plan, "", validatePlan(plan)
}

func reportPlan(cfg Config) routingPlan {
	list := planStep{
		id:       stepListActive,
		kind:     contractx.TaskListCustomers,
		role:     contractx.RoleData,
		payload:  contractx.TaskPayload{Status: "active", Limit: cfg.MaxFanOut},
		required: true,
		fanOut:   &fanOutSpec{kind: contractx.TaskCustomerHistory},
	}
	format := planStep{
		id:   stepFormatReport,
		kind: contractx.TaskFormatReport,
		role: contractx.RoleSupport,
		gate: stepListActive,
	}
	return routingPlan{levels: [][]planStep{{list}, {format}}}
}

// validatePlan checks every step against the capability table, so an
// unresolvable target role is a planning error and never a messaging-layer
// surprise.
func validatePlan(plan routingPlan) error {
	seen := map[string]bool{}
	for _, step := range plan.steps() {
		if strings.TrimSpace(step.id) == "" {
			return fmt.Errorf("%w: plan step without id", contractx.ErrValidation)
		}
		if seen[step.id] {
			return fmt.Errorf("%w: duplicate plan step %q", contractx.ErrValidation, step.id)
		}
		seen[step.id] = true

		role, ok := contractx.ResolveRole(step.kind)
		if !ok {
			return fmt.Errorf("%w: no agent accepts task kind %q", contractx.ErrValidation, step.kind)
		}
		if role != step.role {
			return fmt.Errorf("%w: task kind %q belongs to role %q, planned for %q", contractx.ErrValidation, step.kind, role, step.role)
		}
		if step.gate != "" && !seen[step.gate] {
			return fmt.Errorf("%w: step %q gated on unknown or later step %q", contractx.ErrValidation, step.id, step.gate)
		}
	}
	return nil
}
