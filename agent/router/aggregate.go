package router

import (
	"fmt"
	"strings"

	contractx "github.com/warit-san/deskmesh/agent/contract"
)

// Response is the router's answer for one conversation turn.
type Response struct {
	ConversationID     string                      `json:"conversation_id"`
	Status             contractx.TaskStatus        `json:"status"`
	Reply              string                      `json:"reply"`
	NeedsClarification bool                        `json:"needs_clarification,omitempty"`
	Errors             []contractx.ErrorDescriptor `json:"errors,omitempty"`
}

// aggregate merges step outcomes in plan order, so the final reply text does
// not depend on which concurrent step finished first. A failed required step
// fails the turn; any other failure, skip or timeout degrades it to partial.
func aggregate(conversationID string, results []stepResult) Response {
	resp := Response{
		ConversationID: conversationID,
		Status:         contractx.StatusSuccess,
	}

	var sections []string
	for _, res := range results {
		switch {
		case res.skipped:
			resp.Status = worst(resp.Status, contractx.StatusPartial)
			if res.desc != nil {
				resp.Errors = append(resp.Errors, *res.desc)
			}
			sections = append(sections, fmt.Sprintf("The %s step was skipped because a step it depends on did not succeed.", humanStep(res.step.id)))

		case res.desc != nil:
			resp.Errors = append(resp.Errors, *res.desc)
			if res.step.required {
				resp.Status = contractx.StatusFailure
			} else {
				resp.Status = worst(resp.Status, contractx.StatusPartial)
			}
			sections = append(sections, failureText(res.step, *res.desc))

		case res.reply.Failed():
			resp.Errors = append(resp.Errors, res.reply.Errors...)
			if res.step.required {
				resp.Status = contractx.StatusFailure
			} else {
				resp.Status = worst(resp.Status, contractx.StatusPartial)
			}
			desc := contractx.ErrorDescriptor{Kind: contractx.KindInternal, Message: "step failed"}
			if first := res.reply.FirstError(); first != nil {
				desc = *first
			}
			sections = append(sections, failureText(res.step, desc))

		default:
			if res.reply.Status == contractx.StatusPartial {
				resp.Status = worst(resp.Status, contractx.StatusPartial)
				resp.Errors = append(resp.Errors, res.reply.Errors...)
			}
			if text := successText(res); text != "" {
				sections = append(sections, text)
			}
		}
	}

	if len(results) == 0 {
		resp.Status = contractx.StatusFailure
		sections = append(sections, "No step produced a result for this request.")
	} else if len(sections) == 0 {
		sections = append(sections, "Everything you asked for was handled.")
	}
	resp.Reply = strings.Join(sections, "\n\n")
	return resp
}

func worst(current, next contractx.TaskStatus) contractx.TaskStatus {
	if current == contractx.StatusFailure || next == contractx.StatusFailure {
		return contractx.StatusFailure
	}
	if current == contractx.StatusPartial || next == contractx.StatusPartial {
		return contractx.StatusPartial
	}
	return contractx.StatusSuccess
}

func successText(res stepResult) string {
	if res.reply.Text != "" {
		return res.reply.Text
	}
	switch res.step.kind {
	case contractx.TaskGetCustomer:
		return renderCustomer(res.reply.Data)
	case contractx.TaskListCustomers, contractx.TaskCustomerHistory:
		// Intermediate results feed later steps; they have no user-facing
		// prose of their own.
		return ""
	default:
		return ""
	}
}

func renderCustomer(data map[string]any) string {
	c, ok := data["customer"].(map[string]any)
	if !ok {
		return ""
	}
	return fmt.Sprintf("Customer %d: %s <%s> (status %s, plan %s).",
		asInt64(c["id"]), asString(c["name"]), asString(c["email"]),
		asString(c["status"]), asString(c["plan"]))
}

func failureText(step planStep, desc contractx.ErrorDescriptor) string {
	switch desc.Kind {
	case contractx.KindNotFound:
		return fmt.Sprintf("I could not find the record the %s step needed: %s.", humanStep(step.id), desc.Message)
	case contractx.KindTimeout:
		return fmt.Sprintf("The %s step did not finish in time; the rest of your request was still handled.", humanStep(step.id))
	case contractx.KindValidation:
		return fmt.Sprintf("The %s step was rejected: %s.", humanStep(step.id), desc.Message)
	default:
		return fmt.Sprintf("The %s step failed on our side; please try again.", humanStep(step.id))
	}
}

func humanStep(id string) string {
	return strings.ReplaceAll(id, "_", " ")
}

func clarificationResponse(conversationID, question string) Response {
	return Response{
		ConversationID:     conversationID,
		Status:             contractx.StatusPartial,
		Reply:              question,
		NeedsClarification: true,
	}
}
