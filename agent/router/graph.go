package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	contractx "github.com/warit-san/deskmesh/agent/contract"
)

type turnInput struct {
	ConversationID string
	// ParentTaskID is set when the turn was started by another agent's task;
	// root plan steps correlate to it.
	ParentTaskID string
	Utterance    string
}

// turnState flows through the turn graph. Once response is set the remaining
// nodes pass the state through untouched, so a clarification short-circuits
// planning and dispatch.
type turnState struct {
	conversationID string
	parentTaskID   string
	utterance      string

	class   contractx.Classification
	plan    routingPlan
	results []stepResult

	response *Response
}

func (r *Router) compileTurnGraph(ctx context.Context) (compose.Runnable[turnInput, Response], error) {
	graph := compose.NewGraph[turnInput, Response]()

	if err := graph.AddLambdaNode("validate_turn",
		compose.InvokableLambda(func(ctx context.Context, in turnInput) (*turnState, error) {
			return r.validateTurn(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_turn: %w", err)
	}

	if err := graph.AddLambdaNode("classify",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (*turnState, error) {
			return r.classify(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify: %w", err)
	}

	if err := graph.AddLambdaNode("plan",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (*turnState, error) {
			return r.plan(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node plan: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (*turnState, error) {
			return r.dispatch(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch: %w", err)
	}

	if err := graph.AddLambdaNode("aggregate",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (Response, error) {
			return r.finish(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node aggregate: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_turn"},
		{"validate_turn", "classify"},
		{"classify", "plan"},
		{"plan", "dispatch"},
		{"dispatch", "aggregate"},
		{"aggregate", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("router.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}

func (r *Router) validateTurn(in turnInput) (*turnState, error) {
	utterance := strings.TrimSpace(in.Utterance)
	if utterance == "" {
		return nil, fmt.Errorf("%w: utterance is empty", contractx.ErrValidation)
	}

	r.log.Info().Str("conversation", in.ConversationID).Msg("turn received")
	return &turnState{
		conversationID: in.ConversationID,
		parentTaskID:   in.ParentTaskID,
		utterance:      utterance,
	}, nil
}

func (r *Router) classify(ctx context.Context, st *turnState) (*turnState, error) {
	class, err := r.classifier.Classify(ctx, st.utterance)
	if err != nil {
		// An ambiguous utterance is a conversational outcome, not a transport
		// failure: the caller gets a question, never a raw error.
		if errors.Is(err, contractx.ErrAmbiguous) {
			r.log.Info().Str("conversation", st.conversationID).Msg("classification ambiguous")
			st.response = respPtr(clarificationResponse(st.conversationID,
				"I could not make sense of that. Could you rephrase what you need help with?"))
			return st, nil
		}
		return nil, fmt.Errorf("classify utterance: %w", err)
	}
	st.class = class
	r.log.Info().
		Str("conversation", st.conversationID).
		Interface("intents", class.Intents).
		Int64("customer_id", class.CustomerID).
		Float64("confidence", class.Confidence).
		Msg("turn classified")

	if class.Confidence < r.cfg.ConfidenceThreshold {
		st.response = respPtr(clarificationResponse(st.conversationID,
			"I am not sure what you need yet. Are you asking about your account, a bill, a cancellation, or a customer record?"))
	}
	return st, nil
}

func (r *Router) plan(st *turnState) (*turnState, error) {
	if st.response != nil {
		return st, nil
	}

	plan, clarify, err := buildPlan(st.class, st.utterance, r.cfg)
	if err != nil {
		// A plan conflict means the request itself is contradictory; asking
		// the user to pick beats failing the turn.
		if errors.Is(err, contractx.ErrPlanConflict) {
			r.log.Info().Str("conversation", st.conversationID).Msg("plan conflict")
			st.response = respPtr(clarificationResponse(st.conversationID,
				"Your message asks for two things I cannot order safely. Which should I handle first, the billing issue or the cancellation?"))
			return st, nil
		}
		return nil, err
	}
	if clarify != "" {
		st.response = respPtr(clarificationResponse(st.conversationID, clarify))
		return st, nil
	}

	st.plan = plan
	r.log.Info().
		Str("conversation", st.conversationID).
		Int("levels", len(plan.levels)).
		Int("steps", len(plan.steps())).
		Msg("turn planned")
	return st, nil
}

func (r *Router) dispatch(ctx context.Context, st *turnState) (*turnState, error) {
	if st.response != nil {
		return st, nil
	}

	r.log.Info().Str("conversation", st.conversationID).Msg("turn dispatching")
	st.results = r.dispatcher.run(ctx, st.conversationID, st.parentTaskID, st.plan)
	return st, nil
}

func (r *Router) finish(st *turnState) (Response, error) {
	if st.response != nil {
		r.log.Info().Str("conversation", st.conversationID).Msg("turn needs clarification")
		return *st.response, nil
	}

	r.log.Info().Str("conversation", st.conversationID).Msg("turn aggregating")
	resp := aggregate(st.conversationID, st.results)
	r.log.Info().
		Str("conversation", st.conversationID).
		Str("status", string(resp.Status)).
		Int("errors", len(resp.Errors)).
		Msg("turn responded")
	return resp, nil
}

func respPtr(r Response) *Response { return &r }
