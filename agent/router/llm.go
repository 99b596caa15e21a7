package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	contractx "github.com/warit-san/deskmesh/agent/contract"
)

type LLMConfig struct {
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey      string        `envconfig:"API_KEY" split_words:"true"`
	Model       string        `envconfig:"MODEL" split_words:"true"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// Enabled reports whether the configuration is complete enough to call a
// model. When false the router falls back to the rule classifier.
func (c LLMConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.Model) != ""
}

const classifySystemPrompt = `You label customer-service messages.
Reply with ONLY a JSON object, no prose, shaped as:
{"intents":["..."],"customer_id":0,"confidence":0.0}
Allowed intents: account_help, customer_lookup, cancellation, billing_dispute, open_tickets_report.
Tag every intent that applies. customer_id is the numeric id mentioned in the message, 0 when absent.
confidence is your certainty in [0,1].`

// LLMClassifier labels utterances with a chat model. Its output is clamped to
// the closed intent vocabulary; anything the model invents is dropped, and an
// unparsable completion is an ambiguity error rather than a guess.
type LLMClassifier struct {
	client *openaisdk.Client
	cfg    LLMConfig
}

var _ contractx.Classifier = (*LLMClassifier)(nil)

func NewLLMClassifier(cfg LLMConfig) (*LLMClassifier, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: llm classifier needs api key and model", contractx.ErrValidation)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	client := openaisdk.NewClient(opts...)

	return &LLMClassifier{client: &client, cfg: cfg}, nil
}

func (l *LLMClassifier) Classify(ctx context.Context, utterance string) (contractx.Classification, error) {
	cctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	completion, err := l.client.Chat.Completions.New(cctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(l.cfg.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(classifySystemPrompt),
			openaisdk.UserMessage(utterance),
		},
		Temperature: openaisdk.Float(l.cfg.Temperature),
	})
	if err != nil {
		return contractx.Classification{}, fmt.Errorf("%w: classify completion: %v", contractx.ErrInternal, err)
	}
	if len(completion.Choices) == 0 {
		return contractx.Classification{}, fmt.Errorf("%w: classify completion returned no choices", contractx.ErrInternal)
	}

	return parseClassification(completion.Choices[0].Message.Content, utterance)
}

func parseClassification(content, utterance string) (contractx.Classification, error) {
	content = strings.TrimSpace(content)
	// Models wrap JSON in fences despite instructions.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var parsed contractx.Classification
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return contractx.Classification{}, fmt.Errorf("%w: unparsable classification", contractx.ErrAmbiguous)
	}

	var intents []contractx.Intent
	for _, in := range parsed.Intents {
		if contractx.KnownIntent(in) {
			intents = append(intents, in)
		}
	}
	parsed.Intents = intents

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	if parsed.CustomerID <= 0 {
		parsed.CustomerID = ExtractCustomerID(utterance)
	}
	return parsed, nil
}
