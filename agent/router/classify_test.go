package router

import (
	"context"
	"testing"

	contractx "github.com/warit-san/deskmesh/agent/contract"
)

func TestRuleClassifierTagsAllIntents(t *testing.T) {
	t.Parallel()

	c, err := RuleClassifier{}.Classify(context.Background(),
		"I want to cancel my subscription and dispute a billing charge, customer id 42")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !c.Has(contractx.IntentCancellation) || !c.Has(contractx.IntentBillingDispute) {
		t.Fatalf("expected both intents, got %v", c.Intents)
	}
	if c.CustomerID != 42 {
		t.Fatalf("expected customer id 42, got %d", c.CustomerID)
	}
	if c.Confidence < 0.5 {
		t.Fatalf("keyword match should be confident, got %f", c.Confidence)
	}
}

func TestRuleClassifierReportQuerySubsumesKeywords(t *testing.T) {
	t.Parallel()

	c, err := RuleClassifier{}.Classify(context.Background(),
		"Which active customers have open tickets right now?")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(c.Intents) != 1 || c.Intents[0] != contractx.IntentOpenTicketsReport {
		t.Fatalf("expected only the report intent, got %v", c.Intents)
	}
}

func TestRuleClassifierBareIDFallsBackToLookup(t *testing.T) {
	t.Parallel()

	c, err := RuleClassifier{}.Classify(context.Background(), "id 17 please")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !c.Has(contractx.IntentCustomerLookup) {
		t.Fatalf("expected lookup fallback, got %v", c.Intents)
	}
	if c.CustomerID != 17 {
		t.Fatalf("expected id 17, got %d", c.CustomerID)
	}
}

func TestRuleClassifierNoSignalLowConfidence(t *testing.T) {
	t.Parallel()

	c, err := RuleClassifier{}.Classify(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(c.Intents) != 0 {
		t.Fatalf("expected no intents, got %v", c.Intents)
	}
	if c.Confidence >= 0.5 {
		t.Fatalf("expected low confidence, got %f", c.Confidence)
	}
}

func TestExtractCustomerID(t *testing.T) {
	t.Parallel()

	cases := map[string]int64{
		"customer id 42":        42,
		"customer 7 is calling": 7,
		"Customer #3":           3,
		"id: 99":                99,
		"no number here":        0,
	}
	for text, want := range cases {
		if got := ExtractCustomerID(text); got != want {
			t.Fatalf("ExtractCustomerID(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestParseClassificationClampsVocabulary(t *testing.T) {
	t.Parallel()

	c, err := parseClassification(
		"```json\n{\"intents\":[\"billing_dispute\",\"world_peace\"],\"customer_id\":0,\"confidence\":1.4}\n```",
		"billing issue for customer id 8")
	if err != nil {
		t.Fatalf("parseClassification() error = %v", err)
	}
	if len(c.Intents) != 1 || c.Intents[0] != contractx.IntentBillingDispute {
		t.Fatalf("invented intents must be dropped, got %v", c.Intents)
	}
	if c.Confidence != 1 {
		t.Fatalf("confidence must clamp to 1, got %f", c.Confidence)
	}
	if c.CustomerID != 8 {
		t.Fatalf("missing id must fall back to extraction, got %d", c.CustomerID)
	}
}

func TestParseClassificationUnparsableIsAmbiguous(t *testing.T) {
	t.Parallel()

	_, err := parseClassification("I think the user wants to cancel", "cancel")
	if err == nil {
		t.Fatalf("expected error for prose output")
	}
}
