package router

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	contractx "github.com/warit-san/deskmesh/agent/contract"
)

var (
	customerIDPattern = regexp.MustCompile(`(?i)\bcustomer\s*(?:id)?\s*[:#]?\s*(\d+)\b`)
	bareIDPattern     = regexp.MustCompile(`(?i)\bid\s*[:#]?\s*(\d+)\b`)
)

// intentKeywords drives the rule classifier: an intent is tagged when any of
// its phrases occurs in the lowercased utterance.
var intentKeywords = map[contractx.Intent][]string{
	contractx.IntentCancellation:   {"cancel", "cancellation", "subscription"},
	contractx.IntentBillingDispute: {"billing", "charge", "charged", "invoice", "payment", "refund"},
	contractx.IntentAccountHelp:    {"account", "upgrade", "login", "access"},
	contractx.IntentCustomerLookup: {"customer information", "look up customer", "get customer", "ticket history"},
}

// RuleClassifier is the deterministic default classifier: keyword matching
// plus customer-id extraction. It is pure with respect to the utterance.
type RuleClassifier struct{}

var _ contractx.Classifier = RuleClassifier{}

func (RuleClassifier) Classify(ctx context.Context, utterance string) (contractx.Classification, error) {
	t := strings.ToLower(strings.TrimSpace(utterance))

	c := contractx.Classification{
		CustomerID: ExtractCustomerID(utterance),
	}

	// The report query is a dedicated multi-step scenario; it subsumes the
	// keyword intents its phrasing would otherwise trip.
	if strings.Contains(t, "active customers") && strings.Contains(t, "open ticket") {
		c.Intents = []contractx.Intent{contractx.IntentOpenTicketsReport}
		c.Confidence = 0.9
		return c, nil
	}

	for _, intent := range []contractx.Intent{
		contractx.IntentCancellation,
		contractx.IntentBillingDispute,
		contractx.IntentAccountHelp,
		contractx.IntentCustomerLookup,
	} {
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(t, kw) {
				c.Intents = append(c.Intents, intent)
				break
			}
		}
	}

	switch {
	case len(c.Intents) > 0:
		c.Confidence = 0.9
	case c.CustomerID > 0:
		// An id with no recognizable ask still routes to a record lookup.
		c.Intents = []contractx.Intent{contractx.IntentCustomerLookup}
		c.Confidence = 0.7
	default:
		c.Confidence = 0.1
	}

	return c, nil
}

// ExtractCustomerID pulls a customer id out of free text, 0 when absent.
func ExtractCustomerID(text string) int64 {
	for _, pattern := range []*regexp.Regexp{customerIDPattern, bareIDPattern} {
		if m := pattern.FindStringSubmatch(text); m != nil {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err == nil && id > 0 {
				return id
			}
		}
	}
	return 0
}
