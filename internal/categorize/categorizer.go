// Package categorize assigns spending categories to persisted
// transactions by matching keywords against the counterparty
// description.
package categorize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avolkov/finsync/internal/domain"
	"github.com/avolkov/finsync/internal/statestore"
	"github.com/rs/zerolog"
)

// defaultBatchLen bounds how many assignments go to the writer in one
// call; each batch also refreshes the status key's TTL.
const defaultBatchLen = 500

// Rule maps description keywords to one category. Keywords are matched
// case-insensitively as substrings; the first matching rule wins.
type Rule struct {
	CategoryID string
	Keywords   []string
}

// DefaultRules covers the common spending categories. Descriptions that
// match nothing stay uncategorized and are retried on the next sync.
var DefaultRules = []Rule{
	{CategoryID: "groceries", Keywords: []string{"mart", "market", "grocery", "supermarket"}},
	{CategoryID: "dining", Keywords: []string{"restaurant", "cafe", "coffee", "kitchen", "burger", "pizza"}},
	{CategoryID: "transport", Keywords: []string{"taxi", "metro", "bus", "rail", "fuel", "parking"}},
	{CategoryID: "utilities", Keywords: []string{"electric", "gas ", "water", "telecom", "internet"}},
	{CategoryID: "salary", Keywords: []string{"salary", "payroll", "wages"}},
	{CategoryID: "transfer", Keywords: []string{"transfer", "wire", "remittance"}},
}

// CategoryWriter persists category assignments for a batch of records.
type CategoryWriter interface {
	UpdateCategories(ctx context.Context, records []domain.TransactionRecord) error
}

// RuleCategorizer is a keyword-rule implementation of the pipeline's
// Categorizer seam. It refreshes the sync status key's TTL while
// working so a long classification run does not let the key expire
// under an in-flight pipeline.
type RuleCategorizer struct {
	rules    []Rule
	writer   CategoryWriter
	state    statestore.Store
	keyTTL   time.Duration
	batchLen int
	log      zerolog.Logger
}

// NewRuleCategorizer creates a categorizer with the given rules. A nil
// rules slice falls back to DefaultRules.
func NewRuleCategorizer(rules []Rule, writer CategoryWriter, state statestore.Store, keyTTL time.Duration, log zerolog.Logger) *RuleCategorizer {
	if rules == nil {
		rules = DefaultRules
	}
	return &RuleCategorizer{
		rules:    rules,
		writer:   writer,
		state:    state,
		keyTTL:   keyTTL,
		batchLen: defaultBatchLen,
		log:      log,
	}
}

// Categorize assigns a category to each record whose description matches
// a rule and writes the assignments back in batches. The statusKey's TTL
// is refreshed after every batch.
func (c *RuleCategorizer) Categorize(ctx context.Context, statusKey string, records []domain.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	matched := 0
	for i := range records {
		if id, ok := c.match(records[i].Description); ok {
			records[i].CategoryID = &id
			matched++
		}
	}

	for start := 0; start < len(records); start += c.batchLen {
		end := start + c.batchLen
		if end > len(records) {
			end = len(records)
		}
		if err := c.writer.UpdateCategories(ctx, records[start:end]); err != nil {
			return fmt.Errorf("Categorize: writing batch: %w", err)
		}
		if err := c.state.SetStatus(ctx, statusKey, statestore.StatusClassifying, c.keyTTL); err != nil {
			return fmt.Errorf("Categorize: refreshing %s: %w", statusKey, err)
		}
	}

	c.log.Info().
		Str("key", statusKey).
		Int("records", len(records)).
		Int("matched", matched).
		Msg("Categorization completed")
	return nil
}

// match returns the category for the first rule with a keyword found in
// the description.
func (c *RuleCategorizer) match(description string) (string, bool) {
	desc := strings.ToLower(description)
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(desc, kw) {
				return rule.CategoryID, true
			}
		}
	}
	return "", false
}
