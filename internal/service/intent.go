package service

import (
	"strings"

	"github.com/ledgerlens/ledgerlens/internal/models"
)

// Keyword sets for the heuristic query classifier. Matching is on the
// lower-cased query; the first set with a hit wins, in the order amount,
// date, category. IntentCombined is never inferred here.
var (
	amountKeywords = []string{
		"amount", "highest", "largest", "biggest", "smallest", "lowest",
		"most expensive", "cheapest", "spent", "cost", "price", "total",
		"over $", "under $", "more than", "less than",
	}

	dateKeywords = []string{
		"date", "when", "today", "yesterday", "this week", "last week",
		"this month", "last month", "this year", "last year", "recent",
		"january", "february", "march", "april", "may", "june", "july",
		"august", "september", "october", "november", "december",
	}

	categoryKeywords = []string{
		"category", "categories", "categorize", "label", "type of",
		"kind of", "grouped", "classification",
	}
)

// ClassifyIntent maps free query text to a retrieval intent. It is a pure
// function, total over all input strings: no keyword match (including empty
// or whitespace-only input) yields IntentContent, never an error. When a
// query contains keywords from several sets, the priority order above decides
// (first-match-wins, so "highest amount in July" is an amount query).
func ClassifyIntent(query string) models.Intent {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return models.IntentContent
	}

	if containsAny(q, amountKeywords) {
		return models.IntentAmount
	}

	if containsAny(q, dateKeywords) {
		return models.IntentDate
	}

	if containsAny(q, categoryKeywords) {
		return models.IntentCategory
	}

	return models.IntentContent
}

func containsAny(q string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}

	return false
}
