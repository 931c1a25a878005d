package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerlens/ledgerlens/internal/models"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  models.Intent
	}{
		{name: "amount keyword", query: "what was my highest amount purchase", want: models.IntentAmount},
		{name: "amount keyword alone", query: "most expensive transaction", want: models.IntentAmount},
		{name: "date keyword", query: "what did I buy in July", want: models.IntentDate},
		{name: "date keyword last month", query: "show me transactions from last month", want: models.IntentDate},
		{name: "amount wins over date", query: "highest amount in July", want: models.IntentAmount},
		{name: "category keyword", query: "which category is this", want: models.IntentCategory},
		{name: "date wins over category", query: "categories from last week", want: models.IntentDate},
		{name: "no keyword falls back to content", query: "coffee at the corner shop", want: models.IntentContent},
		{name: "empty input is content", query: "", want: models.IntentContent},
		{name: "whitespace input is content", query: "   \t ", want: models.IntentContent},
		{name: "case insensitive", query: "HIGHEST Amount", want: models.IntentAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.query))
		})
	}
}

func TestClassifyIntentIsDeterministic(t *testing.T) {
	query := "largest grocery spend in December"

	first := ClassifyIntent(query)
	for range 10 {
		assert.Equal(t, first, ClassifyIntent(query))
	}
}

func TestClassifyIntentNeverReturnsCombined(t *testing.T) {
	queries := []string{
		"highest amount in July by category",
		"combined search",
		"everything",
	}

	for _, q := range queries {
		assert.NotEqual(t, models.IntentCombined, ClassifyIntent(q))
	}
}
