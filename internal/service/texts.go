package service

import (
	"fmt"
	"strings"

	"github.com/ledgerlens/ledgerlens/internal/models"
)

// PurposeTexts builds the per-purpose embedding inputs for a transaction.
// The rendering is deterministic so regenerating embeddings for an unchanged
// transaction produces identical provider inputs. Every purpose always gets a
// non-empty text.
func PurposeTexts(txn *models.Transaction) map[models.EmbeddingPurpose]string {
	content := contentText(txn)
	amount := amountText(txn)
	date := dateText(txn)
	category := categoryText(txn)

	return map[models.EmbeddingPurpose]string{
		models.PurposeContent:  content,
		models.PurposeAmount:   amount,
		models.PurposeDate:     date,
		models.PurposeCategory: category,
		models.PurposeCombined: strings.Join([]string{content, amount, date, category}, ". "),
	}
}

// PurposeTextsOrdered returns the texts from PurposeTexts as a slice in
// models.AllPurposes order, for batch embedding calls.
func PurposeTextsOrdered(txn *models.Transaction) []string {
	texts := PurposeTexts(txn)
	ordered := make([]string, 0, len(models.AllPurposes))

	for _, purpose := range models.AllPurposes {
		ordered = append(ordered, texts[purpose])
	}

	return ordered
}

func contentText(txn *models.Transaction) string {
	parts := []string{txn.Description}
	if txn.CounterpartyName != "" {
		parts = append(parts, txn.CounterpartyName)
	}

	parts = append(parts, txn.CounterpartyAccount)

	return strings.Join(parts, " | ")
}

func amountText(txn *models.Transaction) string {
	// Amounts are stored in minor units (cents).
	return fmt.Sprintf("%s of %d.%02d", txn.Type, txn.Amount/100, txn.Amount%100)
}

func dateText(txn *models.Transaction) string {
	return fmt.Sprintf("on %s (%s, %s %d)",
		txn.Date.Format("2006-01-02"),
		strings.ToLower(txn.Date.Weekday().String()),
		strings.ToLower(txn.Date.Month().String()),
		txn.Date.Year(),
	)
}

func categoryText(txn *models.Transaction) string {
	if txn.CategoryCode == "" {
		return "uncategorized"
	}

	return "category " + txn.CategoryCode
}
