// Package models defines the domain types shared across repositories, services, and handlers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType determines the sign convention of Amount at presentation time.
type TransactionType string

// Transaction type constants.
const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

// LabelUncategorized is the sentinel label for transactions no category could be assigned to.
const LabelUncategorized = "Uncategorized"

// Transaction represents one financial transaction row.
// Amount is in minor currency units (cents); TransactionType carries the direction.
type Transaction struct {
	ID                  uuid.UUID       `json:"id"`
	Description         string          `json:"description"`
	Amount              int64           `json:"amount"`
	Type                TransactionType `json:"type"`
	Date                time.Time       `json:"date"`
	CounterpartyAccount string          `json:"counterparty_account"`
	CounterpartyName    string          `json:"counterparty_name"`
	CategoryCode        string          `json:"category_code"`
	Label               string          `json:"label"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TransactionFilter narrows window queries for the drift and anomaly detectors.
// Zero values mean "no filter" for that field.
type TransactionFilter struct {
	Counterparty string          `json:"counterparty,omitempty"`
	Type         TransactionType `json:"type,omitempty"`
	MinAmount    *int64          `json:"min_amount,omitempty"`
	MaxAmount    *int64          `json:"max_amount,omitempty"`
}
