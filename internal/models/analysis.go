package models

import "time"

// TransactionWithScore is one similarity retrieval hit: a transaction
// snapshot plus its similarity score (1 - cosine distance, in [0,1]).
// Produced per request and never persisted.
type TransactionWithScore struct {
	Transaction Transaction `json:"transaction"`
	Score       float64     `json:"score"`
}

// DriftRow is one current-window transaction whose counterparty did not
// appear in the historical window. FirstSeenAt is the earliest date that
// counterparty appears within the current window.
type DriftRow struct {
	Transaction Transaction `json:"transaction"`
	FirstSeen   bool        `json:"first_seen"`
	FirstSeenAt time.Time   `json:"first_seen_at"`
}

// Severity grades how far outside the baseline an anomalous amount is.
type Severity string

// Severity levels.
const (
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// BaselineStatus says which rule produced an anomaly result.
type BaselineStatus string

// Baseline statuses. BaselineInsufficient marks counterparties with no
// historical samples at all; they are reported, never silently dropped.
const (
	BaselineStdDev       BaselineStatus = "stddev"
	BaselineFallback     BaselineStatus = "mean_fallback"
	BaselineInsufficient BaselineStatus = "insufficient_data"
)

// AnomalyRow is one anomaly detector result: a current-window transaction
// with its deviation ratio, severity, and the baseline it was judged against.
type AnomalyRow struct {
	Transaction Transaction         `json:"transaction"`
	Flagged     bool                `json:"flagged"`
	Ratio       float64             `json:"ratio"`
	Severity    Severity            `json:"severity,omitempty"`
	Baseline    BaselineStatus      `json:"baseline"`
	Profile     CounterpartyProfile `json:"profile"`
}

// CounterpartyProfile is the per-counterparty statistical baseline computed
// over a lookback window. Derived per request, never cached or persisted.
type CounterpartyProfile struct {
	Counterparty string  `json:"counterparty"`
	SampleCount  int64   `json:"sample_count"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Min          int64   `json:"min"`
	Max          int64   `json:"max"`
}
