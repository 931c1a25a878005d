package models

// Intent is the classified purpose of a query. It selects which embedding
// purpose (and therefore which vector index) a retrieval runs against.
type Intent string

// Retrieval intents. IntentCombined is never inferred by the classifier;
// callers select it explicitly.
const (
	IntentContent  Intent = "content"
	IntentAmount   Intent = "amount"
	IntentDate     Intent = "date"
	IntentCategory Intent = "category"
	IntentCombined Intent = "combined"
)

// EmbeddingPurpose names one of the per-transaction embedding vectors.
// Purposes mirror intents one-to-one; keeping them as separate types stops a
// raw query intent from being used as a storage key without going through
// PurposeForIntent.
type EmbeddingPurpose string

// Embedding purposes stored per transaction.
const (
	PurposeContent  EmbeddingPurpose = "content"
	PurposeAmount   EmbeddingPurpose = "amount"
	PurposeDate     EmbeddingPurpose = "date"
	PurposeCategory EmbeddingPurpose = "category"
	PurposeCombined EmbeddingPurpose = "combined"
)

// AllPurposes lists every embedding purpose in a fixed order (used when
// generating or regenerating the full vector set for a transaction).
var AllPurposes = []EmbeddingPurpose{
	PurposeContent,
	PurposeAmount,
	PurposeDate,
	PurposeCategory,
	PurposeCombined,
}

var purposeByIntent = map[Intent]EmbeddingPurpose{
	IntentContent:  PurposeContent,
	IntentAmount:   PurposeAmount,
	IntentDate:     PurposeDate,
	IntentCategory: PurposeCategory,
	IntentCombined: PurposeCombined,
}

// PurposeForIntent maps an intent to the embedding purpose searched for it.
// The mapping is total: unknown intents fall back to the content purpose so a
// future intent can never select a missing index.
func PurposeForIntent(intent Intent) EmbeddingPurpose {
	if p, ok := purposeByIntent[intent]; ok {
		return p
	}

	return PurposeContent
}

// ParseIntent returns the Intent for a wire string, and whether it matched.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentContent, IntentAmount, IntentDate, IntentCategory, IntentCombined:
		return Intent(s), true
	}

	return "", false
}
