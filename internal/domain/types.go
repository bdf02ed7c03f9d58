// Package domain holds the shared value types that flow through the
// protocol retrieval pipeline.
package domain

import (
	"fmt"
	"time"
)

// Intent represents the clinical intent behind a query.
type Intent string

const (
	// IntentMedicationDosing - asking for a drug dose or administration route.
	IntentMedicationDosing Intent = "medication_dosing"

	// IntentContraindication - asking when NOT to give a treatment.
	IntentContraindication Intent = "contraindication"

	// IntentProcedureSteps - asking for an ordered sequence of actions.
	IntentProcedureSteps Intent = "procedure_steps"

	// IntentGeneral - everything else.
	IntentGeneral Intent = "general"
)

// Filters constrain retrieval to a jurisdiction and/or source. Matching is
// exact, never fuzzy.
type Filters struct {
	// JurisdictionID scopes results to a single agency's protocol set.
	JurisdictionID string `json:"jurisdiction_id,omitempty"`

	// SourceState scopes results to a state-level protocol source.
	SourceState string `json:"source_state,omitempty"`
}

// Canonical returns a stable string form of the filters for cache keying.
func (f Filters) Canonical() string {
	return fmt.Sprintf("j=%s;s=%s", f.JurisdictionID, f.SourceState)
}

// NormalizedQuery is the output of query normalization. It is never mutated
// after creation.
type NormalizedQuery struct {
	// OriginalText is the raw query as the caller sent it.
	OriginalText string `json:"original_text"`

	// NormalizedText is the expanded, typo-corrected canonical form.
	NormalizedText string `json:"normalized_text"`

	// Intent is the classified clinical intent.
	Intent Intent `json:"intent"`

	// IsComplex marks queries that combine risk factors (pediatric age,
	// multiple medications, contraindication intent).
	IsComplex bool `json:"is_complex"`

	// ExtractedTerms are the medication, condition, and dosage terms found
	// in the query.
	ExtractedTerms []string `json:"extracted_terms"`

	// ProtocolID is a bare protocol identifier found in the query, if any
	// (e.g. "502" or "M-12"). Empty when absent.
	ProtocolID string `json:"protocol_id,omitempty"`
}

// HasTerm reports whether term was extracted from the query.
func (nq *NormalizedQuery) HasTerm(term string) bool {
	for _, t := range nq.ExtractedTerms {
		if t == term {
			return true
		}
	}
	return false
}

// CandidateChunk is a protocol passage returned by the vector store.
// Read-only once fetched.
type CandidateChunk struct {
	// ID is the chunk identifier.
	ID string `json:"id"`

	// Title is the protocol title (e.g. "Anaphylaxis - Adult").
	Title string `json:"title"`

	// Section is the section type within the protocol (e.g. "dosing",
	// "indications", "contraindications", "procedure").
	Section string `json:"section"`

	// Content is the passage text.
	Content string `json:"content"`

	// ProtocolNumber is the short alphanumeric protocol code.
	ProtocolNumber string `json:"protocol_number,omitempty"`

	// SourceID identifies the source document.
	SourceID string `json:"source_id"`

	// RawScore is the vector similarity score in [0,1].
	RawScore float32 `json:"raw_score"`

	// ExactMatch marks chunks found by exact protocol-identifier lookup
	// rather than vector similarity.
	ExactMatch bool `json:"exact_match,omitempty"`
}

// ScoredChunk pairs a candidate with its adjusted score after re-ranking.
type ScoredChunk struct {
	CandidateChunk

	// AdjustedScore is the score after heuristic boosts.
	AdjustedScore float32 `json:"adjusted_score"`
}

// RankedResult is the final value returned to the caller and stored in the
// result cache.
type RankedResult struct {
	// Chunks are the ranked passages, best first.
	Chunks []ScoredChunk `json:"chunks"`

	// TotalFound is the number of candidates before truncation.
	TotalFound int `json:"total_found"`

	// NormalizedText echoes the canonical query form.
	NormalizedText string `json:"normalized_text"`

	// Intent echoes the classified intent.
	Intent Intent `json:"intent"`

	// LatencyMs is the end-to-end pipeline latency.
	LatencyMs int64 `json:"latency_ms"`

	// FromCache is true when the result was served from the result cache.
	FromCache bool `json:"from_cache"`

	// Degraded is true when the result was computed under relaxed
	// thresholds because the pipeline was over its latency budget.
	Degraded bool `json:"degraded"`

	// Threshold is the similarity floor that was applied.
	Threshold float32 `json:"threshold"`

	// CreatedAt is when the result was computed.
	CreatedAt time.Time `json:"created_at"`
}

// CallerTier is the entitlement tier of the caller, supplied by an external
// auth/entitlement collaborator and treated as opaque here.
type CallerTier string

const (
	CallerFree CallerTier = "free"
	CallerPaid CallerTier = "paid"
)

// ModelTier identifies the downstream generative tier that should synthesize
// the final answer.
type ModelTier string

const (
	// TierAccuracy is the highest-accuracy tier, used for safety-critical
	// content regardless of entitlement.
	TierAccuracy ModelTier = "accuracy"

	// TierBalanced is the default tier for paid callers.
	TierBalanced ModelTier = "balanced"

	// TierFast is the cheap tier for free-tier general queries.
	TierFast ModelTier = "fast"
)
