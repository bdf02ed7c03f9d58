// Package rerank reorders retrieved protocol chunks using lightweight
// heuristics independent of the vector score.
package rerank

import (
	"sort"
	"strings"

	"github.com/medicsearch/medic-search/internal/domain"
)

// Boost weights. Additive on top of the raw similarity score.
const (
	// titleTermBoost applies when an extracted query term appears in the
	// chunk title.
	titleTermBoost float32 = 0.12

	// sectionIntentBoost applies when the chunk's section type matches the
	// query intent.
	sectionIntentBoost float32 = 0.08

	// exactMatchBoost guarantees first position for exact-identifier hits:
	// it exceeds the highest possible non-exact adjusted score, which is a
	// raw score of 1.0 plus both other boosts.
	exactMatchBoost float32 = 1.5
)

// sectionAffinity maps query intents to the section types they favor.
var sectionAffinity = map[domain.Intent][]string{
	domain.IntentMedicationDosing: {"dosing", "medication", "dosage"},
	domain.IntentContraindication: {"contraindications", "contraindication", "precautions"},
	domain.IntentProcedureSteps:   {"procedure", "steps", "technique"},
}

// Rerank scores and reorders candidates, truncating to targetCount. Pure and
// synchronous: empty input yields an empty list, never an error. Candidates
// are never mutated; the ordering is stable for equal adjusted scores.
func Rerank(candidates []domain.CandidateChunk, nq domain.NormalizedQuery, targetCount int) []domain.ScoredChunk {
	if len(candidates) == 0 {
		return []domain.ScoredChunk{}
	}

	scored := make([]domain.ScoredChunk, len(candidates))
	for i, ch := range candidates {
		scored[i] = domain.ScoredChunk{
			CandidateChunk: ch,
			AdjustedScore:  adjustScore(ch, nq),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].AdjustedScore > scored[j].AdjustedScore
	})

	if targetCount > 0 && len(scored) > targetCount {
		scored = scored[:targetCount]
	}

	return scored
}

// adjustScore applies the heuristic boosts to one candidate.
func adjustScore(ch domain.CandidateChunk, nq domain.NormalizedQuery) float32 {
	score := ch.RawScore

	if titleMatchesTerms(ch.Title, nq.ExtractedTerms) {
		score += titleTermBoost
	}

	if sectionMatchesIntent(ch.Section, nq.Intent) {
		score += sectionIntentBoost
	}

	if ch.ExactMatch {
		score += exactMatchBoost
	}

	return score
}

// titleMatchesTerms reports whether any extracted term appears in the title.
func titleMatchesTerms(title string, terms []string) bool {
	if title == "" || len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(title)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// sectionMatchesIntent reports whether the chunk's section type is favored
// by the query intent.
func sectionMatchesIntent(section string, intent domain.Intent) bool {
	favored, ok := sectionAffinity[intent]
	if !ok || section == "" {
		return false
	}
	lower := strings.ToLower(section)
	for _, s := range favored {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
