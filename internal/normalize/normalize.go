// Package normalize rewrites free-text protocol queries into an expanded,
// typo-corrected canonical form with derived clinical metadata.
package normalize

import (
	"strings"
	"unicode"

	"github.com/medicsearch/medic-search/internal/domain"
)

// Normalize converts raw query text into a NormalizedQuery. It is
// deterministic, performs no I/O, and never fails: input that trims to an
// empty string yields a general-intent query with the trimmed text.
func Normalize(text string) domain.NormalizedQuery {
	trimmed := strings.TrimSpace(text)

	nq := domain.NormalizedQuery{
		OriginalText:   text,
		NormalizedText: trimmed,
		Intent:         domain.IntentGeneral,
		ExtractedTerms: []string{},
	}
	if trimmed == "" {
		return nq
	}

	normalized := collapseWhitespace(strings.ToLower(trimmed))
	normalized = expandAbbreviations(normalized)
	normalized = correctTypos(normalized)

	nq.NormalizedText = normalized
	nq.ExtractedTerms = extractTerms(normalized)
	nq.ProtocolID = extractProtocolID(normalized)
	nq.Intent = classifyIntent(normalized)
	nq.IsComplex = isComplex(normalized, nq.Intent, nq.ExtractedTerms)

	return nq
}

// collapseWhitespace reduces runs of whitespace to single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// expandAbbreviations replaces domain shorthand with full clinical terms,
// longest abbreviation first.
func expandAbbreviations(s string) string {
	for _, p := range abbreviationPatterns {
		s = p.re.ReplaceAllString(s, p.expansion)
	}
	return s
}

// correctTypos fixes high-frequency misspellings, whole-word only.
func correctTypos(s string) string {
	words := strings.Fields(s)
	changed := false
	for i, w := range words {
		bare := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if fixed, ok := TypoCorrections[bare]; ok {
			words[i] = strings.Replace(w, bare, fixed, 1)
			changed = true
		}
	}
	if !changed {
		return s
	}
	return strings.Join(words, " ")
}

// extractTerms collects medication names, condition names, and dosage
// expressions present in the normalized text. Order is deterministic:
// medications, then conditions, then dosages, each in table order.
func extractTerms(normalized string) []string {
	terms := make([]string, 0, 4)
	seen := make(map[string]bool)

	add := func(t string) {
		if !seen[t] {
			terms = append(terms, t)
			seen[t] = true
		}
	}

	for _, med := range MedicationTerms {
		if containsWord(normalized, med) {
			add(med)
		}
	}

	for _, cond := range ConditionTerms {
		if containsWord(normalized, cond) {
			add(cond)
		}
	}

	for _, dose := range dosagePattern.FindAllString(normalized, -1) {
		add(collapseWhitespace(dose))
	}

	return terms
}

// extractProtocolID returns the first bare protocol identifier token in the
// query, skipping numbers that are part of a dosage expression.
func extractProtocolID(normalized string) string {
	tokens := strings.Fields(normalized)
	for i, tok := range tokens {
		if !protocolIDPattern.MatchString(tok) {
			continue
		}
		// A number followed by a unit is a dose, not an identifier.
		if i+1 < len(tokens) && unitSuffixPattern.MatchString(tokens[i+1]) {
			continue
		}
		return strings.ToUpper(tok)
	}
	return ""
}

// classifyIntent applies the intent rules in priority order: dosing beats
// contraindication beats procedure steps beats general.
func classifyIntent(normalized string) domain.Intent {
	hasDose := dosagePattern.MatchString(normalized) || strings.Contains(normalized, "dose") ||
		strings.Contains(normalized, "dosing") || strings.Contains(normalized, "dosage")
	hasMedication := false
	for _, med := range MedicationTerms {
		if containsWord(normalized, med) {
			hasMedication = true
			break
		}
	}
	if hasDose || hasMedication {
		return domain.IntentMedicationDosing
	}
	if containsAny(normalized, contraindicationVocab) {
		return domain.IntentContraindication
	}
	if containsAny(normalized, procedureVocab) {
		return domain.IntentProcedureSteps
	}
	return domain.IntentGeneral
}

// isComplex is true when two or more complexity factors hold: a pediatric
// age indicator, multiple extracted medications, or contraindication intent.
func isComplex(normalized string, intent domain.Intent, terms []string) bool {
	factors := 0

	if containsAny(normalized, pediatricVocab) || agePattern.MatchString(normalized) {
		factors++
	}

	meds := 0
	for _, t := range terms {
		if isMedication(t) {
			meds++
		}
	}
	if meds >= 2 {
		factors++
	}

	if intent == domain.IntentContraindication {
		factors++
	}

	return factors >= 2
}

func isMedication(term string) bool {
	for _, med := range MedicationTerms {
		if term == med {
			return true
		}
	}
	return false
}

// containsWord reports whether phrase appears in s on word boundaries.
func containsWord(s, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordRune(rune(s[start-1]))
		afterOK := end == len(s) || !isWordRune(rune(s[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
