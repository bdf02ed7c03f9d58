// Package router selects the downstream generative model tier for a query.
package router

import "github.com/medicsearch/medic-search/internal/domain"

// SelectTier picks the model tier for answer synthesis. Medication dosing
// and complex queries always get the accuracy tier regardless of the
// caller's entitlement; cost optimization never applies to safety-critical
// content. Everything else routes by caller tier.
func SelectTier(nq domain.NormalizedQuery, caller domain.CallerTier) domain.ModelTier {
	if nq.Intent == domain.IntentMedicationDosing || nq.IsComplex {
		return domain.TierAccuracy
	}

	if caller == domain.CallerPaid {
		return domain.TierBalanced
	}

	return domain.TierFast
}
