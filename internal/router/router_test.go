package router

import (
	"testing"

	"github.com/medicsearch/medic-search/internal/domain"
)

func TestSelectTier(t *testing.T) {
	tests := []struct {
		name   string
		nq     domain.NormalizedQuery
		caller domain.CallerTier
		want   domain.ModelTier
	}{
		{
			name:   "dosing query on free tier gets accuracy",
			nq:     domain.NormalizedQuery{Intent: domain.IntentMedicationDosing},
			caller: domain.CallerFree,
			want:   domain.TierAccuracy,
		},
		{
			name:   "dosing query on paid tier gets accuracy",
			nq:     domain.NormalizedQuery{Intent: domain.IntentMedicationDosing},
			caller: domain.CallerPaid,
			want:   domain.TierAccuracy,
		},
		{
			name:   "complex query overrides caller tier",
			nq:     domain.NormalizedQuery{Intent: domain.IntentProcedureSteps, IsComplex: true},
			caller: domain.CallerFree,
			want:   domain.TierAccuracy,
		},
		{
			name:   "general query on paid tier gets balanced",
			nq:     domain.NormalizedQuery{Intent: domain.IntentGeneral},
			caller: domain.CallerPaid,
			want:   domain.TierBalanced,
		},
		{
			name:   "general query on free tier gets fast",
			nq:     domain.NormalizedQuery{Intent: domain.IntentGeneral},
			caller: domain.CallerFree,
			want:   domain.TierFast,
		},
		{
			name:   "contraindication query routes by caller when not complex",
			nq:     domain.NormalizedQuery{Intent: domain.IntentContraindication},
			caller: domain.CallerPaid,
			want:   domain.TierBalanced,
		},
		{
			name:   "unknown caller tier defaults to fast",
			nq:     domain.NormalizedQuery{Intent: domain.IntentGeneral},
			caller: domain.CallerTier("trial"),
			want:   domain.TierFast,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectTier(tt.nq, tt.caller); got != tt.want {
				t.Errorf("SelectTier() = %q, want %q", got, tt.want)
			}
		})
	}
}
