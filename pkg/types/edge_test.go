package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdgeKindAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    EdgeKind
		source  Kind
		target  Kind
		allowed bool
	}{
		{"person works for company", EdgeWorksFor, KindPerson, KindCompany, true},
		{"company cannot work for person", EdgeWorksFor, KindCompany, KindPerson, false},
		{"finding supersedes finding", EdgeSupersedes, KindFinding, KindFinding, true},
		{"metric supersedes metric", EdgeSupersedes, KindFinancialMetric, KindFinancialMetric, true},
		{"supersedes never across kinds", EdgeSupersedes, KindFinancialMetric, KindFinding, false},
		{"companies cannot supersede", EdgeSupersedes, KindCompany, KindCompany, false},
		{"risks cannot contradict", EdgeContradicts, KindRisk, KindRisk, false},
		{"supports finding to finding", EdgeSupports, KindFinding, KindFinding, true},
		{"company competes with company", EdgeCompetesWith, KindCompany, KindCompany, true},
		{"company invests in company", EdgeInvestsIn, KindCompany, KindCompany, true},
		{"metric extracted from episode", EdgeExtractedFrom, KindFinancialMetric, KindEpisode, true},
		{"episode mentions person", EdgeMentions, KindEpisode, KindPerson, true},
		{"mentions never entity to episode", EdgeMentions, KindPerson, KindEpisode, false},
		{"duplicate within same kind", EdgeIsDuplicateOf, KindCompany, KindCompany, true},
		{"duplicate across kinds rejected", EdgeIsDuplicateOf, KindCompany, KindPerson, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, EdgeKindAllowed(tt.kind, tt.source, tt.target))
		})
	}
}

func TestEdgeValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid edge", func(t *testing.T) {
		edge := &Edge{
			ID:         "e-1",
			Kind:       EdgeWorksFor,
			SourceID:   "p-1",
			TargetID:   "c-1",
			SourceKind: KindPerson,
			TargetKind: KindCompany,
			GroupID:    "org_deal",
		}
		assert.NoError(t, edge.Validate())
	})

	t.Run("disallowed pair is a validation error", func(t *testing.T) {
		edge := &Edge{
			ID:         "e-2",
			Kind:       EdgeSupersedes,
			SourceID:   "c-1",
			TargetID:   "c-2",
			SourceKind: KindCompany,
			TargetKind: KindCompany,
			GroupID:    "org_deal",
		}
		err := edge.Validate()
		assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
	})

	t.Run("missing group id", func(t *testing.T) {
		edge := &Edge{
			Kind:       EdgeWorksFor,
			SourceID:   "p-1",
			TargetID:   "c-1",
			SourceKind: KindPerson,
			TargetKind: KindCompany,
		}
		assert.ErrorIs(t, edge.Validate(), ErrEmptyGroupID)
	})
}
