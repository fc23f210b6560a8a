package hints

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSelector(t *testing.T) *Selector {
	t.Helper()
	s, err := NewSelector()
	require.NoError(t, err)
	return s
}

func TestDetectCategory(t *testing.T) {
	t.Parallel()
	s := newSelector(t)

	tests := []struct {
		filename string
		want     Category
	}{
		{"Q3_Financial_Report.xlsx", CategoryFinancial},
		{"NDA_Acme.pdf", CategoryLegal},
		{"notes.txt", CategoryGeneral},
		{"Acme_10-K_2024.pdf", CategoryFinancial},
		{"master-services-agreement.docx", CategoryLegal},
		{"org_chart_2025.pptx", CategoryOperational},
		{"competitor-landscape.pdf", CategoryMarket},
		{"EBITDA-bridge.xlsx", CategoryFinancial},
		{"", CategoryGeneral},
		// Keywords match whole tokens only: "Brandable" embeds "nda" and
		// "release" embeds "lease", neither should classify as legal.
		{"Brandable.pdf", CategoryGeneral},
		{"press_release.txt", CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := s.DetectCategory(DocumentMeta{Filename: tt.filename})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectCategoryPriorityOrder(t *testing.T) {
	t.Parallel()
	s := newSelector(t)

	// A filename matching both financial and legal keywords classifies as
	// financial: first matching category in the fixed order wins.
	got := s.DetectCategory(DocumentMeta{Filename: "financial_terms_of_agreement.pdf"})
	assert.Equal(t, CategoryFinancial, got)
}

func TestDetectCategoryIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	s := newSelector(t)

	assert.Equal(t, CategoryLegal, s.DetectCategory(DocumentMeta{Filename: "nda_acme.PDF"}))
	assert.Equal(t, CategoryLegal, s.DetectCategory(DocumentMeta{Filename: "NDA_ACME.pdf"}))
}

func TestBuildHints(t *testing.T) {
	t.Parallel()
	s := newSelector(t)

	t.Run("category guidance with file context", func(t *testing.T) {
		meta := DocumentMeta{Filename: "Q3_Financial_Report.xlsx"}
		text := s.BuildHints(CategoryFinancial, meta)
		assert.Contains(t, text, "net and gross")
		assert.Contains(t, text, "Q3_Financial_Report.xlsx")
		assert.Contains(t, text, "xlsx")
	})

	t.Run("explicit format wins over extension", func(t *testing.T) {
		meta := DocumentMeta{Filename: "scan_0042.pdf", Format: "scanned image"}
		text := s.BuildHints(CategoryGeneral, meta)
		assert.Contains(t, text, "scanned image")
	})

	t.Run("unknown category falls back to general", func(t *testing.T) {
		text := s.BuildHints(Category("unheard-of"), DocumentMeta{})
		general := s.BuildHints(CategoryGeneral, DocumentMeta{})
		assert.Equal(t, general, text)
	})

	t.Run("deterministic", func(t *testing.T) {
		meta := DocumentMeta{Filename: "lease.pdf"}
		a := s.BuildHints(CategoryLegal, meta)
		b := s.BuildHints(CategoryLegal, meta)
		assert.Equal(t, a, b)
		assert.False(t, strings.Contains(a, "\x00"))
	})
}
