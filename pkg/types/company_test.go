package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCompany() *Company {
	return &Company{
		LEI:                "506700GE1G29325QX363",
		RegistrationStatus: "ISSUED",
		EntityStatus:       "ACTIVE",
		LegalName:          "UBS Group AG",
		City:               "Zurich",
		Country:            "CH",
		Category:           "GENERAL",
		State:              EnrichmentNotTried,
	}
}

func TestEmbeddingTextTemplates(t *testing.T) {
	tests := []struct {
		name        string
		description string
		labels      []string
		want        string
	}{
		{
			name:        "description and labels",
			description: "multinational investment bank",
			labels:      []string{"banking", "financial services"},
			want:        "UBS Group AG is a multinational investment bank, located in Zurich, CH. It belongs in banking, financial services.",
		},
		{
			name:        "description only",
			description: "multinational investment bank",
			want:        "UBS Group AG is a multinational investment bank, located in Zurich, CH.",
		},
		{
			name:   "labels only",
			labels: []string{"banking"},
			want:   "Company UBS Group AG, located in Zurich, CH. It belongs in banking.",
		},
		{
			name: "neither",
			want: "Risk characteristics for company UBS Group AG. Located in Zurich, CH. Category: GENERAL.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			company := testCompany()
			company.Description = tt.description
			company.SectorLabels = tt.labels
			assert.Equal(t, tt.want, company.EmbeddingText())
		})
	}
}

func TestEmbeddingTextDeterministic(t *testing.T) {
	company := testCompany()
	company.Description = "bank"
	company.SectorLabels = []string{"banking", "insurance"}

	first := company.EmbeddingText()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, company.EmbeddingText())
	}
}

func TestHasSectorData(t *testing.T) {
	company := testCompany()
	assert.False(t, company.HasSectorData())

	company.Description = "bank"
	assert.True(t, company.HasSectorData())

	company.Description = ""
	company.SectorLabels = []string{"banking"}
	assert.True(t, company.HasSectorData())
}

func TestEnrichIsMonotonic(t *testing.T) {
	company := testCompany()
	assert.True(t, company.NeedsEnrichment())

	company.Enrich([]string{"banking"}, "multinational investment bank")
	assert.True(t, company.HasSectorData())
	assert.Equal(t, EnrichmentEnriched, company.State)
	assert.False(t, company.NeedsEnrichment())

	// Enriching again keeps sector data present.
	company.Enrich([]string{"insurance"}, "insurer")
	assert.True(t, company.HasSectorData())
	assert.Equal(t, EnrichmentEnriched, company.State)
}

func TestNeedsEnrichmentTriState(t *testing.T) {
	company := testCompany()

	// Never tried: query it.
	company.State = EnrichmentNotTried
	assert.True(t, company.NeedsEnrichment())

	// Empty state column from a legacy row behaves like not tried.
	company.State = ""
	assert.True(t, company.NeedsEnrichment())

	// A confirmed no-match is never re-queried.
	company.State = EnrichmentTriedEmpty
	assert.False(t, company.NeedsEnrichment())

	// Sector data always wins over state.
	company.State = EnrichmentNotTried
	company.SectorLabels = []string{"banking"}
	assert.False(t, company.NeedsEnrichment())
}
