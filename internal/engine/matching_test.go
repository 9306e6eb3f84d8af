package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintel/peermatch/internal/identifier"
	"github.com/fintel/peermatch/internal/storage"
	"github.com/fintel/peermatch/pkg/types"
)

// mockEnricher implements EntityEnricher over fixed companies.
type mockEnricher struct {
	byLEI  map[string]*types.Company
	byISIN map[string]string // isin -> lei

	manyCalls [][]string
}

func newMockEnricher() *mockEnricher {
	return &mockEnricher{
		byLEI:  make(map[string]*types.Company),
		byISIN: make(map[string]string),
	}
}

func (m *mockEnricher) add(company *types.Company, isins ...string) {
	m.byLEI[company.LEI] = company
	for _, isin := range isins {
		m.byISIN[isin] = company.LEI
	}
}

func (m *mockEnricher) GetEnriched(ctx context.Context, lei string) (*types.Company, error) {
	company, ok := m.byLEI[lei]
	if !ok {
		return nil, fmt.Errorf("%w: lei %s", storage.ErrNotFound, lei)
	}
	return company, nil
}

func (m *mockEnricher) GetEnrichedByISIN(ctx context.Context, isin string) (*types.Company, error) {
	lei, ok := m.byISIN[isin]
	if !ok {
		return nil, fmt.Errorf("%w: isin %s", storage.ErrNotFound, isin)
	}
	return m.byLEI[lei], nil
}

func (m *mockEnricher) GetEnrichedMany(ctx context.Context, isins []string) ([]*types.Company, error) {
	m.manyCalls = append(m.manyCalls, isins)
	companies := make([]*types.Company, len(isins))
	for i, isin := range isins {
		if lei, ok := m.byISIN[isin]; ok {
			companies[i] = m.byLEI[lei]
		}
	}
	return companies, nil
}

// mockIndex implements vector.Index with scripted query results.
type mockIndex struct {
	queryLEIs      []string
	queryDistances []float64
	queryErr       error

	lastQueryText string
	lastQueryK    int
	upserted      [][]*types.Company
	upsertErr     error
}

func (m *mockIndex) Upsert(ctx context.Context, companies []*types.Company) error {
	m.upserted = append(m.upserted, companies)
	return m.upsertErr
}

func (m *mockIndex) Query(ctx context.Context, text string, k int) ([]string, []float64, error) {
	m.lastQueryText = text
	m.lastQueryK = k
	if m.queryErr != nil {
		return nil, nil, m.queryErr
	}
	return m.queryLEIs, m.queryDistances, nil
}

func (m *mockIndex) Ping(ctx context.Context) error { return nil }
func (m *mockIndex) Close() error                   { return nil }

func TestFindMatches(t *testing.T) {
	enricher := newMockEnricher()
	source := unenrichedCompany("LEI_A_00000000000000", "Alpha AG")
	source.Enrich([]string{"banking"}, "bank")
	enricher.add(source, "CH0000000001")
	enricher.add(unenrichedCompany("LEI_B_00000000000000", "Beta AG"))
	enricher.add(unenrichedCompany("LEI_C_00000000000000", "Gamma AG"))

	index := &mockIndex{
		queryLEIs:      []string{"LEI_B_00000000000000", "LEI_C_00000000000000"},
		queryDistances: []float64{0.12, 0.34},
	}
	matcher := NewMatcher(enricher, index)

	// Lowercase with hyphens: normalization happens before everything else.
	companies, distances, err := matcher.FindMatches(context.Background(), "ch-0000000001", 2)
	require.NoError(t, err)

	require.Len(t, companies, 2)
	assert.Equal(t, "Beta AG", companies[0].LegalName)
	assert.Equal(t, "Gamma AG", companies[1].LegalName)
	assert.Equal(t, []float64{0.12, 0.34}, distances, "index ordering and distances pass through unmodified")

	assert.Equal(t, source.EmbeddingText(), index.lastQueryText)
	assert.Equal(t, 2, index.lastQueryK)
}

func TestFindMatchesInvalidISIN(t *testing.T) {
	matcher := NewMatcher(newMockEnricher(), &mockIndex{})

	_, _, err := matcher.FindMatches(context.Background(), "not-an-isin", 5)
	assert.ErrorIs(t, err, identifier.ErrInvalidISIN)
}

func TestFindMatchesUnknownISIN(t *testing.T) {
	matcher := NewMatcher(newMockEnricher(), &mockIndex{})

	_, _, err := matcher.FindMatches(context.Background(), "CH0000000001", 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindMatchesIndexInconsistency(t *testing.T) {
	enricher := newMockEnricher()
	enricher.add(unenrichedCompany("LEI_A_00000000000000", "Alpha AG"), "CH0000000001")

	// The index knows a LEI the identity store has never heard of.
	index := &mockIndex{
		queryLEIs:      []string{"GHOST000000000000000"},
		queryDistances: []float64{0.5},
	}
	matcher := NewMatcher(enricher, index)

	_, _, err := matcher.FindMatches(context.Background(), "CH0000000001", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexInconsistent)
	assert.Contains(t, err.Error(), "GHOST000000000000000")
}

func TestFindMatchesIndexError(t *testing.T) {
	enricher := newMockEnricher()
	enricher.add(unenrichedCompany("LEI_A_00000000000000", "Alpha AG"), "CH0000000001")

	indexErr := errors.New("connection refused")
	matcher := NewMatcher(enricher, &mockIndex{queryErr: indexErr})

	_, _, err := matcher.FindMatches(context.Background(), "CH0000000001", 1)
	assert.ErrorIs(t, err, indexErr)
}

func TestInsertEmbeddings(t *testing.T) {
	enricher := newMockEnricher()
	enricher.add(unenrichedCompany("LEI_A_00000000000000", "Alpha AG"), "CH0000000001")
	enricher.add(unenrichedCompany("LEI_B_00000000000000", "Beta AG"), "CH0000000002")

	index := &mockIndex{}
	matcher := NewMatcher(enricher, index)

	err := matcher.InsertEmbeddings(context.Background(), "ch0000000001", "CH0000000002")
	require.NoError(t, err)

	require.Len(t, index.upserted, 1)
	require.Len(t, index.upserted[0], 2)
	assert.Equal(t, "LEI_A_00000000000000", index.upserted[0][0].LEI)
	assert.Equal(t, "LEI_B_00000000000000", index.upserted[0][1].LEI)

	// Normalization happened before the batch lookup.
	require.Len(t, enricher.manyCalls, 1)
	assert.Equal(t, []string{"CH0000000001", "CH0000000002"}, enricher.manyCalls[0])
}

func TestInsertEmbeddingsDeduplicatesSharedLEI(t *testing.T) {
	enricher := newMockEnricher()
	enricher.add(unenrichedCompany("LEI_A_00000000000000", "Alpha AG"), "CH0000000001", "CH0000000002")

	index := &mockIndex{}
	matcher := NewMatcher(enricher, index)

	err := matcher.InsertEmbeddings(context.Background(), "CH0000000001", "CH0000000002")
	require.NoError(t, err)

	require.Len(t, index.upserted, 1)
	assert.Len(t, index.upserted[0], 1, "two ISINs on the same LEI upsert one document")
}

func TestInsertEmbeddingsUnknownISIN(t *testing.T) {
	enricher := newMockEnricher()
	enricher.add(unenrichedCompany("LEI_A_00000000000000", "Alpha AG"), "CH0000000001")

	index := &mockIndex{}
	matcher := NewMatcher(enricher, index)

	err := matcher.InsertEmbeddings(context.Background(), "CH0000000001", "ZZ0000000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Contains(t, err.Error(), "ZZ0000000000")
	assert.Empty(t, index.upserted, "nothing is written when any identifier fails to resolve")
}

func TestInsertEmbeddingsInvalidISIN(t *testing.T) {
	matcher := NewMatcher(newMockEnricher(), &mockIndex{})

	err := matcher.InsertEmbeddings(context.Background(), "CH0000000001", "bogus")
	assert.ErrorIs(t, err, identifier.ErrInvalidISIN)
}
