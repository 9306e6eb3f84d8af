package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fintel/peermatch/internal/identifier"
	"github.com/fintel/peermatch/internal/storage"
	"github.com/fintel/peermatch/internal/vector"
	"github.com/fintel/peermatch/pkg/types"
)

// ErrIndexInconsistent indicates that the similarity index returned an
// identifier with no corresponding identity-store record. The two stores
// are independently writable, so this is a data-integrity condition that
// must be surfaced, not swallowed.
var ErrIndexInconsistent = errors.New("similarity index references a LEI missing from the identity store")

// EntityEnricher is the enrichment orchestrator contract consumed by the
// matcher.
type EntityEnricher interface {
	GetEnriched(ctx context.Context, lei string) (*types.Company, error)
	GetEnrichedByISIN(ctx context.Context, isin string) (*types.Company, error)
	GetEnrichedMany(ctx context.Context, isins []string) ([]*types.Company, error)
}

// Matcher is the top-level facade: it normalizes identifiers, obtains
// enriched companies, drives embedding insertion and similarity retrieval,
// and hydrates result sets back into full entities.
type Matcher struct {
	enricher EntityEnricher
	index    vector.Index
}

// NewMatcher creates a matching orchestrator over the given enricher and
// similarity index.
func NewMatcher(enricher EntityEnricher, index vector.Index) *Matcher {
	return &Matcher{enricher: enricher, index: index}
}

// FindMatches returns up to k companies similar to the entity behind the
// given ISIN, with their distances. Score ordering is the index's
// (ascending distance) and is preserved unmodified.
func (m *Matcher) FindMatches(ctx context.Context, rawISIN string, k int) ([]*types.Company, []float64, error) {
	isin, err := identifier.Normalize(rawISIN)
	if err != nil {
		return nil, nil, err
	}

	source, err := m.enricher.GetEnrichedByISIN(ctx, isin)
	if err != nil {
		return nil, nil, err
	}

	leis, distances, err := m.index.Query(ctx, source.EmbeddingText(), k)
	if err != nil {
		return nil, nil, err
	}

	companies := make([]*types.Company, 0, len(leis))
	for _, lei := range leis {
		company, err := m.enricher.GetEnriched(ctx, lei)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil, fmt.Errorf("%w: %s", ErrIndexInconsistent, lei)
			}
			return nil, nil, err
		}
		companies = append(companies, company)
	}

	return companies, distances, nil
}

// InsertEmbeddings resolves and enriches the entities behind the given
// identifiers and upserts their embedding documents into the similarity
// index, keyed by LEI. An unresolvable identifier fails the call.
func (m *Matcher) InsertEmbeddings(ctx context.Context, rawISINs ...string) error {
	isins, err := identifier.NormalizeAll(rawISINs)
	if err != nil {
		return err
	}

	companies, err := m.enricher.GetEnrichedMany(ctx, isins)
	if err != nil {
		return err
	}

	toUpsert := make([]*types.Company, 0, len(companies))
	seen := make(map[string]bool)
	for i, company := range companies {
		if company == nil {
			return fmt.Errorf("%w: isin %s", storage.ErrNotFound, isins[i])
		}
		// Several ISINs can map to the same LEI; upsert it once.
		if seen[company.LEI] {
			continue
		}
		seen[company.LEI] = true
		toUpsert = append(toUpsert, company)
	}

	if err := m.index.Upsert(ctx, toUpsert); err != nil {
		return err
	}

	log.Printf("engine: stored embeddings for %d companies", len(toUpsert))
	return nil
}
