// Package engine contains the orchestration layer: the enrichment
// orchestrator that keeps company records hydrated with knowledge-base
// facts, and the matching orchestrator that drives the similarity index.
package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/fintel/peermatch/internal/storage"
	"github.com/fintel/peermatch/internal/wikidata"
	"github.com/fintel/peermatch/pkg/types"
)

// KnowledgeClient is the enrichment client contract. Implementations never
// return errors: a failed lookup is an empty, non-definitive Result.
type KnowledgeClient interface {
	QuerySingle(ctx context.Context, lei string) wikidata.Result
	QueryBatch(ctx context.Context, leis []string) map[string]wikidata.Result
}

// Enricher decides whether an entity needs enrichment, invokes the
// knowledge client, writes results back through the identity store, and
// returns fully-hydrated companies.
type Enricher struct {
	store  storage.EntityStore
	client KnowledgeClient
}

// NewEnricher creates an enrichment orchestrator over the given store and
// knowledge client.
func NewEnricher(store storage.EntityStore, client KnowledgeClient) *Enricher {
	return &Enricher{store: store, client: client}
}

// GetEnriched returns the company for the given LEI, enriching it first
// when it has never been tried against the knowledge base.
func (e *Enricher) GetEnriched(ctx context.Context, lei string) (*types.Company, error) {
	company, err := e.store.GetByLEI(ctx, lei)
	if err != nil {
		return nil, err
	}
	return e.ensureEnriched(ctx, company)
}

// GetEnrichedByISIN resolves an ISIN and returns the enriched company.
func (e *Enricher) GetEnrichedByISIN(ctx context.Context, isin string) (*types.Company, error) {
	company, err := e.store.GetByISIN(ctx, isin)
	if err != nil {
		return nil, err
	}
	return e.ensureEnriched(ctx, company)
}

// GetEnrichedMany resolves a batch of ISINs in one store call, enriches
// the ones that need it with one batched knowledge-base call, and returns
// the companies in input order. Positions with no matching entity carry
// nil; that is a valid miss, not an error.
func (e *Enricher) GetEnrichedMany(ctx context.Context, isins []string) ([]*types.Company, error) {
	byISIN, err := e.store.GetByISINs(ctx, isins)
	if err != nil {
		return nil, err
	}

	companies := make([]*types.Company, len(isins))
	var needing []*types.Company
	seen := make(map[string]bool)

	for i, isin := range isins {
		company := byISIN[isin]
		companies[i] = company
		if company == nil || !company.NeedsEnrichment() {
			continue
		}
		// Several ISINs can map to the same LEI; query it once.
		if !seen[company.LEI] {
			seen[company.LEI] = true
			needing = append(needing, company)
		}
	}

	if len(needing) == 0 {
		return companies, nil
	}

	leis := make([]string, len(needing))
	for i, company := range needing {
		leis[i] = company.LEI
	}

	results := e.client.QueryBatch(ctx, leis)
	for i, isin := range isins {
		company := companies[i]
		if company == nil || !company.NeedsEnrichment() {
			continue
		}
		if err := e.apply(ctx, company, results[company.LEI]); err != nil {
			return nil, fmt.Errorf("engine: failed to persist enrichment for %s (isin %s): %w", company.LEI, isin, err)
		}
	}

	return companies, nil
}

// ensureEnriched enriches a single company when needed and returns it.
// A knowledge-base outage degrades to the unenriched company, never to an
// error.
func (e *Enricher) ensureEnriched(ctx context.Context, company *types.Company) (*types.Company, error) {
	if !company.NeedsEnrichment() {
		return company, nil
	}

	result := e.client.QuerySingle(ctx, company.LEI)
	if err := e.apply(ctx, company, result); err != nil {
		return nil, fmt.Errorf("engine: failed to persist enrichment for %s: %w", company.LEI, err)
	}

	return company, nil
}

// apply writes a knowledge-base result through to the company and the
// store. A positive hit transitions the company to enriched; a definitive
// no-match persists the tried-empty state so the LEI is not re-queried on
// every future attempt; a failed lookup changes nothing.
func (e *Enricher) apply(ctx context.Context, company *types.Company, result wikidata.Result) error {
	switch {
	case result.Found():
		company.Enrich(result.Labels(), result.Description)
		company.WikidataID = result.WikidataID
		return e.store.EnrichCompany(ctx, company.LEI, result.Description, result.Labels(), result.WikidataID)

	case result.Definitive:
		company.State = types.EnrichmentTriedEmpty
		return e.store.MarkEnrichmentEmpty(ctx, company.LEI)

	default:
		log.Printf("engine: enrichment unavailable for %s, continuing unenriched", company.LEI)
		return nil
	}
}
