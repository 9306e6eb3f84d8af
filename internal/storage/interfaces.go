// Package storage defines the identity-store contract for PeerMatch.
//
// The store maps ISINs to LEIs and LEIs to company identity records. It is
// specified as a small capability interface so the sqlite adapter can be
// swapped for any relational backend implementing the same contract.
package storage

import (
	"context"

	"github.com/fintel/peermatch/pkg/types"
)

// EntityStore provides identity lookups and enrichment writes.
//
// EnrichCompany and MarkEnrichmentEmpty are the only mutating operations;
// both commit synchronously before returning.
type EntityStore interface {
	// GetByISIN resolves an ISIN through the identifier mapping to a
	// company record. Returns ErrNotFound when either the mapping or the
	// entity row is missing.
	GetByISIN(ctx context.Context, isin string) (*types.Company, error)

	// GetByISINs is the batched variant of GetByISIN. ISINs with no match
	// are simply absent from the result map; they are not errors.
	GetByISINs(ctx context.Context, isins []string) (map[string]*types.Company, error)

	// GetByLEI looks a company up directly by LEI.
	// Returns ErrNotFound if no entity row exists.
	GetByLEI(ctx context.Context, lei string) (*types.Company, error)

	// EnrichCompany upserts the enrichment fields for a company and marks
	// it enriched. Idempotent: calling it twice with identical data must
	// not fail.
	EnrichCompany(ctx context.Context, lei, description string, labels []string, wikidataID string) error

	// MarkEnrichmentEmpty records that the knowledge base was queried for
	// this LEI and returned nothing, so the company is not re-queried on
	// every future enrichment attempt.
	MarkEnrichmentEmpty(ctx context.Context, lei string) error

	// ListAll returns up to limit companies. Administrative use only.
	ListAll(ctx context.Context, limit int) ([]*types.Company, error)

	// Ping verifies the store exists and is reachable. The CLI probes it
	// before running any operation.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
