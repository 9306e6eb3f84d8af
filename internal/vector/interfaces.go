// Package vector defines the similarity-index contract and its Postgres
// (pgvector) adapter. The index is a black box to the rest of the system:
// it accepts text documents keyed by LEI and answers nearest-neighbor
// queries; the embedding model and the indexing algorithm are internals it
// owns.
package vector

import (
	"context"

	"github.com/fintel/peermatch/pkg/types"
)

// Index stores company embedding documents and serves similarity queries.
type Index interface {
	// Upsert inserts or replaces the embeddings for the given companies,
	// keyed by LEI with the company's embedding text as the document.
	// Idempotent: repeating it with unchanged entity state replaces the
	// prior vector with an identical one.
	Upsert(ctx context.Context, companies []*types.Company) error

	// Query returns up to k nearest neighbors for the given text as
	// (LEIs, distances), ordered by ascending distance. Fewer than k
	// results is a shortfall, not an error.
	Query(ctx context.Context, text string, k int) ([]string, []float64, error)

	// Ping verifies the index exists and is reachable. The CLI probes it
	// before running any operation.
	Ping(ctx context.Context) error

	// Close releases any resources held by the index.
	Close() error
}
