package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "github.com/lib/pq" // Postgres driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/fintel/peermatch/internal/embed"
	"github.com/fintel/peermatch/pkg/types"
)

// DefaultCollection is the logical collection holding company embeddings.
const DefaultCollection = "companies"

// DefaultMetric is the distance metric recorded in collection metadata.
// Queries use the pgvector cosine-distance operator accordingly.
const DefaultMetric = "cosine"

// Ensure *PostgresIndex implements Index at compile time.
var _ Index = (*PostgresIndex)(nil)

// PostgresIndex implements Index on Postgres with the pgvector extension.
// It owns the embedding Generator: documents are embedded on every write
// and every query, never persisted as text-to-vector state elsewhere.
type PostgresIndex struct {
	db         *sql.DB
	generator  embed.Generator
	collection string
}

// NewPostgresIndex opens the index at the given DSN and verifies that the
// collection was created for the same embedding model the generator uses.
// Mixing models within one collection would make distances meaningless,
// so a mismatch is an error rather than a warning.
func NewPostgresIndex(dsn string, generator embed.Generator, collection string) (*PostgresIndex, error) {
	if collection == "" {
		collection = DefaultCollection
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("vector: failed to open database: %w", err)
	}

	idx := &PostgresIndex{db: db, generator: generator, collection: collection}

	var storedModel string
	err = db.QueryRow(
		"SELECT embedding_model FROM collection_meta WHERE collection = $1",
		collection,
	).Scan(&storedModel)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		db.Close()
		return nil, fmt.Errorf("vector: collection %q is not initialized (run init first)", collection)
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("vector: failed to read collection metadata: %w", err)
	}

	if storedModel != generator.Model() {
		db.Close()
		return nil, fmt.Errorf("vector: embedding model %q inconsistent with existing collection %q (model %q); change collection name or model",
			generator.Model(), collection, storedModel)
	}

	return idx, nil
}

// InitDB creates the pgvector extension, the embeddings table and the
// collection metadata row, optionally dropping existing state first.
func InitDB(dsn, collection, model string, recreate bool) error {
	if collection == "" {
		collection = DefaultCollection
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("vector: failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("vector: failed to create pgvector extension: %w", err)
	}

	if recreate {
		if _, err := db.Exec("DROP TABLE IF EXISTS company_embeddings; DROP TABLE IF EXISTS collection_meta"); err != nil {
			return fmt.Errorf("vector: failed to drop tables: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS collection_meta (
			collection      TEXT PRIMARY KEY,
			embedding_model TEXT NOT NULL,
			distance_metric TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS company_embeddings (
			lei        TEXT NOT NULL,
			collection TEXT NOT NULL REFERENCES collection_meta(collection),
			document   TEXT NOT NULL,
			embedding  vector NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (lei, collection)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("vector: failed to create schema: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO collection_meta (collection, embedding_model, distance_metric)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection) DO NOTHING
	`, collection, model, DefaultMetric)
	if err != nil {
		return fmt.Errorf("vector: failed to record collection metadata: %w", err)
	}

	return nil
}

// Upsert embeds each company's text and replaces its vector in the
// collection, keyed by LEI.
func (p *PostgresIndex) Upsert(ctx context.Context, companies []*types.Company) error {
	for _, company := range companies {
		document := company.EmbeddingText()

		embedding, err := p.generator.Embed(ctx, document)
		if err != nil {
			return fmt.Errorf("vector: failed to embed document for %s: %w", company.LEI, err)
		}

		_, err = p.db.ExecContext(ctx, `
			INSERT INTO company_embeddings (lei, collection, document, embedding, updated_at)
			VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
			ON CONFLICT (lei, collection) DO UPDATE SET
				document = excluded.document,
				embedding = excluded.embedding,
				updated_at = CURRENT_TIMESTAMP
		`, company.LEI, p.collection, document, pgvector.NewVector(embedding))
		if err != nil {
			return fmt.Errorf("vector: failed to upsert embedding for %s: %w", company.LEI, err)
		}

		log.Printf("vector: upserted embedding for %s", company.LEI)
	}

	return nil
}

// Query embeds the given text and returns up to k nearest LEIs with their
// cosine distances, ascending.
func (p *PostgresIndex) Query(ctx context.Context, text string, k int) ([]string, []float64, error) {
	if k <= 0 {
		return nil, nil, nil
	}

	embedding, err := p.generator.Embed(ctx, text)
	if err != nil {
		return nil, nil, fmt.Errorf("vector: failed to embed query text: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT lei, embedding <=> $1 AS distance
		FROM company_embeddings
		WHERE collection = $2
		ORDER BY distance
		LIMIT $3
	`, pgvector.NewVector(embedding), p.collection, k)
	if err != nil {
		return nil, nil, fmt.Errorf("vector: query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		ids       []string
		distances []float64
	)
	for rows.Next() {
		var (
			lei      string
			distance float64
		)
		if err := rows.Scan(&lei, &distance); err != nil {
			return nil, nil, fmt.Errorf("vector: query scan: %w", err)
		}
		ids = append(ids, lei)
		distances = append(distances, distance)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("vector: query rows: %w", err)
	}

	return ids, distances, nil
}

// Ping verifies the collection metadata exists. Used as the existence
// probe before any CLI operation runs.
func (p *PostgresIndex) Ping(ctx context.Context) error {
	var one int
	err := p.db.QueryRowContext(ctx,
		"SELECT 1 FROM collection_meta WHERE collection = $1", p.collection,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("vector: collection %q is not initialized (run init first)", p.collection)
	}
	if err != nil {
		return fmt.Errorf("vector: ping: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (p *PostgresIndex) Close() error {
	return p.db.Close()
}
