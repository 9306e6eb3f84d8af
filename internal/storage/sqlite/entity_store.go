// Package sqlite implements the identity store on SQLite using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fintel/peermatch/internal/storage"
	"github.com/fintel/peermatch/pkg/types"
)

// Ensure *EntityStore implements storage.EntityStore at compile time.
var _ storage.EntityStore = (*EntityStore)(nil)

// companyColumns is the shared projection for every company query.
const companyColumns = `
	m.lei, m.registration_status, m.entity_status, m.legal_name,
	m.city, m.country, m.category,
	m.description, m.sector_labels, m.wikidata_id, m.enrichment_state
`

// EntityStore implements storage.EntityStore using SQLite.
type EntityStore struct {
	db *sql.DB
}

// NewEntityStore opens the identity store at the given DSN.
//
// SQLite only supports one concurrent writer, so the pool is pinned to a
// single connection: writes serialise and SQLITE_BUSY errors are avoided
// under concurrent load. WAL mode lets readers proceed without blocking
// the writer.
func NewEntityStore(dsn string) (*EntityStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Connections live for the lifetime of the store.

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &EntityStore{db: db}, nil
}

// InitDB creates the identity-store schema at the given path, optionally
// dropping existing tables first.
func InitDB(path string, recreate bool) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	defer db.Close()

	if recreate {
		if _, err := db.Exec("DROP TABLE IF EXISTS isin_lei_map; DROP TABLE IF EXISTS lei_metadata"); err != nil {
			return fmt.Errorf("sqlite: failed to drop tables: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return nil
}

// GetByISIN resolves an ISIN to a company by joining the identifier
// mapping to the entity table.
func (s *EntityStore) GetByISIN(ctx context.Context, isin string) (*types.Company, error) {
	if isin == "" {
		return nil, fmt.Errorf("%w: isin is required", storage.ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM isin_lei_map im
		JOIN lei_metadata m ON im.lei = m.lei
		WHERE im.isin = ?
	`, companyColumns)

	company, err := scanCompany(s.db.QueryRowContext(ctx, query, isin))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: isin %s", storage.ErrNotFound, isin)
		}
		return nil, fmt.Errorf("sqlite: GetByISIN %s: %w", isin, err)
	}

	return company, nil
}

// GetByISINs returns the companies matching the given ISINs, keyed by
// ISIN. Unmatched ISINs are absent from the map.
func (s *EntityStore) GetByISINs(ctx context.Context, isins []string) (map[string]*types.Company, error) {
	result := make(map[string]*types.Company, len(isins))
	if len(isins) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(isins)), ", ")
	query := fmt.Sprintf(`
		SELECT im.isin, %s
		FROM isin_lei_map im
		JOIN lei_metadata m ON im.lei = m.lei
		WHERE im.isin IN (%s)
	`, companyColumns, placeholders)

	args := make([]any, len(isins))
	for i, isin := range isins {
		args[i] = isin
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetByISINs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var isin string
		company, err := scanCompanyFields(rows, &isin)
		if err != nil {
			return nil, fmt.Errorf("sqlite: GetByISINs scan: %w", err)
		}
		result[isin] = company
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: GetByISINs rows: %w", err)
	}

	return result, nil
}

// GetByLEI looks a company up directly by its LEI.
func (s *EntityStore) GetByLEI(ctx context.Context, lei string) (*types.Company, error) {
	if lei == "" {
		return nil, fmt.Errorf("%w: lei is required", storage.ErrInvalidInput)
	}

	query := fmt.Sprintf("SELECT %s FROM lei_metadata m WHERE m.lei = ?", companyColumns)

	company, err := scanCompany(s.db.QueryRowContext(ctx, query, lei))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: lei %s", storage.ErrNotFound, lei)
		}
		return nil, fmt.Errorf("sqlite: GetByLEI %s: %w", lei, err)
	}

	return company, nil
}

// EnrichCompany writes the enrichment fields for a company and marks it
// enriched. The write is an idempotent overwrite: repeating it with
// identical data leaves the row unchanged apart from the timestamp, so
// concurrent enrichers do not need a lock.
func (s *EntityStore) EnrichCompany(ctx context.Context, lei, description string, labels []string, wikidataID string) error {
	if lei == "" {
		return fmt.Errorf("%w: lei is required", storage.ErrInvalidInput)
	}

	sectorLabels, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal sector labels: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE lei_metadata
		SET description = ?,
			sector_labels = ?,
			wikidata_id = ?,
			enrichment_state = ?,
			wikidata_check = 1,
			updated_at = ?
		WHERE lei = ?
	`, description, string(sectorLabels), wikidataID, string(types.EnrichmentEnriched),
		time.Now().UTC().Format(time.RFC3339), lei)
	if err != nil {
		return fmt.Errorf("sqlite: EnrichCompany %s: %w", lei, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: EnrichCompany rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: lei %s", storage.ErrNotFound, lei)
	}

	return nil
}

// MarkEnrichmentEmpty records a "queried, no result" outcome. An already
// enriched row is never downgraded; marking a missing or enriched row is
// a harmless no-op.
func (s *EntityStore) MarkEnrichmentEmpty(ctx context.Context, lei string) error {
	if lei == "" {
		return fmt.Errorf("%w: lei is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE lei_metadata
		SET enrichment_state = ?,
			updated_at = ?
		WHERE lei = ? AND enrichment_state != ?
	`, string(types.EnrichmentTriedEmpty), time.Now().UTC().Format(time.RFC3339),
		lei, string(types.EnrichmentEnriched))
	if err != nil {
		return fmt.Errorf("sqlite: MarkEnrichmentEmpty %s: %w", lei, err)
	}

	return nil
}

// ListAll returns up to limit companies.
func (s *EntityStore) ListAll(ctx context.Context, limit int) ([]*types.Company, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf("SELECT %s FROM lei_metadata m LIMIT ?", companyColumns)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var companies []*types.Company
	for rows.Next() {
		company, err := scanCompanyFields(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("sqlite: ListAll scan: %w", err)
		}
		companies = append(companies, company)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: ListAll rows: %w", err)
	}

	return companies, nil
}

// Ping verifies the schema exists. Used as the existence probe before any
// CLI operation runs.
func (s *EntityStore) Ping(ctx context.Context) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'lei_metadata'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	if count == 0 {
		return errors.New("sqlite: identity store is not initialized (run init first)")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *EntityStore) Close() error {
	return s.db.Close()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCompany reads a single company row using the companyColumns projection.
func scanCompany(row rowScanner) (*types.Company, error) {
	return scanCompanyFields(row, nil)
}

// scanCompanyFields reads a company row. When isin is non-nil the row is
// expected to carry a leading isin column (GetByISINs projection).
func scanCompanyFields(row rowScanner, isin *string) (*types.Company, error) {
	var (
		company      types.Company
		regStatus    sql.NullString
		entityStatus sql.NullString
		legalName    sql.NullString
		city         sql.NullString
		country      sql.NullString
		category     sql.NullString
		description  sql.NullString
		sectorLabels sql.NullString
		wikidataID   sql.NullString
		state        sql.NullString
	)

	dest := []any{
		&company.LEI, &regStatus, &entityStatus, &legalName,
		&city, &country, &category,
		&description, &sectorLabels, &wikidataID, &state,
	}
	if isin != nil {
		dest = append([]any{isin}, dest...)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	company.RegistrationStatus = regStatus.String
	company.EntityStatus = entityStatus.String
	company.LegalName = legalName.String
	company.City = city.String
	company.Country = country.String
	company.Category = category.String
	company.Description = description.String
	company.WikidataID = wikidataID.String

	company.State = types.EnrichmentNotTried
	if state.Valid && state.String != "" {
		company.State = types.EnrichmentState(state.String)
	}

	if sectorLabels.Valid && sectorLabels.String != "" {
		if err := json.Unmarshal([]byte(sectorLabels.String), &company.SectorLabels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sector labels for %s: %w", company.LEI, err)
		}
	}

	return &company, nil
}
