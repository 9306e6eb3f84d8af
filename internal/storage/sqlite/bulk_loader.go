package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
)

// loadChunkSize is the number of CSV rows inserted per transaction during
// bulk loads. Keeps transactions bounded on multi-million-row GLEIF files.
const loadChunkSize = 10000

// errSkipRow signals that a CSV row was filtered out, not failed.
var errSkipRow = errors.New("skip row")

// LoadISINMap imports an ISIN/LEI mapping CSV into isin_lei_map.
// The file must carry ISIN and LEI columns (GLEIF ISIN-LEI relationship
// file format). Existing mappings are kept (INSERT OR IGNORE).
func (s *EntityStore) LoadISINMap(ctx context.Context, csvPath string) (int, error) {
	return s.loadCSV(ctx, csvPath, []string{"ISIN", "LEI"}, func(tx *sql.Tx, record []string) error {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO isin_lei_map (isin, lei) VALUES (?, ?)",
			record[0], record[1])
		return err
	})
}

// gleifMetadataColumns are the GLEIF golden-copy columns consumed by the
// metadata load, in the order they are passed to the row handler.
var gleifMetadataColumns = []string{
	"LEI",
	"Registration.RegistrationStatus",
	"Entity.EntityStatus",
	"Entity.LegalName",
	"Entity.LegalAddress.City",
	"Entity.LegalAddress.Country",
	"Entity.EntityCategory",
}

// LoadLEIMetadata imports entity reference data from a GLEIF golden-copy
// CSV into lei_metadata. Only rows with RegistrationStatus ISSUED and
// EntityStatus ACTIVE are kept, matching the reference-data load that
// seeds the identity store.
func (s *EntityStore) LoadLEIMetadata(ctx context.Context, csvPath string) (int, error) {
	return s.loadCSV(ctx, csvPath, gleifMetadataColumns, func(tx *sql.Tx, record []string) error {
		if record[1] != "ISSUED" || record[2] != "ACTIVE" {
			return errSkipRow
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO lei_metadata
				(lei, registration_status, entity_status, legal_name, city, country, category)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, record[0], record[1], record[2], record[3], record[4], record[5], record[6])
		return err
	})
}

// loadCSV streams a CSV file in chunked transactions, passing the values
// of the named columns (in order) to handle for each row. Returns the
// number of rows inserted.
func (s *EntityStore) loadCSV(ctx context.Context, csvPath string, columns []string, handle func(*sql.Tx, []string) error) (int, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to open %s: %w", csvPath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to read CSV header: %w", err)
	}

	indices := make([]int, len(columns))
	for i, want := range columns {
		indices[i] = -1
		for j, got := range header {
			if got == want {
				indices[i] = j
				break
			}
		}
		if indices[i] == -1 {
			return 0, fmt.Errorf("sqlite: CSV is missing required column %q", want)
		}
	}

	loaded := 0
	values := make([]string, len(columns))

	for {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return loaded, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
		}

		inChunk := 0
		done := false
		for inChunk < loadChunkSize {
			record, err := reader.Read()
			if err == io.EOF {
				done = true
				break
			}
			if err != nil {
				_ = tx.Rollback()
				return loaded, fmt.Errorf("sqlite: CSV read error: %w", err)
			}

			for i, idx := range indices {
				values[i] = record[idx]
			}

			if err := handle(tx, values); err != nil {
				if errors.Is(err, errSkipRow) {
					continue
				}
				_ = tx.Rollback()
				return loaded, fmt.Errorf("sqlite: bulk insert failed: %w", err)
			}
			inChunk++
		}

		if err := tx.Commit(); err != nil {
			return loaded, fmt.Errorf("sqlite: failed to commit chunk: %w", err)
		}
		loaded += inChunk

		if done {
			break
		}
		log.Printf("sqlite: bulk load progress: %d rows", loaded)
	}

	return loaded, nil
}
