package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadISINMap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	csv := "LEI,ISIN\n" +
		"LEI_A_00000000000000,CH0000000001\n" +
		"LEI_A_00000000000000,CH0000000002\n" +
		"LEI_B_00000000000000,US0000000003\n"

	n, err := store.LoadISINMap(ctx, writeTempCSV(t, csv))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Re-loading the same file keeps existing mappings (INSERT OR IGNORE).
	_, err = store.LoadISINMap(ctx, writeTempCSV(t, csv))
	require.NoError(t, err)

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM isin_lei_map").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestLoadISINMapMissingColumn(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadISINMap(context.Background(), writeTempCSV(t, "LEI,FOO\nx,y\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ISIN")
}

func TestLoadLEIMetadataFiltersInactive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	csv := "LEI,Registration.RegistrationStatus,Entity.EntityStatus,Entity.LegalName,Entity.LegalAddress.City,Entity.LegalAddress.Country,Entity.EntityCategory\n" +
		"LEI_A_00000000000000,ISSUED,ACTIVE,Alpha AG,Zurich,CH,GENERAL\n" +
		"LEI_B_00000000000000,LAPSED,ACTIVE,Beta AG,Bern,CH,GENERAL\n" +
		"LEI_C_00000000000000,ISSUED,INACTIVE,Gamma AG,Basel,CH,GENERAL\n"

	n, err := store.LoadLEIMetadata(ctx, writeTempCSV(t, csv))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	company, err := store.GetByLEI(ctx, "LEI_A_00000000000000")
	require.NoError(t, err)
	assert.Equal(t, "Alpha AG", company.LegalName)
}
