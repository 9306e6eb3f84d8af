package sqlite

// Schema defines the identity-store tables.
//
// isin_lei_map is an n:1 mapping from instrument identifiers to legal
// entities, populated by the bulk CSV loader. lei_metadata holds one row
// per legal entity; the identity columns come from the GLEIF golden copy
// and the enrichment columns are populated lazily from the knowledge base.
const Schema = `
CREATE TABLE IF NOT EXISTS isin_lei_map (
	isin TEXT PRIMARY KEY,
	lei  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_isin_lei_map_lei ON isin_lei_map(lei);

CREATE TABLE IF NOT EXISTS lei_metadata (
	lei                 TEXT PRIMARY KEY,
	registration_status TEXT,
	entity_status       TEXT,
	legal_name          TEXT,
	city                TEXT,
	country             TEXT,
	category            TEXT,
	description         TEXT,
	sector_labels       TEXT,
	wikidata_id         TEXT,
	enrichment_state    TEXT NOT NULL DEFAULT 'not_tried',
	wikidata_check      INTEGER NOT NULL DEFAULT 0,
	updated_at          TEXT
);
`
