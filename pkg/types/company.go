// Package types defines the core entity types shared across the identity
// store, the enrichment pipeline and the similarity index.
package types

import (
	"fmt"
	"strings"
)

// EnrichmentState tracks how far an entity has been taken through the
// knowledge-base enrichment pipeline.
type EnrichmentState string

const (
	// EnrichmentNotTried means the entity has never been looked up.
	EnrichmentNotTried EnrichmentState = "not_tried"

	// EnrichmentTriedEmpty means the knowledge base answered and had
	// nothing: a confirmed no-match that must not be re-queried.
	EnrichmentTriedEmpty EnrichmentState = "tried_empty"

	// EnrichmentEnriched means the entity carries knowledge-base facts.
	EnrichmentEnriched EnrichmentState = "enriched"
)

// Company is a legal entity from the GLEIF registry, optionally enriched
// with sector facts from the knowledge base. LEI is the primary key
// everywhere; ISINs are resolved to it at the storage layer.
type Company struct {
	LEI                string
	RegistrationStatus string
	EntityStatus       string
	LegalName          string
	City               string
	Country            string
	Category           string

	// Enrichment facts.
	Description  string
	SectorLabels []string
	WikidataID   string

	// State records the enrichment lifecycle. An empty value (a row
	// written before the column existed) behaves like EnrichmentNotTried.
	State EnrichmentState
}

// HasSectorData reports whether the company carries any enrichment facts.
func (c *Company) HasSectorData() bool {
	return c.Description != "" || len(c.SectorLabels) > 0
}

// NeedsEnrichment reports whether the knowledge base should be consulted
// for this company. Confirmed no-matches and already-enriched entities
// are never re-queried; failed lookups remain eligible.
func (c *Company) NeedsEnrichment() bool {
	if c.HasSectorData() {
		return false
	}
	return c.State == EnrichmentNotTried || c.State == ""
}

// Enrich records knowledge-base facts on the company. Enrichment is
// monotonic: once an entity is enriched it stays enriched.
func (c *Company) Enrich(sectorLabels []string, description string) {
	if description != "" {
		c.Description = description
	}
	if len(sectorLabels) > 0 {
		c.SectorLabels = sectorLabels
	}
	c.State = EnrichmentEnriched
}

// EmbeddingText renders the document embedded into the similarity index.
// The wording depends on which facts are available; for a given company
// state the output is deterministic, so re-embedding an unchanged entity
// yields the same vector.
func (c *Company) EmbeddingText() string {
	location := fmt.Sprintf("%s, %s", c.City, c.Country)
	sectors := strings.Join(c.SectorLabels, ", ")

	switch {
	case c.Description != "" && len(c.SectorLabels) > 0:
		return fmt.Sprintf("%s is a %s, located in %s. It belongs in %s.",
			c.LegalName, c.Description, location, sectors)
	case c.Description != "":
		return fmt.Sprintf("%s is a %s, located in %s.",
			c.LegalName, c.Description, location)
	case len(c.SectorLabels) > 0:
		return fmt.Sprintf("Company %s, located in %s. It belongs in %s.",
			c.LegalName, location, sectors)
	default:
		return fmt.Sprintf("Risk characteristics for company %s. Located in %s. Category: %s.",
			c.LegalName, location, c.Category)
	}
}

// String returns a compact one-line rendering for logs and CLI output.
func (c *Company) String() string {
	return fmt.Sprintf("%s (%s, %s, %s)", c.LegalName, c.LEI, c.City, c.Country)
}
