package wikidata

import "strings"

// sparqlResponse mirrors the SPARQL JSON results format:
// {"results": {"bindings": [...]}} where each binding maps variable names
// to {"value": "..."} objects.
type sparqlResponse struct {
	Results struct {
		Bindings []binding `json:"bindings"`
	} `json:"results"`
}

// binding is one row of a SPARQL result set. Only the fields the
// enrichment queries project are modelled.
type binding struct {
	Item            *sparqlValue `json:"item"`
	ItemDescription *sparqlValue `json:"itemDescription"`
	Industry        *sparqlValue `json:"industry"`
	IndustryLabel   *sparqlValue `json:"industryLabel"`
	LEI             *sparqlValue `json:"lei"`
}

type sparqlValue struct {
	Value string `json:"value"`
}

// itemID extracts the trailing Q-identifier from an entity URI like
// http://www.wikidata.org/entity/Q312.
func itemID(v *sparqlValue) string {
	if v == nil || v.Value == "" {
		return ""
	}
	parts := strings.Split(v.Value, "/")
	return parts[len(parts)-1]
}

// resultFromBindings builds a single-LEI Result from a binding set. The
// item and description come from the first binding; sectors are collected
// across all bindings and de-duplicated on (label, qid). An empty binding
// set is a definitive no-match.
func resultFromBindings(bindings []binding) Result {
	result := Result{Definitive: true}
	if len(bindings) == 0 {
		return result
	}

	result.WikidataID = itemID(bindings[0].Item)
	if bindings[0].ItemDescription != nil {
		result.Description = bindings[0].ItemDescription.Value
	}
	result.Sectors = collectSectors(bindings)

	return result
}

// groupBindingsByLEI builds per-LEI Results from a batched binding set.
func groupBindingsByLEI(bindings []binding) map[string]Result {
	perLEI := make(map[string][]binding)
	var order []string

	for _, b := range bindings {
		if b.LEI == nil || b.LEI.Value == "" {
			continue
		}
		lei := b.LEI.Value
		if _, seen := perLEI[lei]; !seen {
			order = append(order, lei)
		}
		perLEI[lei] = append(perLEI[lei], b)
	}

	results := make(map[string]Result, len(order))
	for _, lei := range order {
		results[lei] = resultFromBindings(perLEI[lei])
	}
	return results
}

// collectSectors gathers the industry classifications from a binding set,
// de-duplicated on the (label, qid) pair while preserving response order.
func collectSectors(bindings []binding) []Sector {
	var sectors []Sector
	seen := make(map[Sector]bool)

	for _, b := range bindings {
		if b.IndustryLabel == nil || b.IndustryLabel.Value == "" {
			continue
		}
		sector := Sector{
			Label: b.IndustryLabel.Value,
			QID:   itemID(b.Industry),
		}
		if seen[sector] {
			continue
		}
		seen[sector] = true
		sectors = append(sectors, sector)
	}

	return sectors
}
