// Package wikidata implements the knowledge enrichment client. It resolves
// LEIs to sector/industry facts through the Wikidata SPARQL endpoint,
// singly or batched, with retry, backoff, rate limiting and circuit
// breaking. The client never returns an error to its caller: any terminal
// failure degrades to an empty Result, because enrichment is an optional
// signal that must not block the matching pipeline.
package wikidata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/fintel/peermatch/internal/resilience"
)

// DefaultEndpoint is the public Wikidata SPARQL endpoint.
const DefaultEndpoint = "https://query.wikidata.org/sparql"

// Sector is one industry classification attached to an entity.
type Sector struct {
	// Label is the human-readable industry label.
	Label string

	// QID is the Wikidata item identifier for the industry (e.g. Q43183).
	QID string
}

// Result is the enrichment outcome for a single LEI.
type Result struct {
	// WikidataID is the Wikidata item identifier for the entity, empty
	// when no match was found.
	WikidataID string

	// Description is the free-text entity description, possibly empty
	// even on a match.
	Description string

	// Sectors are the industry classifications, de-duplicated on
	// (label, qid).
	Sectors []Sector

	// Definitive reports whether the knowledge base actually answered.
	// A false value means the request failed and the absence of data says
	// nothing about the entity; callers should not cache it as a
	// confirmed "no match".
	Definitive bool
}

// Found reports whether the knowledge base matched the LEI to an item.
func (r Result) Found() bool {
	return r.WikidataID != ""
}

// Labels returns just the sector labels, in response order.
func (r Result) Labels() []string {
	labels := make([]string, len(r.Sectors))
	for i, s := range r.Sectors {
		labels[i] = s.Label
	}
	return labels
}

// Config holds the knowledge-base client configuration. Zero values are
// replaced with defaults by NewClient.
type Config struct {
	Endpoint          string
	UserAgent         string
	ChunkSize         int           // LEIs per batched request (default 30)
	SingleTimeout     time.Duration // per single-item call (default 15s)
	BatchTimeout      time.Duration // per chunk call (default 60s)
	MaxAttempts       int           // attempts per call (default 3)
	BackoffBase       time.Duration // exponential backoff base (default 1s)
	RequestsPerSecond float64       // endpoint politeness limit (default 2)
	CacheSize         int           // per-process LRU of definitive results (default 1024)
}

// Client queries the Wikidata knowledge base by LEI. The underlying HTTP
// transport is owned by the client and lives as long as it does, so
// connections are reused across calls.
type Client struct {
	endpoint      string
	userAgent     string
	chunkSize     int
	singleTimeout time.Duration
	batchTimeout  time.Duration
	maxAttempts   int
	backoffBase   time.Duration

	httpClient *http.Client
	breaker    *resilience.Breaker
	limiter    *rate.Limiter
	cache      *lru.Cache[string, Result]
}

// NewClient creates a knowledge-base client with the given configuration.
func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.UserAgent == "" {
		config.UserAgent = "PeerMatch/1.0 (https://github.com/fintel/peermatch)"
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = 30
	}
	if config.SingleTimeout == 0 {
		config.SingleTimeout = 15 * time.Second
	}
	if config.BatchTimeout == 0 {
		config.BatchTimeout = 60 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 1024
	}

	// lru.New only fails for non-positive sizes, which are normalized above.
	cache, _ := lru.New[string, Result](config.CacheSize)

	return &Client{
		endpoint:      config.Endpoint,
		userAgent:     config.UserAgent,
		chunkSize:     config.ChunkSize,
		singleTimeout: config.SingleTimeout,
		batchTimeout:  config.BatchTimeout,
		maxAttempts:   config.MaxAttempts,
		backoffBase:   config.BackoffBase,
		httpClient:    &http.Client{},
		breaker:       resilience.NewBreaker(resilience.BreakerConfig{Name: "wikidata"}),
		limiter:       rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		cache:         cache,
	}
}

// QuerySingle resolves one LEI to sector/industry facts. Transient HTTP
// failures (429/500/502/503/504 and transport errors) are retried up to
// the attempt budget with exponential backoff; anything terminal degrades
// to an empty, non-definitive Result.
func (c *Client) QuerySingle(ctx context.Context, lei string) Result {
	if cached, ok := c.cache.Get(lei); ok {
		return cached
	}

	query := fmt.Sprintf(`SELECT ?item ?itemDescription ?industry ?industryLabel WHERE {
  ?item wdt:P1278 %q.
  OPTIONAL { ?item wdt:P452 ?industry. }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
}`, lei)

	bindings, err := c.doQuery(ctx, query, c.singleTimeout)
	if err != nil {
		log.Printf("wikidata: lookup for %s degraded to empty result: %v", lei, err)
		return Result{}
	}

	result := resultFromBindings(bindings)
	c.cache.Add(lei, result)
	return result
}

// QueryBatch resolves many LEIs in chunked requests, one SPARQL query per
// chunk using a VALUES inclusion filter. Every requested LEI is present in
// the returned map: LEIs absent from a successful response carry an empty
// definitive Result, LEIs in a failed chunk carry an empty non-definitive
// one.
func (c *Client) QueryBatch(ctx context.Context, leis []string) map[string]Result {
	results := make(map[string]Result, len(leis))

	var pending []string
	for _, lei := range leis {
		if cached, ok := c.cache.Get(lei); ok {
			results[lei] = cached
			continue
		}
		pending = append(pending, lei)
	}

	for start := 0; start < len(pending); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		c.queryChunk(ctx, pending[start:end], results)
	}

	return results
}

// queryChunk issues one batched SPARQL request and merges the grouped
// bindings into results, zero-filling every requested LEI.
func (c *Client) queryChunk(ctx context.Context, leis []string, results map[string]Result) {
	if len(leis) == 0 {
		return
	}

	var values strings.Builder
	for _, lei := range leis {
		fmt.Fprintf(&values, "(%q) ", lei)
	}

	query := fmt.Sprintf(`SELECT ?item ?itemDescription ?industry ?industryLabel ?lei WHERE {
  VALUES (?lei) { %s}
  ?item wdt:P1278 ?lei.
  OPTIONAL { ?item wdt:P452 ?industry. }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
}`, values.String())

	bindings, err := c.doQuery(ctx, query, c.batchTimeout)
	if err != nil {
		log.Printf("wikidata: batch of %d LEIs degraded to empty results: %v", len(leis), err)
		for _, lei := range leis {
			results[lei] = Result{}
		}
		return
	}

	grouped := groupBindingsByLEI(bindings)
	for _, lei := range leis {
		result, ok := grouped[lei]
		if !ok {
			result = Result{Definitive: true}
		}
		results[lei] = result
		c.cache.Add(lei, result)
	}
}

// retryableStatus reports whether an HTTP status is worth retrying.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// doQuery executes one SPARQL query with the retry policy: up to
// maxAttempts attempts, exponential backoff starting at backoffBase,
// each attempt bounded by timeout and gated by the rate limiter and the
// circuit breaker.
func (c *Client) doQuery(ctx context.Context, query string, timeout time.Duration) ([]binding, error) {
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(ctx, func() (any, error) {
			return c.fetch(ctx, query, timeout)
		})
		if err == nil {
			return result.([]binding), nil
		}
		lastErr = err

		var httpErr *httpStatusError
		retryable := true
		switch {
		case errors.As(err, &httpErr):
			retryable = retryableStatus(httpErr.status)
		case errors.Is(err, resilience.ErrCircuitOpen):
			// The breaker will not close within the backoff window.
			retryable = false
		case ctx.Err() != nil:
			retryable = false
		}

		if !retryable || attempt == c.maxAttempts {
			break
		}

		backoff := c.backoffBase << (attempt - 1)
		log.Printf("wikidata: [%s] attempt %d/%d failed (%v), retrying in %s",
			requestID, attempt, c.maxAttempts, err, backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("[%s] %w", requestID, lastErr)
}

// fetch performs a single SPARQL GET.
func (c *Client) fetch(ctx context.Context, query string, timeout time.Duration) ([]binding, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &httpStatusError{status: resp.StatusCode, body: string(body)}
	}

	var parsed sparqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return parsed.Results.Bindings, nil
}

// httpStatusError carries a non-200 response for retry classification.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("wikidata returned status %d: %s", e.status, e.body)
}
