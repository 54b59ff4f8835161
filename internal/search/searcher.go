package search

import (
	"context"
	"sync"
	"time"

	"storefront-sync/internal/api"
	"storefront-sync/internal/debounce"
	"storefront-sync/internal/domain"
	"storefront-sync/internal/observability"
)

// Catalog is the slice of the storefront client used for search reads.
type Catalog interface {
	SearchProducts(ctx context.Context, query string, page int) (*api.SearchPayload, error)
}

// Results is one settled page of search results.
type Results struct {
	Query      string
	Page       int
	TotalPages int
	Products   []domain.Product
}

// Searcher converts a burst of input events into exactly one delayed
// catalog query carrying the last value. When the debounce fires, the
// value becomes the effective query and pagination resets to page 1.
// Responses are sequence-guarded: a confirmation that arrives after a
// newer query has been issued is discarded.
type Searcher struct {
	mu sync.Mutex

	catalog   Catalog
	debouncer *debounce.Debouncer
	onResults func(Results)
	timeout   time.Duration

	query string
	page  int
	seq   uint64
}

func NewSearcher(catalog Catalog, delay time.Duration, onResults func(Results)) *Searcher {
	s := &Searcher{
		catalog:   catalog,
		onResults: onResults,
		timeout:   10 * time.Second,
	}
	s.debouncer = debounce.NewDebouncer(delay, func(value string) {
		s.run(value, 1)
	})
	return s
}

// OnInput feeds one keystroke into the debouncer.
func (s *Searcher) OnInput(value string) {
	s.debouncer.OnInput(value)
}

// NextPage re-queries the effective query one page forward.
func (s *Searcher) NextPage() {
	s.mu.Lock()
	query := s.query
	page := s.page + 1
	s.mu.Unlock()
	s.run(query, page)
}

// PrevPage re-queries one page back, never below page 1.
func (s *Searcher) PrevPage() {
	s.mu.Lock()
	query := s.query
	page := s.page - 1
	s.mu.Unlock()
	if page < 1 {
		return
	}
	s.run(query, page)
}

// Stop cancels any pending debounce. Must be called at teardown.
func (s *Searcher) Stop() {
	s.debouncer.Stop()
}

// run issues the query and settles the result unless superseded.
func (s *Searcher) run(query string, page int) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	payload, err := s.catalog.SearchProducts(ctx, query, page)
	if err != nil {
		observability.FromContext(ctx).Warn("search failed",
			"query", query, "page", page, "error", err.Error())
		return
	}

	s.mu.Lock()
	if seq != s.seq {
		// A newer query settled or is in flight; this response is stale.
		s.mu.Unlock()
		return
	}
	s.query = query
	s.page = page
	callback := s.onResults
	s.mu.Unlock()

	if callback != nil {
		callback(Results{
			Query:      query,
			Page:       page,
			TotalPages: payload.TotalPages,
			Products:   payload.Products,
		})
	}
}

// Effective returns the currently settled query and page.
func (s *Searcher) Effective() (query string, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query, s.page
}
