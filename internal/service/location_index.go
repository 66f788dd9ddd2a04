package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"epub-reader-session/internal/domain"
)

// LocationIndex lazily builds the whole-document mapping between progress
// percentage and renderer locators. A cache hit loads in milliseconds; a
// miss walks every section of the book, which can take seconds, so loading
// always runs in the background and restoration never blocks on it.
type LocationIndex struct {
	documentID string
	cache      domain.IndexCache
	source     domain.SectionSource
	logger     domain.Logger

	mu      sync.Mutex
	state   domain.IndexState
	entries []domain.IndexEntry
	started bool

	// settled is closed when the index reaches ready or failed.
	settled chan struct{}
}

// NewLocationIndex creates an index for one open document
func NewLocationIndex(documentID string, cache domain.IndexCache, source domain.SectionSource, logger domain.Logger) *LocationIndex {
	return &LocationIndex{
		documentID: documentID,
		cache:      cache,
		source:     source,
		logger:     logger,
		state:      domain.IndexAbsent,
		settled:    make(chan struct{}),
	}
}

// Start begins loading the index in the background. The first call wins;
// later calls are no-ops. Cancelling ctx abandons the load, and a load that
// completes after cancellation is discarded rather than applied.
func (ix *LocationIndex) Start(ctx context.Context) {
	ix.mu.Lock()
	if ix.started {
		ix.mu.Unlock()
		return
	}
	ix.started = true
	ix.state = domain.IndexLoading
	ix.mu.Unlock()

	go ix.load(ctx)
}

func (ix *LocationIndex) load(ctx context.Context) {
	raw, err := ix.cache.Get(ix.documentID)
	if err != nil {
		ix.logger.Warn("Location index cache read failed", "document_id", ix.documentID, "error", err)
	} else if raw != nil {
		var entries []domain.IndexEntry
		if err := json.Unmarshal(raw, &entries); err == nil && len(entries) > 0 {
			ix.finish(ctx, entries)
			return
		}
		ix.logger.Warn("Discarding corrupt cached location index", "document_id", ix.documentID)
	}

	entries, err := ix.generate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// stale document, the result is no longer wanted
			return
		}
		ix.logger.Error("Location index generation failed", err, "document_id", ix.documentID)
		ix.fail()
		return
	}

	if raw, err := json.Marshal(entries); err == nil {
		// Re-caching an already cached index is safe, merely wasteful.
		if err := ix.cache.Put(ix.documentID, raw); err != nil {
			ix.logger.Warn("Location index cache write failed", "document_id", ix.documentID, "error", err)
		}
	}

	ix.finish(ctx, entries)
}

// generate walks every section and assigns each section's start locator the
// percentage of characters read before it.
func (ix *LocationIndex) generate(ctx context.Context) ([]domain.IndexEntry, error) {
	sections, err := ix.source.Sections(ctx)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, errors.New("document has no sections")
	}

	total := 0
	for _, s := range sections {
		if s.CharCount > 0 {
			total += s.CharCount
		}
	}

	entries := make([]domain.IndexEntry, 0, len(sections))
	cum := 0
	for _, s := range sections {
		percent := 0.0
		if total > 0 {
			percent = float64(cum) / float64(total) * 100
		}
		entries = append(entries, domain.IndexEntry{Percent: percent, Locator: s.Locator})
		if s.CharCount > 0 {
			cum += s.CharCount
		}
	}
	return entries, nil
}

func (ix *LocationIndex) finish(ctx context.Context, entries []domain.IndexEntry) {
	if ctx.Err() != nil {
		return
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Percent < entries[j].Percent })

	ix.mu.Lock()
	ix.entries = entries
	ix.state = domain.IndexReady
	ix.mu.Unlock()
	close(ix.settled)

	ix.logger.Debug("Location index ready", "document_id", ix.documentID, "entries", len(entries))
}

func (ix *LocationIndex) fail() {
	ix.mu.Lock()
	ix.state = domain.IndexFailed
	ix.mu.Unlock()
	close(ix.settled)
}

// State returns the current index state
func (ix *LocationIndex) State() domain.IndexState {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.state
}

// AwaitReady waits at most bound for the index to become usable. It returns
// false on timeout, cancellation, or generation failure; it never waits
// unboundedly.
func (ix *LocationIndex) AwaitReady(ctx context.Context, bound time.Duration) bool {
	timer := time.NewTimer(bound)
	defer timer.Stop()

	select {
	case <-ix.settled:
		return ix.State() == domain.IndexReady
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

// PercentToLocator resolves a whole-document percentage to the locator of
// the section containing that point. Valid only once the index is ready.
func (ix *LocationIndex) PercentToLocator(p float64) (string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.state != domain.IndexReady {
		return "", domain.ErrIndexUnavailable
	}

	p = domain.ClampPercent(p)
	i := sort.Search(len(ix.entries), func(i int) bool { return ix.entries[i].Percent > p })
	if i == 0 {
		return ix.entries[0].Locator, nil
	}
	return ix.entries[i-1].Locator, nil
}

// LocatorToPercent returns the whole-document percentage for a locator known
// to the index. The second return is false while the index is not ready or
// when the locator is not an index boundary.
func (ix *LocationIndex) LocatorToPercent(locator string) (float64, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.state != domain.IndexReady {
		return 0, false
	}
	for _, e := range ix.entries {
		if e.Locator == locator {
			return e.Percent, true
		}
	}
	return 0, false
}
