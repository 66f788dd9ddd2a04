package service

import (
	"math"
	"sync"
	"time"

	"epub-reader-session/internal/domain"
)

// RelocationFilter classifies each relocation notification from the render
// surface as an echo of our own programmatic navigation or as genuine user
// movement, and persists progress only for genuine moves.
//
// The echo token is armed by the PositionRestorer strictly before the
// display call that will produce the echo; arming it afterwards would race
// the renderer's notification. Only the restorer ever arms it.
type RelocationFilter struct {
	index    *LocationIndex
	progress domain.ProgressRepository
	logger   domain.Logger

	tolerancePercent float64
	debounce         time.Duration

	userID string
	bookID string
	token  string

	mu           sync.Mutex
	armed        bool
	armedLocator string
	current      domain.SavedProgress
	pending      *domain.SavedProgress
	timer        *time.Timer
	closed       bool
}

// NewRelocationFilter creates a filter for one open reading session
func NewRelocationFilter(
	index *LocationIndex,
	progress domain.ProgressRepository,
	config domain.Config,
	logger domain.Logger,
	userID, bookID, token string,
) *RelocationFilter {
	return &RelocationFilter{
		index:            index,
		progress:         progress,
		logger:           logger,
		tolerancePercent: config.GetEchoTolerancePercent(),
		debounce:         config.GetSaveDebounce(),
		userID:           userID,
		bookID:           bookID,
		token:            token,
		current: domain.SavedProgress{
			UserID: userID,
			BookID: bookID,
		},
	}
}

// Arm marks the next relocation notification as the echo of a programmatic
// display call at locator. An empty locator arms suppression for a jump to
// the document start, whose echoed locator is renderer-chosen.
func (f *RelocationFilter) Arm(locator string) {
	f.mu.Lock()
	f.armed = true
	f.armedLocator = locator
	f.mu.Unlock()
}

// SetCurrent seeds the live progress state, used by the restorer once a
// restoration tier has been applied.
func (f *RelocationFilter) SetCurrent(progress domain.SavedProgress) {
	f.mu.Lock()
	progress.UserID = f.userID
	progress.BookID = f.bookID
	f.current = progress
	f.mu.Unlock()
}

// Current returns the live progress state
func (f *RelocationFilter) Current() domain.SavedProgress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// HandleRelocation processes one relocation notification from the surface.
func (f *RelocationFilter) HandleRelocation(rel domain.Relocation) {
	f.mu.Lock()

	if f.armed {
		// The token is single use: whatever the next notification turns
		// out to be, it consumes the token.
		armedLocator := f.armedLocator
		f.armed = false
		f.armedLocator = ""

		if armedLocator == "" || rel.Locator == armedLocator {
			f.mu.Unlock()
			return
		}

		// The renderer sometimes snaps to a nearby boundary instead of the
		// exact requested locator. Absorb those within the tolerance band
		// so they are not mistaken for a page turn right after restoring.
		if tp, ok := f.index.LocatorToPercent(armedLocator); ok {
			if np, ok := f.index.LocatorToPercent(rel.Locator); ok {
				if math.Abs(np-tp) <= f.tolerancePercent {
					f.mu.Unlock()
					return
				}
			}
		}
	}

	progress := domain.SavedProgress{
		UserID:              f.userID,
		BookID:              f.bookID,
		Locator:             rel.Locator,
		ScrollOffsetPercent: scrollOffsetPercent(rel.Metrics),
		UpdatedAt:           time.Now(),
	}
	if p, ok := f.index.LocatorToPercent(rel.Locator); ok {
		progress.ProgressPercent = p
	} else {
		// index not ready yet, keep the last known aggregate
		progress.ProgressPercent = f.current.ProgressPercent
	}

	f.current = progress
	f.schedulePersistLocked(progress)
	f.mu.Unlock()
}

// schedulePersistLocked debounces persistence so rapid page turns produce a
// single save. Caller holds f.mu.
func (f *RelocationFilter) schedulePersistLocked(progress domain.SavedProgress) {
	if f.closed {
		return
	}
	f.pending = &progress
	if f.timer == nil {
		f.timer = time.AfterFunc(f.debounce, f.flush)
	} else {
		f.timer.Reset(f.debounce)
	}
}

func (f *RelocationFilter) flush() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.timer = nil
	f.mu.Unlock()

	if pending == nil {
		return
	}
	if err := f.progress.SaveProgress(pending, f.token); err != nil {
		// The in-memory state stays correct; the session is unaffected.
		f.logger.Warn("Progress save failed",
			"user_id", f.userID,
			"book_id", f.bookID,
			"error", err)
	}
}

// Close stops the debounce timer and flushes any pending save.
func (f *RelocationFilter) Close() {
	f.mu.Lock()
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	if pending != nil {
		if err := f.progress.SaveProgress(pending, f.token); err != nil {
			f.logger.Warn("Final progress save failed",
				"user_id", f.userID,
				"book_id", f.bookID,
				"error", err)
		}
	}
}

// scrollOffsetPercent derives the in-fragment scroll position from live
// viewport metrics, clamped to [0,100].
func scrollOffsetPercent(m *domain.ScrollMetrics) float64 {
	if m == nil {
		return 0
	}
	max := m.MaxScroll()
	if max <= 0 {
		return 0
	}
	return domain.ClampPercent(m.ScrollTop / max * 100)
}
