package service

import (
	"context"
	"sync"
	"time"

	"epub-reader-session/internal/domain"
)

// PositionRestorer replays the saved reading position for one open
// document. It runs exactly once per document open and degrades through
// decreasing-precision tiers instead of failing:
//
//	exact saved locator -> locator resolved from the progress percentage
//	-> document start.
//
// The exact-locator tier never needs the location index, so restoration is
// never blocked behind index generation. Only the percentage fallback waits
// for it, and only for a bounded interval.
type PositionRestorer struct {
	surface  domain.RenderSurface
	index    *LocationIndex
	filter   *RelocationFilter
	progress domain.ProgressRepository
	logger   domain.Logger

	indexWait time.Duration

	userID string
	bookID string
	token  string

	mu    sync.Mutex
	state domain.RestorationState
}

// NewPositionRestorer creates a restorer for one open reading session
func NewPositionRestorer(
	surface domain.RenderSurface,
	index *LocationIndex,
	filter *RelocationFilter,
	progress domain.ProgressRepository,
	config domain.Config,
	logger domain.Logger,
	userID, bookID, token string,
) *PositionRestorer {
	return &PositionRestorer{
		surface:   surface,
		index:     index,
		filter:    filter,
		progress:  progress,
		logger:    logger,
		indexWait: config.GetIndexWaitTimeout(),
		userID:    userID,
		bookID:    bookID,
		token:     token,
		state:     domain.RestorationNotStarted,
	}
}

// State returns the current restoration state
func (r *PositionRestorer) State() domain.RestorationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Restore runs the restoration flow once. A second call, or a call after
// the flow already completed, is a no-op. Cancelling ctx (the document was
// switched mid-flight) aborts without touching the stale surface.
func (r *PositionRestorer) Restore(ctx context.Context) error {
	r.mu.Lock()
	if r.state != domain.RestorationNotStarted {
		r.mu.Unlock()
		return nil
	}
	r.state = domain.RestorationRestoring
	r.mu.Unlock()

	defer r.complete()

	saved, err := r.progress.GetProgress(r.userID, r.bookID, r.token)
	if err != nil {
		// A failed fetch reads as a fresh book, never as an error dialog.
		r.logger.Warn("Progress fetch failed, starting from beginning",
			"book_id", r.bookID, "error", err)
		saved = nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if saved == nil || (saved.Locator == "" && saved.ProgressPercent <= 0) {
		return r.displayStart(ctx, 0)
	}

	if saved.Locator != "" && ValidateLocator(saved.Locator) {
		err := r.displayAt(ctx, saved.Locator, saved.ScrollOffsetPercent, saved.ProgressPercent, saved.ChapterIndex)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("Exact locator restore failed, trying percentage fallback",
			"book_id", r.bookID, "locator", saved.Locator, "error", err)
	} else if saved.Locator != "" {
		r.logger.Warn("Saved locator failed validation, trying percentage fallback",
			"book_id", r.bookID, "locator", saved.Locator)
	}

	if saved.ProgressPercent > 0 && r.index.AwaitReady(ctx, r.indexWait) {
		locator, err := r.index.PercentToLocator(saved.ProgressPercent)
		if err == nil {
			// Sub-fragment position is not recoverable from a percentage,
			// so the scroll offset defaults to the fragment top here.
			err = r.displayAt(ctx, locator, 0, saved.ProgressPercent, saved.ChapterIndex)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("Percentage restore failed, falling back to document start",
				"book_id", r.bookID, "error", err)
		}
	}

	// Exact position is lost; aggregate progress is preserved for display.
	return r.displayStart(ctx, saved.ProgressPercent)
}

func (r *PositionRestorer) displayStart(ctx context.Context, progressPercent float64) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Arm before the display call, never after.
	r.filter.Arm("")
	if err := r.surface.Display(ctx, ""); err != nil {
		// Nothing left to degrade to: total renderer unavailability is the
		// one failure reported upward.
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.filter.SetCurrent(domain.SavedProgress{
		ProgressPercent: domain.ClampPercent(progressPercent),
	})
	return nil
}

func (r *PositionRestorer) displayAt(ctx context.Context, locator string, scrollOffset, progressPercent float64, chapterIndex *int) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Arm before the display call, never after.
	r.filter.Arm(locator)
	if err := r.surface.Display(ctx, locator); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	scrollOffset = domain.ClampPercent(scrollOffset)
	if scrollOffset > 0 {
		r.applyScrollOffset(ctx, scrollOffset)
	}

	r.filter.SetCurrent(domain.SavedProgress{
		Locator:             locator,
		ProgressPercent:     domain.ClampPercent(progressPercent),
		ScrollOffsetPercent: scrollOffset,
		ChapterIndex:        chapterIndex,
	})
	return nil
}

// applyScrollOffset restores the sub-fragment scroll position. When the
// fragment fits the viewport there is nothing to scroll and no mutation is
// attempted at all.
func (r *PositionRestorer) applyScrollOffset(ctx context.Context, offsetPercent float64) {
	metrics := r.surface.ViewportMetrics()
	if metrics == nil {
		return
	}
	max := metrics.MaxScroll()
	if max <= 0 {
		return
	}
	target := offsetPercent / 100 * max
	if target <= 0 {
		return
	}
	if err := r.surface.SetScrollTop(ctx, target); err != nil {
		r.logger.Warn("Scroll offset restore failed", "book_id", r.bookID, "error", err)
	}
}

func (r *PositionRestorer) complete() {
	r.mu.Lock()
	r.state = domain.RestorationComplete
	r.mu.Unlock()
}
