package domain

import (
	"time"
)

// SavedProgress is the persisted reading state for one user and one book.
// Locator identifies the exact fragment the reader was on; ProgressPercent
// is whole-book completion and survives even when the locator cannot be
// resolved anymore.
type SavedProgress struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`

	// Locator is an opaque renderer position string (an EPUB CFI).
	// Empty when only aggregate progress is known.
	Locator string `json:"locator,omitempty"`

	// ProgressPercent is whole-document completion in [0,100].
	ProgressPercent float64 `json:"progress_percent"`

	// ScrollOffsetPercent is the scroll position inside the fragment the
	// locator points at, in [0,100]. Zero means top of fragment.
	ScrollOffsetPercent float64 `json:"scroll_offset_percent"`

	ChapterIndex *int `json:"chapter_index,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ScrollMetrics are the live scroll measurements of the rendered fragment's
// viewport.
type ScrollMetrics struct {
	ScrollTop    float64 `json:"scroll_top"`
	ScrollHeight float64 `json:"scroll_height"`
	ClientHeight float64 `json:"client_height"`
}

// MaxScroll returns the scrollable range of the viewport. Zero or negative
// means the fragment fits on screen and no scrolling is possible.
func (m ScrollMetrics) MaxScroll() float64 {
	return m.ScrollHeight - m.ClientHeight
}

// RestorationState tracks the one-shot position restoration flow for an
// open document.
type RestorationState int

const (
	RestorationNotStarted RestorationState = iota
	RestorationRestoring
	RestorationComplete
)

func (s RestorationState) String() string {
	switch s {
	case RestorationNotStarted:
		return "not_started"
	case RestorationRestoring:
		return "restoring"
	case RestorationComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Relocation is a position-change notification from the render surface.
// It fires for both programmatic display calls and user navigation; the
// surface itself cannot tell the two apart.
type Relocation struct {
	Locator string
	Metrics *ScrollMetrics
}

// ClampPercent bounds a percentage value to [0,100].
func ClampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
