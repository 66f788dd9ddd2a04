package service

import (
	"testing"
	"time"

	"epub-reader-session/internal/domain"
)

// tolerance test fixture: boundaries at 0%, 10%, 12%, 40%
var filterSections = []domain.Section{
	{Locator: "epubcfi(/6/2)", CharCount: 100},
	{Locator: "epubcfi(/6/4)", CharCount: 20},
	{Locator: "epubcfi(/6/6)", CharCount: 280},
	{Locator: "epubcfi(/6/8)", CharCount: 600},
}

func newTestFilter(t *testing.T, ready bool) (*RelocationFilter, *fakeProgressRepo) {
	t.Helper()
	repo := newFakeProgressRepo()
	cache := newFakeIndexCache()

	var ix *LocationIndex
	if ready {
		ix = readyIndex(t, cache, filterSections)
	} else {
		ix = NewLocationIndex("book-1", cache, StaticSections(filterSections), NewMockLogger())
	}

	f := NewRelocationFilter(ix, repo, newTestConfig(), NewMockLogger(), "user-1", "book-1", "token")
	return f, repo
}

func TestRelocationFilter_ExactEchoSuppressed(t *testing.T) {
	f, repo := newTestFilter(t, false)

	f.Arm("epubcfi(/6/4)")
	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/4)"})

	time.Sleep(30 * time.Millisecond)
	if repo.saveCount() != 0 {
		t.Fatalf("expected no persistence for an exact echo, got %d saves", repo.saveCount())
	}
}

func TestRelocationFilter_TokenIsSingleUse(t *testing.T) {
	f, repo := newTestFilter(t, false)

	f.Arm("epubcfi(/6/4)")
	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/4)"})
	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/6)"})

	if !waitUntil(time.Second, func() bool { return repo.saveCount() == 1 }) {
		t.Fatalf("expected the second relocation to persist, got %d saves", repo.saveCount())
	}
	if repo.lastSave().Locator != "epubcfi(/6/6)" {
		t.Fatalf("unexpected persisted locator %s", repo.lastSave().Locator)
	}
}

func TestRelocationFilter_ToleranceBandSuppressed(t *testing.T) {
	f, repo := newTestFilter(t, true)

	// requested 10%, renderer snapped to the 12% boundary: within 3 points
	f.Arm("epubcfi(/6/4)")
	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/6)"})

	time.Sleep(30 * time.Millisecond)
	if repo.saveCount() != 0 {
		t.Fatalf("expected near-miss echo to be suppressed, got %d saves", repo.saveCount())
	}
}

func TestRelocationFilter_BeyondToleranceIsGenuine(t *testing.T) {
	f, repo := newTestFilter(t, true)

	// requested 10%, landed on 40%: far beyond the band
	f.Arm("epubcfi(/6/4)")
	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/8)"})

	if !waitUntil(time.Second, func() bool { return repo.saveCount() == 1 }) {
		t.Fatalf("expected genuine relocation to persist")
	}
	saved := repo.lastSave()
	if saved.Locator != "epubcfi(/6/8)" {
		t.Fatalf("unexpected persisted locator %s", saved.Locator)
	}
	if saved.ProgressPercent != 40 {
		t.Fatalf("expected progress 40, got %v", saved.ProgressPercent)
	}
}

func TestRelocationFilter_ToleranceUnavailableWithoutIndex(t *testing.T) {
	// Without a ready index the near-miss cannot be recognized as an echo.
	f, repo := newTestFilter(t, false)

	f.Arm("epubcfi(/6/4)")
	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/6)"})

	if !waitUntil(time.Second, func() bool { return repo.saveCount() == 1 }) {
		t.Fatalf("expected relocation to be treated as genuine without the index")
	}
}

func TestRelocationFilter_StartJumpSuppressesNextRelocation(t *testing.T) {
	f, repo := newTestFilter(t, false)

	// a display at the document start echoes a renderer-chosen locator
	f.Arm("")
	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/2)"})

	time.Sleep(30 * time.Millisecond)
	if repo.saveCount() != 0 {
		t.Fatalf("expected start-jump echo to be suppressed")
	}
}

func TestRelocationFilter_GenuineMoveUpdatesState(t *testing.T) {
	f, repo := newTestFilter(t, true)

	f.HandleRelocation(domain.Relocation{
		Locator: "epubcfi(/6/6)",
		Metrics: &domain.ScrollMetrics{ScrollTop: 150, ScrollHeight: 400, ClientHeight: 100},
	})

	current := f.Current()
	if current.Locator != "epubcfi(/6/6)" {
		t.Fatalf("expected live locator update, got %s", current.Locator)
	}
	if current.ProgressPercent != 12 {
		t.Fatalf("expected progress 12, got %v", current.ProgressPercent)
	}
	if current.ScrollOffsetPercent != 50 {
		t.Fatalf("expected scroll offset 50, got %v", current.ScrollOffsetPercent)
	}

	if !waitUntil(time.Second, func() bool { return repo.saveCount() == 1 }) {
		t.Fatalf("expected debounced persistence")
	}
}

func TestRelocationFilter_DebounceCoalescesRapidMoves(t *testing.T) {
	f, repo := newTestFilter(t, true)

	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/4)"})
	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/6)"})
	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/8)"})

	if !waitUntil(time.Second, func() bool { return repo.saveCount() >= 1 }) {
		t.Fatalf("expected a persistence call")
	}
	time.Sleep(30 * time.Millisecond)
	if repo.saveCount() != 1 {
		t.Fatalf("expected rapid moves to coalesce into one save, got %d", repo.saveCount())
	}
	if repo.lastSave().Locator != "epubcfi(/6/8)" {
		t.Fatalf("expected last position to win, got %s", repo.lastSave().Locator)
	}
}

func TestRelocationFilter_CloseFlushesPendingSave(t *testing.T) {
	repo := newFakeProgressRepo()
	cache := newFakeIndexCache()
	ix := readyIndex(t, cache, filterSections)

	cfg := newTestConfig()
	cfg.debounce = time.Hour // would never fire on its own
	f := NewRelocationFilter(ix, repo, cfg, NewMockLogger(), "user-1", "book-1", "token")

	f.HandleRelocation(domain.Relocation{Locator: "epubcfi(/6/6)"})
	f.Close()

	if repo.saveCount() != 1 {
		t.Fatalf("expected close to flush the pending save, got %d", repo.saveCount())
	}
}
