package service

import (
	"context"
	"sync"
	"time"

	"epub-reader-session/internal/domain"
)

type mockLogger struct{}

func NewMockLogger() domain.Logger { return &mockLogger{} }

func (l *mockLogger) Info(msg string, fields ...interface{})             {}
func (l *mockLogger) Error(msg string, err error, fields ...interface{}) {}
func (l *mockLogger) Debug(msg string, fields ...interface{})            {}
func (l *mockLogger) Warn(msg string, fields ...interface{})             {}

// testConfig implements domain.Config with short timings for tests.
type testConfig struct {
	tolerance float64
	indexWait time.Duration
	debounce  time.Duration
}

func newTestConfig() *testConfig {
	return &testConfig{tolerance: 3, indexWait: 30 * time.Millisecond, debounce: 10 * time.Millisecond}
}

func (c *testConfig) GetServerPort() string              { return "0" }
func (c *testConfig) GetLogLevel() string                { return "error" }
func (c *testConfig) GetSupabaseURL() string             { return "" }
func (c *testConfig) GetSupabaseKey() string             { return "" }
func (c *testConfig) GetIndexCachePath() string          { return "" }
func (c *testConfig) GetEchoTolerancePercent() float64   { return c.tolerance }
func (c *testConfig) GetIndexWaitTimeout() time.Duration { return c.indexWait }
func (c *testConfig) GetSaveDebounce() time.Duration     { return c.debounce }
func (c *testConfig) GetAllowedOrigins() []string        { return nil }

// fakeIndexCache is an in-memory domain.IndexCache.
type fakeIndexCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeIndexCache() *fakeIndexCache {
	return &fakeIndexCache{data: make(map[string][]byte)}
}

func (c *fakeIndexCache) Get(documentID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[documentID]
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func (c *fakeIndexCache) Put(documentID string, raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[documentID] = raw
	return nil
}

func (c *fakeIndexCache) Close() error { return nil }

// fakeProgressRepo records saves and can block or fail fetches.
type fakeProgressRepo struct {
	mu        sync.Mutex
	saved     *domain.SavedProgress
	getErr    error
	gate      chan struct{} // when non-nil, GetProgress blocks until closed
	saveCalls []domain.SavedProgress
}

func newFakeProgressRepo() *fakeProgressRepo { return &fakeProgressRepo{} }

func (r *fakeProgressRepo) GetProgress(userID, bookID string, token string) (*domain.SavedProgress, error) {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if r.saved == nil {
		return nil, nil
	}
	copied := *r.saved
	return &copied, nil
}

func (r *fakeProgressRepo) SaveProgress(progress *domain.SavedProgress, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls = append(r.saveCalls, *progress)
	return nil
}

func (r *fakeProgressRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saveCalls)
}

func (r *fakeProgressRepo) lastSave() *domain.SavedProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saveCalls) == 0 {
		return nil
	}
	copied := r.saveCalls[len(r.saveCalls)-1]
	return &copied
}

// fakeSurface implements domain.RenderSurface for tests. Relocation echoes
// are emitted explicitly by the test via emit.
type fakeSurface struct {
	mu        sync.Mutex
	ready     chan struct{}
	displays  []string
	failOn    map[string]error
	metrics   *domain.ScrollMetrics
	scrolls   []float64
	callbacks map[int]func(domain.Relocation)
	nextCB    int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		ready:     make(chan struct{}),
		failOn:    make(map[string]error),
		callbacks: make(map[int]func(domain.Relocation)),
	}
}

func (s *fakeSurface) markReady() { close(s.ready) }

func (s *fakeSurface) Ready() <-chan struct{} { return s.ready }

func (s *fakeSurface) Display(ctx context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failOn[locator]; ok {
		return err
	}
	s.displays = append(s.displays, locator)
	return nil
}

func (s *fakeSurface) OnRelocated(cb func(domain.Relocation)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextCB
	s.nextCB++
	s.callbacks[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.callbacks, id)
	}
}

func (s *fakeSurface) ViewportMetrics() *domain.ScrollMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *fakeSurface) SetScrollTop(ctx context.Context, px float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls = append(s.scrolls, px)
	return nil
}

func (s *fakeSurface) emit(rel domain.Relocation) {
	s.mu.Lock()
	cbs := make([]func(domain.Relocation), 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(rel)
	}
}

func (s *fakeSurface) displayCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.displays))
	copy(out, s.displays)
	return out
}

func (s *fakeSurface) scrollCalls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.scrolls))
	copy(out, s.scrolls)
	return out
}

// waitUntil polls cond for up to the deadline.
func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// readyIndex builds a LocationIndex whose entries are already generated
// from the given sections.
func readyIndex(tb interface {
	Fatalf(format string, args ...interface{})
}, cache domain.IndexCache, sections []domain.Section) *LocationIndex {
	ix := NewLocationIndex("book-idx", cache, StaticSections(sections), NewMockLogger())
	ix.Start(context.Background())
	if !ix.AwaitReady(context.Background(), time.Second) {
		tb.Fatalf("expected index to become ready")
	}
	return ix
}
