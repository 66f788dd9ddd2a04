package service

import (
	"context"
	"sync"

	"epub-reader-session/internal/domain"

	"github.com/google/uuid"
)

// staticSections serves a spine manifest reported by the client at open
// time as a SectionSource.
type staticSections []domain.Section

func (s staticSections) Sections(ctx context.Context) ([]domain.Section, error) {
	return s, nil
}

// StaticSections wraps an already known section list as a SectionSource.
func StaticSections(sections []domain.Section) domain.SectionSource {
	return staticSections(sections)
}

// readerSession owns the restoration lifecycle for one (user, book) pair.
// Its context is cancelled the moment the session is closed or superseded,
// which invalidates any in-flight restoration or index generation.
type readerSession struct {
	id     string
	userID string
	bookID string
	token  string

	ctx    context.Context
	cancel context.CancelFunc

	index  *LocationIndex
	filter *RelocationFilter

	mu          sync.Mutex
	surface     domain.RenderSurface
	restorer    *PositionRestorer
	unsubscribe func()
}

type sessionManager struct {
	progress domain.ProgressRepository
	cache    domain.IndexCache
	config   domain.Config
	logger   domain.Logger

	mu       sync.Mutex
	sessions map[string]*readerSession
	byUser   map[string]*readerSession
}

// NewSessionManager creates the reader session service
func NewSessionManager(
	progress domain.ProgressRepository,
	cache domain.IndexCache,
	config domain.Config,
	logger domain.Logger,
) domain.ReaderSessionService {
	return &sessionManager{
		progress: progress,
		cache:    cache,
		config:   config,
		logger:   logger,
		sessions: make(map[string]*readerSession),
		byUser:   make(map[string]*readerSession),
	}
}

// Open creates a session for (user, book) and starts loading the location
// index right away, concurrently with everything that follows. A previous
// session of the same user is closed first, so a book switch cancels the
// old book's in-flight work.
func (m *sessionManager) Open(userID, bookID, token string, sections []domain.Section) (*domain.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byUser[userID]; ok {
		m.logger.Info("Closing previous session on book switch",
			"user_id", userID, "previous_book_id", prev.bookID, "book_id", bookID)
		m.closeLocked(prev)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &readerSession{
		id:     uuid.NewString(),
		userID: userID,
		bookID: bookID,
		token:  token,
		ctx:    ctx,
		cancel: cancel,
	}
	s.index = NewLocationIndex(bookID, m.cache, StaticSections(sections), m.logger)
	s.filter = NewRelocationFilter(s.index, m.progress, m.config, m.logger, userID, bookID, token)

	m.sessions[s.id] = s
	m.byUser[userID] = s

	s.index.Start(s.ctx)

	m.logger.Info("Reading session opened", "session_id", s.id, "user_id", userID, "book_id", bookID)
	return m.stateOf(s), nil
}

// AttachSurface binds the renderer connection to the session, subscribes
// the relocation filter, and starts restoration once the surface signals
// readiness. Restoration is gated on that explicit signal, never on a
// guessed delay, and not on index readiness.
func (m *sessionManager) AttachSurface(sessionID, userID string, surface domain.RenderSurface) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.userID != userID {
		return domain.ErrAccessDenied
	}

	s.mu.Lock()
	if s.surface != nil {
		s.mu.Unlock()
		return domain.ErrSurfaceAttached
	}
	s.surface = surface
	s.restorer = NewPositionRestorer(surface, s.index, s.filter, m.progress, m.config, m.logger,
		s.userID, s.bookID, s.token)
	s.unsubscribe = surface.OnRelocated(func(rel domain.Relocation) {
		if s.ctx.Err() != nil {
			// late notification for a closed session
			return
		}
		s.filter.HandleRelocation(rel)
	})
	s.mu.Unlock()

	go m.runRestore(s)
	return nil
}

func (m *sessionManager) runRestore(s *readerSession) {
	select {
	case <-s.surface.Ready():
	case <-s.ctx.Done():
		return
	}

	if err := s.restorer.Restore(s.ctx); err != nil && s.ctx.Err() == nil {
		m.logger.Error("Position restoration failed", err,
			"session_id", s.id, "book_id", s.bookID)
	}
}

// State returns a snapshot of the session
func (m *sessionManager) State(sessionID string) (*domain.SessionState, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return m.stateOf(s), nil
}

// Close tears the session down and flushes any pending progress save.
func (m *sessionManager) Close(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	m.closeLocked(s)
	return nil
}

// closeLocked assumes m.mu is held.
func (m *sessionManager) closeLocked(s *readerSession) {
	s.cancel()

	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.mu.Unlock()

	s.filter.Close()

	delete(m.sessions, s.id)
	if m.byUser[s.userID] == s {
		delete(m.byUser, s.userID)
	}

	m.logger.Info("Reading session closed", "session_id", s.id, "book_id", s.bookID)
}

func (m *sessionManager) stateOf(s *readerSession) *domain.SessionState {
	s.mu.Lock()
	restoration := domain.RestorationNotStarted
	if s.restorer != nil {
		restoration = s.restorer.State()
	}
	surfaceReady := false
	if s.surface != nil {
		select {
		case <-s.surface.Ready():
			surfaceReady = true
		default:
		}
	}
	s.mu.Unlock()

	indexState := s.index.State()

	return &domain.SessionState{
		ID:                 s.id,
		UserID:             s.userID,
		BookID:             s.bookID,
		Restoration:        restoration.String(),
		Index:              indexState.String(),
		PositionsAvailable: surfaceReady && indexState == domain.IndexReady,
		Progress:           s.filter.Current(),
	}
}
