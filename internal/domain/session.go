package domain

// SessionState is a snapshot of one open reading session.
type SessionState struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`

	Restoration string `json:"restoration"`
	Index       string `json:"index"`

	// PositionsAvailable is true once both the render surface and the
	// location index are ready, at which point page/position numbers can
	// be computed for display.
	PositionsAvailable bool `json:"positions_available"`

	Progress SavedProgress `json:"progress"`
}

// ReaderSessionService manages reading sessions: one active session per
// user, restoration started once the renderer attaches.
type ReaderSessionService interface {
	// Open creates a session for (user, book). Any previous session of the
	// same user is closed first; its in-flight work is cancelled and late
	// completions are discarded. The sections feed location-index
	// generation on a cache miss and may be empty.
	Open(userID, bookID, token string, sections []Section) (*SessionState, error)

	// AttachSurface binds the renderer connection to the session and kicks
	// off position restoration once the surface reports ready.
	AttachSurface(sessionID, userID string, surface RenderSurface) error

	State(sessionID string) (*SessionState, error)

	// Close tears the session down, flushing any pending progress save.
	Close(sessionID string) error
}
