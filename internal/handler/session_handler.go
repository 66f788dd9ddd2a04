package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"epub-reader-session/internal/domain"
	"epub-reader-session/internal/service"

	"github.com/gorilla/mux"
)

// SessionHandler handles reading-session HTTP requests
type SessionHandler struct {
	sessionService domain.ReaderSessionService
	progressRepo   domain.ProgressRepository
	logger         domain.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService domain.ReaderSessionService, progressRepo domain.ProgressRepository, logger domain.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		progressRepo:   progressRepo,
		logger:         logger,
	}
}

type createSessionRequest struct {
	BookID string `json:"book_id"`

	// Sections feed location-index generation when the index is not
	// cached yet. The client that parsed the book supplies them.
	Sections []domain.Section `json:"sections,omitempty"`
}

// CreateSession opens a reading session for the authenticated user. Any
// previous session of the same user is closed first.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}
	token, _ := GetTokenFromContext(r)

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BookID == "" {
		writeError(w, http.StatusBadRequest, "Book ID is required")
		return
	}

	state, err := h.sessionService.Open(user.ID, req.BookID, token, req.Sections)
	if err != nil {
		h.logger.Error("Failed to open session", err, "user_id", user.ID, "book_id", req.BookID)
		writeError(w, http.StatusInternalServerError, "Failed to open session")
		return
	}

	writeJSON(w, http.StatusCreated, state)
}

// GetSession returns the current snapshot of a session.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}

	sessionID := mux.Vars(r)["id"]
	state, err := h.sessionService.State(sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to get session", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if state.UserID != user.ID {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// CloseSession tears a session down, flushing any pending progress save.
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}

	sessionID := mux.Vars(r)["id"]
	state, err := h.sessionService.State(sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to get session", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "Failed to close session")
		return
	}
	if state.UserID != user.ID {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}

	if err := h.sessionService.Close(sessionID); err != nil {
		h.logger.Error("Failed to close session", err, "session_id", sessionID)
		writeError(w, http.StatusInternalServerError, "Failed to close session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// GetProgress returns the saved reading progress for a book.
func (h *SessionHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}
	token, _ := GetTokenFromContext(r)

	bookID := mux.Vars(r)["bookId"]
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "Book ID is required")
		return
	}

	progress, err := h.progressRepo.GetProgress(user.ID, bookID, token)
	if err != nil {
		h.logger.Error("Failed to get progress", err, "user_id", user.ID, "book_id", bookID)
		writeAppError(w, err, "Failed to retrieve progress")
		return
	}
	if progress == nil {
		writeError(w, http.StatusNotFound, "No reading progress for this book")
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

// SaveProgress stores reading progress directly, bypassing the session
// flow. Lets clients sync progress recorded while offline.
func (h *SessionHandler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}
	token, _ := GetTokenFromContext(r)

	bookID := mux.Vars(r)["bookId"]
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "Book ID is required")
		return
	}

	var progress domain.SavedProgress
	if err := json.NewDecoder(r.Body).Decode(&progress); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if progress.Locator != "" && !service.ValidateLocator(progress.Locator) {
		writeError(w, http.StatusBadRequest, "Invalid locator")
		return
	}
	progress.UserID = user.ID
	progress.BookID = bookID

	if err := h.progressRepo.SaveProgress(&progress, token); err != nil {
		h.logger.Error("Failed to save progress", err, "user_id", user.ID, "book_id", bookID)
		writeAppError(w, err, "Failed to save progress")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
