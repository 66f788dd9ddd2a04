package handler

import (
	"net/http"

	"epub-reader-session/internal/config"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(container *config.Container) http.Handler {
	router := mux.NewRouter()

	// API prefix
	api := router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoint (no auth required)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"epub-reader-session"}`))
	}).Methods("GET")

	// Initialize handlers
	sessionHandler := NewSessionHandler(container.SessionService, container.ProgressRepository, container.Logger)
	rendererHandler := NewRendererHandler(container.SessionService, container.Config.GetAllowedOrigins(), container.Logger)

	// Auth middleware for protected routes
	authMiddleware := NewAuthMiddleware(container.AuthService, container.Logger).Middleware

	// Protected routes (require authentication)
	protected := api.PathPrefix("").Subrouter()
	protected.Use(authMiddleware)

	// Session routes (protected)
	protected.HandleFunc("/sessions", sessionHandler.CreateSession).Methods("POST")
	protected.HandleFunc("/sessions/{id}", sessionHandler.GetSession).Methods("GET")
	protected.HandleFunc("/sessions/{id}", sessionHandler.CloseSession).Methods("DELETE")
	protected.HandleFunc("/sessions/{id}/renderer", rendererHandler.Attach).Methods("GET")

	// Progress routes (protected)
	protected.HandleFunc("/progress/{bookId}", sessionHandler.GetProgress).Methods("GET")
	protected.HandleFunc("/progress/{bookId}", sessionHandler.SaveProgress).Methods("PUT")

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins: container.Config.GetAllowedOrigins(),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
		},
		ExposedHeaders: []string{
			"Link",
		},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	return c.Handler(router)
}
