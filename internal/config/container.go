package config

import (
	"epub-reader-session/internal/domain"
	"epub-reader-session/internal/repository"
	"epub-reader-session/internal/service"
	"epub-reader-session/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config             domain.Config
	Logger             domain.Logger
	SupabaseClient     domain.SupabaseClient
	ProgressRepository domain.ProgressRepository
	IndexCache         domain.IndexCache
	AuthService        domain.AuthService
	SessionService     domain.ReaderSessionService
}

// NewContainer creates a new dependency injection container
func NewContainer() (*Container, error) {
	config := NewConfig()
	appLogger := logger.NewLogger(config.GetLogLevel())

	// Initialize Supabase client
	supabaseClient := repository.NewSupabaseClient(config, appLogger)
	if err := supabaseClient.Initialize(); err != nil {
		appLogger.Warn("Supabase client not initialized, progress persistence disabled", "error", err.Error())
	}

	// Initialize repositories
	progressRepo := repository.NewSupabaseProgressRepository(supabaseClient, appLogger)
	indexCache, err := repository.NewBadgerIndexCache(config.GetIndexCachePath(), appLogger)
	if err != nil {
		return nil, err
	}

	// Initialize services
	authService := service.NewAuthService(supabaseClient, appLogger)
	sessionService := service.NewSessionManager(progressRepo, indexCache, config, appLogger)

	return &Container{
		Config:             config,
		Logger:             appLogger,
		SupabaseClient:     supabaseClient,
		ProgressRepository: progressRepo,
		IndexCache:         indexCache,
		AuthService:        authService,
		SessionService:     sessionService,
	}, nil
}

// GetConfig returns the configuration instance
func (c *Container) GetConfig() domain.Config {
	return c.Config
}

// GetLogger returns the logger instance
func (c *Container) GetLogger() domain.Logger {
	return c.Logger
}

// GetSupabaseClient returns the Supabase client instance
func (c *Container) GetSupabaseClient() domain.SupabaseClient {
	return c.SupabaseClient
}

// GetSessionService returns the reader session service instance
func (c *Container) GetSessionService() domain.ReaderSessionService {
	return c.SessionService
}

// Close releases resources held by the container.
func (c *Container) Close() error {
	return c.IndexCache.Close()
}
