package domain

import "time"

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, err error, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// Config defines the interface for configuration management
type Config interface {
	GetServerPort() string
	GetLogLevel() string
	GetSupabaseURL() string
	GetSupabaseKey() string
	GetIndexCachePath() string

	// GetEchoTolerancePercent is the band, in whole-document percentage
	// points, within which a relocation is still treated as an echo of our
	// own navigation.
	GetEchoTolerancePercent() float64

	// GetIndexWaitTimeout bounds how long percentage-fallback restoration
	// waits for the location index before degrading to the document start.
	GetIndexWaitTimeout() time.Duration

	// GetSaveDebounce is the quiet period before a genuine relocation is
	// persisted to the progress service.
	GetSaveDebounce() time.Duration

	GetAllowedOrigins() []string
}

// ProgressRepository defines persistence operations against the external
// progress service.
type ProgressRepository interface {
	// GetProgress returns the saved progress for (user, book), or
	// (nil, nil) when the user has never read this book.
	GetProgress(userID, bookID string, token string) (*SavedProgress, error)
	SaveProgress(progress *SavedProgress, token string) error
}
