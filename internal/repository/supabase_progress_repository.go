package repository

import (
	"encoding/json"
	"time"

	"epub-reader-session/internal/domain"
	apperrors "epub-reader-session/pkg/errors"

	"github.com/supabase-community/supabase-go"
)

// SupabaseProgressRepository implements domain.ProgressRepository against
// the reading_progress table
type SupabaseProgressRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

// NewSupabaseProgressRepository creates a new Supabase progress repository
func NewSupabaseProgressRepository(supabaseClient domain.SupabaseClient, logger domain.Logger) domain.ProgressRepository {
	return &SupabaseProgressRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

func (r *SupabaseProgressRepository) client(token string) (*supabase.Client, error) {
	if token != "" {
		return r.supabaseClient.GetClientWithToken(token)
	}
	if client := r.supabaseClient.DB(); client != nil {
		return client, nil
	}
	return nil, apperrors.NewUnavailableError("supabase client not initialized")
}

// GetProgress retrieves saved reading progress for (user, book).
// A missing row is not an error: it returns (nil, nil).
func (r *SupabaseProgressRepository) GetProgress(userID, bookID string, token string) (*domain.SavedProgress, error) {
	client, err := r.client(token)
	if err != nil {
		return nil, err
	}

	data, _, err := client.From("reading_progress").
		Select("*", "", false).
		Eq("user_id", userID).
		Eq("book_id", bookID).
		Execute()
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to get reading progress", err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, apperrors.NewInternalError("failed to unmarshal reading progress", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return r.mapToSavedProgress(rows[0]), nil
}

// SaveProgress upserts the reading progress row for (user, book)
func (r *SupabaseProgressRepository) SaveProgress(progress *domain.SavedProgress, token string) error {
	client, err := r.client(token)
	if err != nil {
		return err
	}

	updatedAt := progress.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	data := map[string]interface{}{
		"user_id":               progress.UserID,
		"book_id":               progress.BookID,
		"locator":               progress.Locator,
		"progress_percent":      domain.ClampPercent(progress.ProgressPercent),
		"scroll_offset_percent": domain.ClampPercent(progress.ScrollOffsetPercent),
		"chapter_index":         progress.ChapterIndex,
		"updated_at":            updatedAt,
	}

	// Use upsert to insert or update
	_, _, err = client.From("reading_progress").
		Upsert(data, "user_id,book_id", "", "").
		Execute()
	if err != nil {
		return apperrors.NewNetworkError("failed to save reading progress", err)
	}

	r.logger.Debug("Reading progress saved",
		"user_id", progress.UserID,
		"book_id", progress.BookID,
		"progress_percent", progress.ProgressPercent)
	return nil
}

// mapToSavedProgress converts a row map to a SavedProgress struct
func (r *SupabaseProgressRepository) mapToSavedProgress(data map[string]interface{}) *domain.SavedProgress {
	progress := &domain.SavedProgress{
		UserID:              getString(data, "user_id"),
		BookID:              getString(data, "book_id"),
		Locator:             getString(data, "locator"),
		ProgressPercent:     domain.ClampPercent(getFloat64(data, "progress_percent")),
		ScrollOffsetPercent: domain.ClampPercent(getFloat64(data, "scroll_offset_percent")),
		ChapterIndex:        getIntPtr(data, "chapter_index"),
	}

	if raw := getString(data, "updated_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			progress.UpdatedAt = ts
		}
	}

	return progress
}

// Helper functions for type conversion
func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok && val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

func getFloat64(data map[string]interface{}, key string) float64 {
	if val, ok := data[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return 0.0
}

func getIntPtr(data map[string]interface{}, key string) *int {
	if val, ok := data[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			i := int(v)
			return &i
		case int:
			i := v
			return &i
		case int64:
			i := int(v)
			return &i
		}
	}
	return nil
}
