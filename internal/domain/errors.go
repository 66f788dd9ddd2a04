package domain

import "errors"

// Domain errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrSurfaceAttached  = errors.New("render surface already attached")
	ErrIndexUnavailable = errors.New("location index not ready")
	ErrInvalidToken     = errors.New("invalid token")
)
