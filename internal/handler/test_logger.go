package handler

import "epub-reader-session/internal/domain"

// Mock logger used by handler package tests.
type MockHandlerLogger struct{}

func NewMockHandlerLogger() domain.Logger {
	return &MockHandlerLogger{}
}

func (m *MockHandlerLogger) Info(msg string, fields ...interface{})             {}
func (m *MockHandlerLogger) Error(msg string, err error, fields ...interface{}) {}
func (m *MockHandlerLogger) Debug(msg string, fields ...interface{})            {}
func (m *MockHandlerLogger) Warn(msg string, fields ...interface{})             {}
