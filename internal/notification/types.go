// Package notification sends human-readable messages about processed sessions
// through shoutrrr services.
package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/killclip/internal/logger"
)

// Type represents the category of a notification
type Type string

const (
	// TypeError indicates a failed session or clip
	TypeError Type = "error"
	// TypeWarning indicates a partially processed session
	TypeWarning Type = "warning"
	// TypeInfo indicates a fully processed session
	TypeInfo Type = "info"
)

// Notification is one message to deliver.
type Notification struct {
	ID        string
	Type      Type
	Title     string
	Message   string
	Timestamp time.Time
	Metadata  map[string]any
}

// NewNotification returns a notification with a fresh ID.
func NewNotification(notifType Type, title, message string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Type:      notifType,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Metadata:  map[string]any{},
	}
}

// WithMetadata adds a metadata entry and returns n.
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	n.Metadata[key] = value
	return n
}

// GetLogger returns the notification package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}
