// Package jobqueue runs background actions with retries and exponential backoff.
// The consumer uses it to upload created clips without blocking the next export.
package jobqueue

import (
	"context"
	"time"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// Common errors returned by queue operations.
var (
	ErrNilAction    = errors.NewStd("cannot enqueue nil action")
	ErrQueueStopped = errors.NewStd("job queue has been stopped")
	ErrQueueFull    = errors.NewStd("job queue is full")
)

// RetryConfig controls retries of one job.
type RetryConfig struct {
	Enabled      bool          // retry failed attempts
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // upper bound of the delay
	Multiplier   float64       // backoff growth per retry
}

// Action is a unit of work run by the queue.
type Action interface {
	Execute(ctx context.Context, data any) error
	GetDescription() string
}

// JobStatus is the state of a job.
type JobStatus int

const (
	// JobStatusPending - waiting for its first attempt.
	JobStatusPending JobStatus = iota
	// JobStatusRunning - an attempt is in progress.
	JobStatusRunning
	// JobStatusCompleted - an attempt succeeded.
	JobStatusCompleted
	// JobStatusFailed - every allowed attempt failed.
	JobStatusFailed
	// JobStatusRetrying - an attempt failed and another one is scheduled.
	JobStatusRetrying
)

// String returns a string representation of the job status.
func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "Pending"
	case JobStatusRunning:
		return "Running"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusFailed:
		return "Failed"
	case JobStatusRetrying:
		return "Retrying"
	default:
		return "Unknown"
	}
}

// IsFinal reports whether no further attempt will be made.
func (s JobStatus) IsFinal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Observer is notified when a job reaches a final state.
type Observer interface {
	JobFinished(description string, status JobStatus, attempts int, duration time.Duration)
}

// GetDefaultRetryConfig returns the default retry configuration.
func GetDefaultRetryConfig(enabled bool) RetryConfig {
	if !enabled {
		return RetryConfig{Enabled: false}
	}
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   5,
		InitialDelay: 30 * time.Second,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}
}

// GetLogger returns the jobqueue package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("jobqueue")
}
