package audit

import (
	"context"
	"time"
)

// Hook is a handler invoked when a matching Event occurs.
type Hook interface {
	// Execute runs the hook with the given event.
	Execute(ctx context.Context, event Event) error
	// Type returns the hook type identifier (e.g. "stdio", "webhook").
	Type() string
	// ID returns a unique identifier for this hook instance.
	ID() string
}

// Config configures a Manager's execution pool and optional stdio output.
type Config struct {
	// Timeout bounds a single hook execution.
	Timeout time.Duration
	// Concurrency bounds the number of hooks executing at once.
	Concurrency int
	// StdioFormat enables structured stdio output ("json", "env", or "" to disable).
	StdioFormat string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		Concurrency: 10,
		StdioFormat: "",
	}
}
