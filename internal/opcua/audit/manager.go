package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager registers hooks per EventType and dispatches matching events to
// them through a bounded execution pool, so a slow hook cannot block the
// transport goroutine reporting the event.
type Manager struct {
	hooks     map[EventType][]Hook
	stdioHook *StdioHook
	mu        sync.RWMutex
	pool      *executionPool
	log       *slog.Logger
	cfg       Config
}

// NewManager builds a Manager from cfg. A nil logger falls back to slog.Default().
func NewManager(cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	m := &Manager{
		hooks: make(map[EventType][]Hook),
		log:   log,
		cfg:   cfg,
		pool:  newExecutionPool(cfg.Concurrency, log),
	}
	if cfg.StdioFormat != "" {
		_ = m.EnableStdioOutput(cfg.StdioFormat)
	}
	return m
}

// RegisterHook adds hook to the set invoked for eventType.
func (m *Manager) RegisterHook(eventType EventType, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("cannot register nil hook")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[eventType] = append(m.hooks[eventType], hook)
	m.log.Info("audit hook registered", "event_type", eventType, "hook_type", hook.Type(), "hook_id", hook.ID())
	return nil
}

// UnregisterHook removes a hook by id from eventType's set, reporting whether it was found.
func (m *Manager) UnregisterHook(eventType EventType, hookID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	hooks := m.hooks[eventType]
	for i, h := range hooks {
		if h.ID() == hookID {
			m.hooks[eventType] = append(hooks[:i], hooks[i+1:]...)
			return true
		}
	}
	return false
}

// Emit dispatches event to every hook registered for its type, plus the
// stdio hook if enabled. Execution is asynchronous; Emit never blocks on a hook.
func (m *Manager) Emit(ctx context.Context, event Event) {
	if m == nil {
		return
	}
	m.mu.RLock()
	hooks := make([]Hook, len(m.hooks[event.Type]))
	copy(hooks, m.hooks[event.Type])
	stdio := m.stdioHook
	m.mu.RUnlock()

	if stdio != nil {
		hooks = append(hooks, stdio)
	}
	if len(hooks) == 0 {
		return
	}
	for _, h := range hooks {
		m.pool.execute(ctx, h, event, m.cfg.Timeout)
	}
}

// EnableStdioOutput turns on structured stdio output in the given format.
func (m *Manager) EnableStdioOutput(format string) error {
	if format != "json" && format != "env" {
		return fmt.Errorf("unsupported stdio format: %s", format)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stdioHook = NewStdioHook("stdio", format)
	return nil
}

// Close shuts down the execution pool, waiting for in-flight hooks to finish.
func (m *Manager) Close() error {
	if m.pool != nil {
		m.pool.close()
	}
	return nil
}

// executionPool bounds concurrent hook execution with a buffered-channel semaphore.
type executionPool struct {
	workers chan struct{}
	log     *slog.Logger
}

func newExecutionPool(size int, log *slog.Logger) *executionPool {
	if size <= 0 {
		size = 10
	}
	return &executionPool{workers: make(chan struct{}, size), log: log}
}

func (p *executionPool) execute(ctx context.Context, hook Hook, event Event, timeout time.Duration) {
	go func() {
		p.workers <- struct{}{}
		defer func() { <-p.workers }()

		hookCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		err := hook.Execute(hookCtx, event)
		if err != nil {
			p.log.Warn("audit hook execution failed", "hook_type", hook.Type(), "hook_id", hook.ID(),
				"event_type", event.Type, "duration", time.Since(start), "error", err)
		}
	}()
}

func (p *executionPool) close() {
	for i := 0; i < cap(p.workers); i++ {
		p.workers <- struct{}{}
	}
}
