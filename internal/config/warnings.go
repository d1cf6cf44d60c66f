package config

import (
	"log/slog"
	"sync"
)

// Warnings logs each distinct configuration warning once.
//
// The set of seen messages lives as long as the Warnings value. A daemon
// creates one at startup and keeps it for the life of the process; config
// reloads reuse it so a persistent misconfiguration is not logged again.
// A nil *Warnings discards everything.
type Warnings struct {
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewWarnings creates an empty warning set that logs to logger.
func NewWarnings(logger *slog.Logger) *Warnings {
	if logger == nil {
		logger = slog.Default()
	}
	return &Warnings{
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// Warn logs msg unless it was logged before. It reports whether msg was new.
func (w *Warnings) Warn(msg string) bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	if _, ok := w.seen[msg]; ok {
		w.mu.Unlock()
		return false
	}
	w.seen[msg] = struct{}{}
	w.mu.Unlock()

	w.logger.Warn(msg, "component", "config")
	return true
}

// Seen returns the distinct messages logged so far.
func (w *Warnings) Seen() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.seen))
	for msg := range w.seen {
		out = append(out, msg)
	}
	return out
}
