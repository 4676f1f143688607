package simplecache

import (
	"log/slog"

	"github.com/Keksclan/simplecache/store"
)

// DefaultOptions returns the recommended set of options for a process-local
// cache: a fresh in-process store and the default logger.
func DefaultOptions() []Option {
	return []Option{
		WithStore(store.NewMemory()),
		WithLogger(slog.Default()),
	}
}
