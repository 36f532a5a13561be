package ports

import "context"

// SettingsStore is the generic key-value settings store of the host platform.
// Missing keys read as the empty string.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	// GetAll returns every setting in one read so callers can build a consistent snapshot
	GetAll(ctx context.Context) (map[string]string, error)
	// Set upserts all given keys atomically
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}
