package secrets

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/kevin07696/squareup-service/internal/domain/ports"
)

// DefaultPrefix is the secret path prefix of overlaid settings
const DefaultPrefix = "squareup"

// SettingsOverlay is a settings store whose sensitive keys live in a secret manager.
// Other keys pass through to the base store. A sensitive key missing from the secret
// manager falls back to the base store so existing installations keep working.
type SettingsOverlay struct {
	base      ports.SettingsStore
	secrets   ports.SecretManager
	prefix    string
	sensitive map[string]struct{}
	logger    ports.Logger
}

// NewSettingsOverlay overlays keys onto base
func NewSettingsOverlay(base ports.SettingsStore, secrets ports.SecretManager, prefix string, keys []string, logger ports.Logger) *SettingsOverlay {
	sensitive := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		sensitive[k] = struct{}{}
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SettingsOverlay{
		base:      base,
		secrets:   secrets,
		prefix:    prefix,
		sensitive: sensitive,
		logger:    logger,
	}
}

// Get returns key from the secret manager when it is sensitive and stored there
func (o *SettingsOverlay) Get(ctx context.Context, key string) (string, error) {
	if o.isSensitive(key) {
		value, found, err := o.getSecret(ctx, key)
		if err != nil {
			return "", err
		}
		if found {
			return value, nil
		}
	}
	return o.base.Get(ctx, key)
}

// GetAll returns the base settings with stored secrets applied on top
func (o *SettingsOverlay) GetAll(ctx context.Context) (map[string]string, error) {
	all, err := o.base.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, key := range slices.Sorted(maps.Keys(o.sensitive)) {
		value, found, err := o.getSecret(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			all[key] = value
		}
	}
	return all, nil
}

// Set writes sensitive keys to the secret manager, then the rest to the base store.
// Sensitive keys are also removed from the base store so no plaintext copy lingers.
func (o *SettingsOverlay) Set(ctx context.Context, values map[string]string) error {
	plain := make(map[string]string, len(values))
	var moved []string

	for key, value := range values {
		if !o.isSensitive(key) {
			plain[key] = value
			continue
		}
		if err := o.secrets.PutSecret(ctx, o.path(key), value); err != nil {
			return fmt.Errorf("store %s in secret manager: %w", key, err)
		}
		moved = append(moved, key)
	}

	if err := o.base.Set(ctx, plain); err != nil {
		return err
	}
	if len(moved) > 0 {
		return o.base.Delete(ctx, moved...)
	}
	return nil
}

// Delete removes keys from both stores
func (o *SettingsOverlay) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if !o.isSensitive(key) {
			continue
		}
		if err := o.secrets.DeleteSecret(ctx, o.path(key)); err != nil {
			return fmt.Errorf("delete %s from secret manager: %w", key, err)
		}
	}
	return o.base.Delete(ctx, keys...)
}

func (o *SettingsOverlay) getSecret(ctx context.Context, key string) (string, bool, error) {
	value, err := o.secrets.GetSecret(ctx, o.path(key))
	if errors.Is(err, ports.ErrSecretNotFound) {
		o.logger.Debug("Setting not in secret manager, using settings store", ports.String("key", key))
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s from secret manager: %w", key, err)
	}
	return value, true, nil
}

func (o *SettingsOverlay) isSensitive(key string) bool {
	_, ok := o.sensitive[key]
	return ok
}

func (o *SettingsOverlay) path(key string) string {
	return o.prefix + "/" + key
}
