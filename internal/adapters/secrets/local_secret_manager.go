package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kevin07696/squareup-service/internal/domain/ports"
)

// localSecretManager implements ports.SecretManager using one file per secret.
// WARNING: This is for development only. Use AWS Secrets Manager or Vault in production.
type localSecretManager struct {
	basePath string
	logger   ports.Logger
}

// NewLocalSecretManager creates a new local filesystem secret manager
func NewLocalSecretManager(basePath string, logger ports.Logger) ports.SecretManager {
	return &localSecretManager{
		basePath: basePath,
		logger:   logger,
	}
}

// GetSecret reads the secret file; surrounding whitespace is trimmed
func (m *localSecretManager) GetSecret(ctx context.Context, secretPath string) (string, error) {
	filePath, err := m.resolve(secretPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", ports.ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	m.logger.Debug("Read secret from filesystem", ports.String("path", secretPath))
	return strings.TrimSpace(string(data)), nil
}

// PutSecret writes the secret with owner-only permissions
func (m *localSecretManager) PutSecret(ctx context.Context, secretPath, value string) error {
	filePath, err := m.resolve(secretPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(value), 0o600); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}

	m.logger.Info("Stored secret to filesystem", ports.String("path", secretPath))
	return nil
}

// DeleteSecret removes the secret file
func (m *localSecretManager) DeleteSecret(ctx context.Context, secretPath string) error {
	filePath, err := m.resolve(secretPath)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	m.logger.Info("Deleted secret from filesystem", ports.String("path", secretPath))
	return nil
}

// resolve keeps every path inside basePath
func (m *localSecretManager) resolve(secretPath string) (string, error) {
	clean := filepath.Clean("/" + secretPath)
	if clean == "/" {
		return "", fmt.Errorf("invalid secret path %q", secretPath)
	}
	return filepath.Join(m.basePath, clean), nil
}
