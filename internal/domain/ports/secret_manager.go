package ports

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned when a path holds no secret
var ErrSecretNotFound = errors.New("secret not found")

// SecretManager stores sensitive settings outside the settings table.
// Supports multiple backends: local files, HashiCorp Vault, AWS Secrets Manager.
// Path format depends on implementation:
//   - Local: relative file path under the base directory
//   - AWS: "squareup/{key}" or full ARN
//   - Vault: "squareup/{key}" under the KV mount
type SecretManager interface {
	// GetSecret returns ErrSecretNotFound when nothing is stored at path
	GetSecret(ctx context.Context, path string) (string, error)

	// PutSecret creates or replaces the secret at path
	PutSecret(ctx context.Context, path, value string) error

	// DeleteSecret removes the secret at path; a missing secret is not an error
	DeleteSecret(ctx context.Context, path string) error
}
