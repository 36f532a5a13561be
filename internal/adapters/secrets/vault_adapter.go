package secrets

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/kevin07696/squareup-service/internal/domain/ports"
)

// VaultConfig contains configuration for HashiCorp Vault adapter
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token" or "approle"
	AuthMethod string

	// Token for token authentication
	Token string

	// AppRole credentials (if using AppRole auth)
	RoleID   string
	SecretID string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string

	// Cache TTL; 0 disables caching
	CacheTTL time.Duration

	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for Vault adapter
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:    address,
		AuthMethod: "token",
		MountPath:  "secret",
		KVVersion:  "v2",
		CacheTTL:   5 * time.Minute,
	}
}

// vaultAdapter implements ports.SecretManager for a Vault KV engine.
// Each secret is stored under the "value" field.
type vaultAdapter struct {
	client *vault.Client
	config *VaultConfig
	logger ports.Logger
	cache  *secretCache
}

// NewVaultAdapter creates a new HashiCorp Vault adapter
func NewVaultAdapter(ctx context.Context, cfg *VaultConfig, logger ports.Logger) (ports.SecretManager, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault adapter initialized",
		ports.String("address", cfg.Address),
		ports.String("auth_method", cfg.AuthMethod),
		ports.String("mount_path", cfg.MountPath),
		ports.String("kv_version", cfg.KVVersion),
	)

	return &vaultAdapter{
		client: client,
		config: cfg,
		logger: logger,
		cache:  newSecretCache(cfg.CacheTTL),
	}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	switch cfg.AuthMethod {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}

		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// GetSecret reads the "value" field of the secret at path
func (a *vaultAdapter) GetSecret(ctx context.Context, path string) (string, error) {
	if cached, ok := a.cache.get(path); ok {
		return cached, nil
	}

	secret, err := a.client.Logical().ReadWithContext(ctx, a.dataPath(path))
	if err != nil {
		a.logger.Error("Failed to read secret from Vault", ports.String("path", path), ports.Err(err))
		return "", fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", ports.ErrSecretNotFound
	}

	data := secret.Data
	if a.config.KVVersion == "v2" {
		// KV v2 wraps data in "data"; a deleted version has data: null
		inner, ok := data["data"].(map[string]interface{})
		if !ok {
			return "", ports.ErrSecretNotFound
		}
		data = inner
	}

	value, ok := data["value"].(string)
	if !ok {
		return "", fmt.Errorf("secret %s has no string value field", path)
	}

	a.cache.set(path, value)
	return value, nil
}

// PutSecret writes value to the "value" field at path
func (a *vaultAdapter) PutSecret(ctx context.Context, path, value string) error {
	defer a.cache.invalidate(path)

	payload := map[string]interface{}{"value": value}
	if a.config.KVVersion == "v2" {
		payload = map[string]interface{}{"data": payload}
	}

	if _, err := a.client.Logical().WriteWithContext(ctx, a.dataPath(path), payload); err != nil {
		a.logger.Error("Failed to write secret to Vault", ports.String("path", path), ports.Err(err))
		return fmt.Errorf("failed to write secret: %w", err)
	}

	a.logger.Info("Secret written to Vault", ports.String("path", path))
	return nil
}

// DeleteSecret removes every version of the secret at path
func (a *vaultAdapter) DeleteSecret(ctx context.Context, path string) error {
	defer a.cache.invalidate(path)

	fullPath := fmt.Sprintf("%s/%s", a.config.MountPath, path)
	if a.config.KVVersion == "v2" {
		fullPath = fmt.Sprintf("%s/metadata/%s", a.config.MountPath, path)
	}

	if _, err := a.client.Logical().DeleteWithContext(ctx, fullPath); err != nil {
		a.logger.Error("Failed to delete secret from Vault", ports.String("path", path), ports.Err(err))
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	a.logger.Info("Secret deleted from Vault", ports.String("path", path))
	return nil
}

func (a *vaultAdapter) dataPath(path string) string {
	if a.config.KVVersion == "v2" {
		return fmt.Sprintf("%s/data/%s", a.config.MountPath, path)
	}
	return fmt.Sprintf("%s/%s", a.config.MountPath, path)
}
