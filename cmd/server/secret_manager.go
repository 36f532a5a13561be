package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/secrets"
	"github.com/kevin07696/squareup-service/internal/config"
	"github.com/kevin07696/squareup-service/internal/credentials"
	"github.com/kevin07696/squareup-service/internal/domain/ports"
	"github.com/kevin07696/squareup-service/pkg/security"
)

// sensitiveSettings are kept in the secret manager when one is configured
var sensitiveSettings = []string{
	credentials.KeyClientSecret,
	credentials.KeyEncryptionKey,
	credentials.KeyAccessToken,
	credentials.KeyRefreshToken,
	credentials.KeySandboxToken,
	credentials.KeyWebhookSignatureKey,
}

// initSettingsStore returns base, or base overlaid with the configured secret manager.
// Supports:
//   - none: every setting lives in the settings table
//   - local: files under SECRETS_LOCAL_PATH (development only)
//   - vault: HashiCorp Vault KV engine
//   - aws: AWS Secrets Manager
//   - gcp: Google Cloud Secret Manager
func initSettingsStore(ctx context.Context, cfg config.SecretsConfig, base ports.SettingsStore, logger *zap.Logger) (ports.SettingsStore, error) {
	manager, err := initSecretManager(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if manager == nil {
		logger.Info("No secret manager configured, sensitive settings stay in the database")
		return base, nil
	}

	logger.Info("Sensitive settings overlaid with secret manager",
		zap.String("backend", cfg.Backend),
		zap.String("prefix", cfg.Prefix),
	)
	return secrets.NewSettingsOverlay(base, manager, cfg.Prefix, sensitiveSettings, security.NewZapLogger(logger)), nil
}

func initSecretManager(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretManager, error) {
	adapterLogger := security.NewZapLogger(logger)

	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "local":
		logger.Warn("Using LOCAL file secret manager - NOT for production use!",
			zap.String("path", cfg.LocalPath),
		)
		return secrets.NewLocalSecretManager(cfg.LocalPath, adapterLogger), nil
	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.AuthMethod = cfg.VaultAuth
		vaultCfg.Token = cfg.VaultToken
		vaultCfg.RoleID = cfg.VaultRoleID
		vaultCfg.SecretID = cfg.VaultSecretID
		vaultCfg.Namespace = cfg.VaultNamespace
		vaultCfg.MountPath = cfg.VaultMountPath
		vaultCfg.KVVersion = cfg.VaultKVVersion
		vaultCfg.CacheTTL = cfg.CacheTTL

		sm, err := secrets.NewVaultAdapter(ctx, vaultCfg, adapterLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vault: %w", err)
		}
		return sm, nil
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Profile = cfg.AWSProfile
		awsCfg.Endpoint = cfg.AWSEndpoint
		awsCfg.CacheTTL = cfg.CacheTTL

		sm, err := secrets.NewAWSSecretsManagerAdapter(ctx, awsCfg, adapterLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AWS Secrets Manager: %w", err)
		}
		return sm, nil
	case "gcp":
		gcpCfg := secrets.DefaultGCPSecretManagerConfig(cfg.GCPProjectID)
		gcpCfg.CacheTTL = cfg.CacheTTL

		sm, err := secrets.NewGCPSecretManager(ctx, gcpCfg, adapterLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCP Secret Manager: %w", err)
		}
		return sm, nil
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Backend)
	}
}

// seedSettings writes the environment-provided connection settings. Empty strings are
// skipped so values entered through the store are kept; flags always follow the environment.
func seedSettings(ctx context.Context, cfg config.SquareConfig, settings ports.SettingsStore) error {
	values := map[string]string{
		credentials.KeyEnableSandbox: boolSetting(cfg.Sandbox),
		credentials.KeyDelayCapture:  boolSetting(cfg.DelayCapture),
		credentials.KeyDebug:         boolSetting(cfg.Debug),
	}
	optional := map[string]string{
		credentials.KeyClientID:            cfg.ClientID,
		credentials.KeyClientSecret:        cfg.ClientSecret,
		credentials.KeySandboxToken:        cfg.SandboxToken,
		credentials.KeyWebhookSignatureKey: cfg.WebhookSignatureKey,
	}
	for k, v := range optional {
		if v != "" {
			values[k] = v
		}
	}

	if err := settings.Set(ctx, values); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

func boolSetting(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
