package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kevin07696/squareup-service/internal/domain/ports"
)

// GCPSecretManagerConfig contains configuration for GCP Secret Manager
type GCPSecretManagerConfig struct {
	ProjectID string        // GCP Project ID (e.g., "my-project-123")
	CacheTTL  time.Duration // 0 disables caching
}

// DefaultGCPSecretManagerConfig returns defaults for GCP Secret Manager
func DefaultGCPSecretManagerConfig(projectID string) *GCPSecretManagerConfig {
	return &GCPSecretManagerConfig{
		ProjectID: projectID,
		CacheTTL:  5 * time.Minute,
	}
}

// gcpSecretsAPI is the subset of the GCP client the adapter calls
type gcpSecretsAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
}

// gcpSecretManager implements ports.SecretManager for Google Cloud Secret Manager.
// GCP secret ids allow only letters, digits, '-' and '_', so "squareup/key" is stored as "squareup--key".
type gcpSecretManager struct {
	client    gcpSecretsAPI
	projectID string
	logger    ports.Logger
	cache     *secretCache
}

// NewGCPSecretManager creates a GCP Secret Manager adapter. Credentials come from
// GOOGLE_APPLICATION_CREDENTIALS, workload identity or the default application credentials.
func NewGCPSecretManager(ctx context.Context, cfg *GCPSecretManagerConfig, logger ports.Logger) (ports.SecretManager, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("GCP project ID is required")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
	}

	logger.Info("GCP Secret Manager initialized",
		ports.String("project_id", cfg.ProjectID),
		ports.String("cache_ttl", cfg.CacheTTL.String()),
	)
	return newGCPSecretManager(client, cfg.ProjectID, cfg.CacheTTL, logger), nil
}

func newGCPSecretManager(client gcpSecretsAPI, projectID string, cacheTTL time.Duration, logger ports.Logger) *gcpSecretManager {
	return &gcpSecretManager{
		client:    client,
		projectID: projectID,
		logger:    logger,
		cache:     newSecretCache(cacheTTL),
	}
}

// GetSecret retrieves the latest version of the secret at path
func (sm *gcpSecretManager) GetSecret(ctx context.Context, path string) (string, error) {
	if cached, ok := sm.cache.get(path); ok {
		return cached, nil
	}

	result, err := sm.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: sm.secretName(path) + "/versions/latest",
	})
	if isGCPNotFound(err) {
		return "", ports.ErrSecretNotFound
	}
	if err != nil {
		sm.logger.Error("Failed to access GCP secret", ports.String("path", path), ports.Err(err))
		return "", fmt.Errorf("failed to access GCP secret %s: %w", path, err)
	}

	value := string(result.GetPayload().GetData())
	sm.cache.set(path, value)
	return value, nil
}

// PutSecret adds a new version, creating the secret on first write
func (sm *gcpSecretManager) PutSecret(ctx context.Context, path, value string) error {
	defer sm.cache.invalidate(path)

	addReq := &secretmanagerpb.AddSecretVersionRequest{
		Parent:  sm.secretName(path),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}

	_, err := sm.client.AddSecretVersion(ctx, addReq)
	if err == nil {
		sm.logger.Info("Secret version added", ports.String("path", path))
		return nil
	}
	if !isGCPNotFound(err) {
		sm.logger.Error("Failed to add secret version", ports.String("path", path), ports.Err(err))
		return fmt.Errorf("failed to update GCP secret %s: %w", path, err)
	}

	_, err = sm.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + sm.projectID,
		SecretId: gcpSecretID(path),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
			Labels: map[string]string{"service": "squareup"},
		},
	})
	if err != nil {
		sm.logger.Error("Failed to create GCP secret", ports.String("path", path), ports.Err(err))
		return fmt.Errorf("failed to create GCP secret %s: %w", path, err)
	}

	if _, err := sm.client.AddSecretVersion(ctx, addReq); err != nil {
		sm.logger.Error("Failed to add version to new secret", ports.String("path", path), ports.Err(err))
		return fmt.Errorf("failed to add GCP secret version %s: %w", path, err)
	}

	sm.logger.Info("Secret created", ports.String("path", path))
	return nil
}

// DeleteSecret permanently deletes a secret and all its versions
func (sm *gcpSecretManager) DeleteSecret(ctx context.Context, path string) error {
	defer sm.cache.invalidate(path)

	err := sm.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: sm.secretName(path)})
	if err != nil && !isGCPNotFound(err) {
		sm.logger.Error("Failed to delete GCP secret", ports.String("path", path), ports.Err(err))
		return fmt.Errorf("failed to delete GCP secret %s: %w", path, err)
	}

	sm.logger.Warn("Secret deleted", ports.String("path", path))
	return nil
}

func (sm *gcpSecretManager) secretName(path string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", sm.projectID, gcpSecretID(path))
}

// gcpSecretID maps a slash-separated path onto the GCP secret id alphabet
func gcpSecretID(path string) string {
	path = strings.ReplaceAll(path, "/", "--")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, path)
}

func isGCPNotFound(err error) bool {
	return err != nil && status.Code(err) == codes.NotFound
}
