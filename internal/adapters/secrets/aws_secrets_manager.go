package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	secretsmanagertypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/kevin07696/squareup-service/internal/domain/ports"
)

// AWSSecretsManagerConfig contains configuration for AWS Secrets Manager adapter
type AWSSecretsManagerConfig struct {
	// AWS Region (e.g., "us-east-1")
	Region string

	// Optional: AWS profile name (for local development)
	Profile string

	// Optional: Custom endpoint (for LocalStack testing)
	Endpoint string

	// Cache TTL for secrets; 0 disables caching
	CacheTTL time.Duration
}

// DefaultAWSSecretsManagerConfig returns default configuration
func DefaultAWSSecretsManagerConfig(region string) *AWSSecretsManagerConfig {
	return &AWSSecretsManagerConfig{
		Region:   region,
		CacheTTL: 5 * time.Minute,
	}
}

// secretsManagerAPI is the subset of the AWS client the adapter calls
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// awsSecretsManagerAdapter implements ports.SecretManager for AWS Secrets Manager
type awsSecretsManagerAdapter struct {
	client secretsManagerAPI
	logger ports.Logger
	cache  *secretCache
}

// NewAWSSecretsManagerAdapter creates a new AWS Secrets Manager adapter
func NewAWSSecretsManagerAdapter(ctx context.Context, cfg *AWSSecretsManagerConfig, logger ports.Logger) (ports.SecretManager, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		// Use specific profile (local development)
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	// Default credentials chain (IAM role in production)
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	logger.Info("AWS Secrets Manager adapter initialized",
		ports.String("region", cfg.Region),
		ports.String("cache_ttl", cfg.CacheTTL.String()),
	)

	return newAWSSecretsManagerAdapter(secretsmanager.NewFromConfig(awsConfig, clientOptions...), cfg.CacheTTL, logger), nil
}

func newAWSSecretsManagerAdapter(client secretsManagerAPI, cacheTTL time.Duration, logger ports.Logger) *awsSecretsManagerAdapter {
	return &awsSecretsManagerAdapter{
		client: client,
		logger: logger,
		cache:  newSecretCache(cacheTTL),
	}
}

// GetSecret retrieves the current SecretString at path
func (a *awsSecretsManagerAdapter) GetSecret(ctx context.Context, path string) (string, error) {
	if cached, ok := a.cache.get(path); ok {
		return cached, nil
	}

	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(path),
	})
	if isResourceNotFound(err) {
		return "", ports.ErrSecretNotFound
	}
	if err != nil {
		a.logger.Error("Failed to retrieve secret", ports.String("path", path), ports.Err(err))
		return "", fmt.Errorf("failed to get secret %s: %w", path, err)
	}

	value := aws.ToString(result.SecretString)
	a.cache.set(path, value)
	return value, nil
}

// PutSecret stores a new version, creating the secret on first write
func (a *awsSecretsManagerAdapter) PutSecret(ctx context.Context, path, value string) error {
	defer a.cache.invalidate(path)

	_, err := a.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(path),
		SecretString: aws.String(value),
	})
	if err == nil {
		a.logger.Info("Secret updated", ports.String("path", path))
		return nil
	}
	if !isResourceNotFound(err) {
		a.logger.Error("Failed to update secret", ports.String("path", path), ports.Err(err))
		return fmt.Errorf("failed to update secret: %w", err)
	}

	_, err = a.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(path),
		SecretString: aws.String(value),
		Description:  aws.String("Square payment integration setting"),
		Tags: []secretsmanagertypes.Tag{
			{Key: aws.String("service"), Value: aws.String("squareup")},
		},
	})
	if err != nil {
		a.logger.Error("Failed to create secret", ports.String("path", path), ports.Err(err))
		return fmt.Errorf("failed to create secret: %w", err)
	}

	a.logger.Info("Secret created", ports.String("path", path))
	return nil
}

// DeleteSecret schedules the secret for deletion with the default recovery window
func (a *awsSecretsManagerAdapter) DeleteSecret(ctx context.Context, path string) error {
	defer a.cache.invalidate(path)

	_, err := a.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:             aws.String(path),
		RecoveryWindowInDays: aws.Int64(30),
	})
	if err != nil && !isResourceNotFound(err) {
		a.logger.Error("Failed to delete secret", ports.String("path", path), ports.Err(err))
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	a.logger.Warn("Secret scheduled for deletion", ports.String("path", path))
	return nil
}

func isResourceNotFound(err error) bool {
	var notFound *secretsmanagertypes.ResourceNotFoundException
	return errors.As(err, &notFound)
}
