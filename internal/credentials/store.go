package credentials

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevin07696/squareup-service/internal/domain/ports"
	"github.com/kevin07696/squareup-service/pkg/timeutil"
)

// Record is a consistent snapshot of the Credential Record
type Record struct {
	AccessTokenExpiry     time.Time
	EncryptionKey         []byte
	AccessToken           Token
	RefreshToken          Token
	EncryptedAccessToken  Token
	EncryptedRefreshToken Token
	ClientID              string
	ClientSecret          string
	MerchantID            string
	LocationID            string
	SandboxToken          string
	SandboxLocationID     string
	WebhookSignatureKey   string
	Sandbox               bool
	DelayCapture          bool
	Debug                 bool
	TokenRevoked          bool
}

// ActiveAccessToken returns the bearer token for the selected environment.
// Sandbox tokens are stored in clear; live tokens prefer the encrypted sibling.
func (r *Record) ActiveAccessToken() string {
	if r.Sandbox {
		return r.SandboxToken
	}
	return resolveToken(r.EncryptedAccessToken, r.AccessToken, r.EncryptionKey)
}

// ActiveRefreshToken returns the refresh token for the selected environment
func (r *Record) ActiveRefreshToken() string {
	if r.Sandbox {
		return r.SandboxToken
	}
	return resolveToken(r.EncryptedRefreshToken, r.RefreshToken, r.EncryptionKey)
}

// ActiveLocationID returns the location id for the selected environment
func (r *Record) ActiveLocationID() string {
	if r.Sandbox {
		return r.SandboxLocationID
	}
	return r.LocationID
}

// IsConnected reports whether a live merchant binding exists
func (r *Record) IsConnected() bool {
	return r.MerchantID != "" && r.ActiveAccessToken() != ""
}

// TokenSet is the result of a token exchange or refresh to be persisted
type TokenSet struct {
	ExpiresAt    string
	AccessToken  string
	RefreshToken string // empty keeps the stored refresh token
	MerchantID   string // empty keeps the stored merchant id
}

// Store reads and writes the Credential Record through the host settings store
type Store struct {
	settings ports.SettingsStore
	logger   ports.Logger
	keyMu    sync.Mutex
}

// NewStore creates a credential store
func NewStore(settings ports.SettingsStore, logger ports.Logger) *Store {
	return &Store{
		settings: settings,
		logger:   logger,
	}
}

// Load reads every credential field in one settings read
func (s *Store) Load(ctx context.Context) (*Record, error) {
	values, err := s.settings.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential settings: %w", err)
	}

	rec := &Record{
		AccessToken:           PlaintextToken(values[KeyAccessToken]),
		RefreshToken:          PlaintextToken(values[KeyRefreshToken]),
		EncryptedAccessToken:  EncryptedToken(values[KeyAccessTokenEncrypted]),
		EncryptedRefreshToken: EncryptedToken(values[KeyRefreshTokenEncrypted]),
		ClientID:              values[KeyClientID],
		ClientSecret:          values[KeyClientSecret],
		MerchantID:            values[KeyMerchantID],
		LocationID:            values[KeyLocationID],
		SandboxToken:          values[KeySandboxToken],
		SandboxLocationID:     values[KeySandboxLocationID],
		WebhookSignatureKey:   values[KeyWebhookSignatureKey],
		Sandbox:               parseFlag(values[KeyEnableSandbox]),
		DelayCapture:          parseFlag(values[KeyDelayCapture]),
		Debug:                 parseFlag(values[KeyDebug]),
		TokenRevoked:          parseFlag(values[KeyTokenRevoked]),
	}

	if encoded := values[KeyEncryptionKey]; encoded != "" {
		key, ok := DecodeKey(encoded)
		if !ok {
			s.logger.Warn("Stored encryption key is malformed; encrypted tokens are unreadable")
		}
		rec.EncryptionKey = key
	}

	if raw := values[KeyAccessTokenExpires]; raw != "" {
		expiry, err := timeutil.ParseTimestamp(raw)
		if err != nil {
			s.logger.Warn("Stored access token expiry is not RFC3339",
				ports.String("value", raw))
		} else {
			rec.AccessTokenExpiry = expiry
		}
	}

	return rec, nil
}

// IsSandbox reports whether sandbox credentials are selected
func (s *Store) IsSandbox(ctx context.Context) (bool, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	return rec.Sandbox, nil
}

// AccessToken returns the active bearer token, "" when none is available
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return rec.ActiveAccessToken(), nil
}

// RefreshToken returns the active refresh token, "" when none is available
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return rec.ActiveRefreshToken(), nil
}

// LocationID returns the active location id
func (s *Store) LocationID(ctx context.Context) (string, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return rec.ActiveLocationID(), nil
}

// SetLocationID stores the location id for the selected environment
func (s *Store) SetLocationID(ctx context.Context, locationID string) error {
	rec, err := s.Load(ctx)
	if err != nil {
		return err
	}
	key := KeyLocationID
	if rec.Sandbox {
		key = KeySandboxLocationID
	}
	return s.settings.Set(ctx, map[string]string{key: locationID})
}

// EnsureKey returns the installation's encryption key, generating and persisting it on first use.
// The key is never replaced once stored.
func (s *Store) EnsureKey(ctx context.Context) (string, error) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	existing, err := s.settings.Get(ctx, KeyEncryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to read encryption key: %w", err)
	}
	if existing != "" {
		return existing, nil
	}

	generated, err := GenerateKey()
	if err != nil {
		return "", err
	}
	if err := s.settings.Set(ctx, map[string]string{KeyEncryptionKey: generated}); err != nil {
		return "", fmt.Errorf("failed to persist encryption key: %w", err)
	}

	s.logger.Info("Generated token encryption key")
	return generated, nil
}

// EncryptTokenSettings encrypts plaintext access/refresh tokens in settings into their
// *_encrypted siblings and overwrites the plaintext keys with RedactedSentinel. A missing
// key is taken from the store, or generated and added to settings.
func (s *Store) EncryptTokenSettings(ctx context.Context, settings map[string]string) error {
	encodedKey := settings[KeyEncryptionKey]
	if encodedKey == "" {
		stored, err := s.settings.Get(ctx, KeyEncryptionKey)
		if err != nil {
			return fmt.Errorf("failed to read encryption key: %w", err)
		}
		encodedKey = stored
	}
	if encodedKey == "" {
		generated, err := GenerateKey()
		if err != nil {
			return err
		}
		encodedKey = generated
		settings[KeyEncryptionKey] = generated
	}

	key, ok := DecodeKey(encodedKey)
	if !ok {
		return fmt.Errorf("stored encryption key is malformed")
	}

	return encryptTokens(settings, key)
}

func encryptTokens(settings map[string]string, key []byte) error {
	pairs := [][2]string{
		{KeyAccessToken, KeyAccessTokenEncrypted},
		{KeyRefreshToken, KeyRefreshTokenEncrypted},
	}

	for _, pair := range pairs {
		plain, field := settings[pair[0]], pair[1]
		if PlaintextToken(plain).IsAbsent() {
			continue
		}
		sealed, err := Encrypt(plain, key)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", pair[0], err)
		}
		settings[field] = sealed
		settings[pair[0]] = RedactedSentinel
	}
	return nil
}

// SaveTokens encrypts and persists a token exchange or refresh result
func (s *Store) SaveTokens(ctx context.Context, tokens TokenSet) error {
	encodedKey, err := s.EnsureKey(ctx)
	if err != nil {
		return err
	}
	key, ok := DecodeKey(encodedKey)
	if !ok {
		return fmt.Errorf("stored encryption key is malformed")
	}

	values := map[string]string{
		KeyAccessToken:        tokens.AccessToken,
		KeyAccessTokenExpires: tokens.ExpiresAt,
		KeyTokenRevoked:       "0",
	}
	if tokens.RefreshToken != "" {
		values[KeyRefreshToken] = tokens.RefreshToken
	}
	if tokens.MerchantID != "" {
		values[KeyMerchantID] = tokens.MerchantID
	}

	if err := encryptTokens(values, key); err != nil {
		return err
	}

	if err := s.settings.Set(ctx, values); err != nil {
		return fmt.Errorf("failed to persist tokens: %w", err)
	}
	return nil
}

// MarkRevoked records that the network reported the access token as revoked.
// The flag is reset by the next SaveTokens.
func (s *Store) MarkRevoked(ctx context.Context) error {
	if err := s.settings.Set(ctx, map[string]string{KeyTokenRevoked: "1"}); err != nil {
		return fmt.Errorf("failed to mark token revoked: %w", err)
	}
	return nil
}

// Clear removes the merchant binding (tokens, expiry, merchant and location).
// The encryption key and app credentials are kept.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.settings.Delete(ctx, connectionKeys...); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	s.logger.Info("Cleared merchant connection credentials")
	return nil
}

func parseFlag(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	n, err := strconv.Atoi(v)
	return err == nil && n != 0
}
