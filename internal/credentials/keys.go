package credentials

// Well-known settings keys of the Credential Record
const (
	KeyAccessToken           = "payment_squareup_access_token"
	KeyRefreshToken          = "payment_squareup_refresh_token"
	KeyAccessTokenEncrypted  = "payment_squareup_access_token_encrypted"
	KeyRefreshTokenEncrypted = "payment_squareup_refresh_token_encrypted"
	KeyAccessTokenExpires    = "payment_squareup_access_token_expires"
	KeyEncryptionKey         = "payment_squareup_encryption_key"
	KeyClientID              = "payment_squareup_client_id"
	KeyClientSecret          = "payment_squareup_client_secret"
	KeyMerchantID            = "payment_squareup_merchant_id"
	KeyLocationID            = "payment_squareup_location_id"
	KeyEnableSandbox         = "payment_squareup_enable_sandbox"
	KeySandboxToken          = "payment_squareup_sandbox_token"
	KeySandboxLocationID     = "payment_squareup_sandbox_location_id"
	KeyWebhookSignatureKey   = "payment_squareup_webhook_signature_key"
	KeyDelayCapture          = "payment_squareup_delay_capture"
	KeyDebug                 = "payment_squareup_debug"
	KeyTokenRevoked          = "payment_squareup_token_revoked"
)

// connectionKeys are removed when the merchant disconnects
var connectionKeys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeyAccessTokenEncrypted,
	KeyRefreshTokenEncrypted,
	KeyAccessTokenExpires,
	KeyMerchantID,
	KeyLocationID,
	KeyTokenRevoked,
}
