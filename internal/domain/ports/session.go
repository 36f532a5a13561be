package ports

// Session is the per-user session of the caller (admin browser session).
// Implementations persist values between the authorization redirect and the callback.
type Session interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}
