package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// AdminAuth protects the merchant connection endpoints with HTTP basic credentials
type AdminAuth struct {
	username string
	password string
	logger   *zap.Logger
}

// NewAdminAuth creates the admin guard. Empty credentials reject every request.
func NewAdminAuth(username, password string, logger *zap.Logger) *AdminAuth {
	return &AdminAuth{
		username: username,
		password: password,
		logger:   logger,
	}
}

// Middleware rejects requests without the admin credentials
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.authenticate(r) {
			a.logger.Warn("Unauthorized admin request",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr))

			w.Header().Set("WWW-Authenticate", `Basic realm="squareup-admin", charset="UTF-8"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AdminAuth) authenticate(r *http.Request) bool {
	if a.username == "" || a.password == "" {
		return false
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.password)) == 1
	return userOK && passOK
}
