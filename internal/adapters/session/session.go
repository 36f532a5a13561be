package session

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// DefaultName is the cookie name of the admin session
const DefaultName = "squareup_admin"

// Store loads request sessions from a gorilla/sessions store
type Store struct {
	store sessions.Store
	name  string
}

// NewCookieStore creates a store keeping sessions in an authenticated cookie signed with key.
// Cookies are HttpOnly, SameSite=Lax (the OAuth callback is a cross-site top-level GET) and
// live for one hour.
func NewCookieStore(key []byte, secure bool) *Store {
	cs := sessions.NewCookieStore(key)
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return NewStore(cs, DefaultName)
}

// NewStore wraps any gorilla/sessions store
func NewStore(store sessions.Store, name string) *Store {
	return &Store{store: store, name: name}
}

// Load returns the caller's session. A cookie that fails verification yields a fresh session
// together with the decode error.
func (s *Store) Load(r *http.Request) (*Session, error) {
	sess, err := s.store.Get(r, s.name)
	if sess == nil {
		return nil, err
	}
	return &Session{session: sess}, err
}

// Session adapts a gorilla session to string values
type Session struct {
	session *sessions.Session
}

func (s *Session) Get(key string) (string, bool) {
	v, ok := s.session.Values[key].(string)
	return v, ok
}

func (s *Session) Set(key, value string) {
	s.session.Values[key] = value
}

func (s *Session) Delete(key string) {
	delete(s.session.Values, key)
}

// Save writes the session cookie; call it before writing the response body
func (s *Session) Save(r *http.Request, w http.ResponseWriter) error {
	return s.session.Save(r, w)
}
