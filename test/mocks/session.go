package mocks

// Session is an in-memory ports.Session
type Session struct {
	Values map[string]string
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{Values: map[string]string{}}
}

func (s *Session) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	s.Values[key] = value
}

func (s *Session) Delete(key string) {
	delete(s.Values, key)
}
