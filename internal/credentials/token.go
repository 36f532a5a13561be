package credentials

// RedactedSentinel overwrites plaintext token settings once their encrypted sibling is stored.
// A stored value equal to the sentinel is never a real token.
const RedactedSentinel = "***"

// TokenKind discriminates the Token variants
type TokenKind int

const (
	TokenAbsent TokenKind = iota
	TokenPlaintext
	TokenEncrypted
)

// Token is a stored OAuth token: Plaintext(value), Encrypted(blob) or Absent
type Token struct {
	value string
	kind  TokenKind
}

// PlaintextToken wraps a clear-text token. Empty values and the redaction sentinel are Absent.
func PlaintextToken(value string) Token {
	if value == "" || value == RedactedSentinel {
		return Token{}
	}
	return Token{kind: TokenPlaintext, value: value}
}

// EncryptedToken wraps a base64 ciphertext blob produced by Encrypt
func EncryptedToken(blob string) Token {
	if blob == "" {
		return Token{}
	}
	return Token{kind: TokenEncrypted, value: blob}
}

// Kind returns the variant
func (t Token) Kind() TokenKind {
	return t.kind
}

// IsAbsent reports whether no token is stored
func (t Token) IsAbsent() bool {
	return t.kind == TokenAbsent
}

// Reveal returns the clear-text token. Encrypted tokens are opened with key;
// an undecryptable blob reveals as "".
func (t Token) Reveal(key []byte) string {
	switch t.kind {
	case TokenPlaintext:
		return t.value
	case TokenEncrypted:
		if key == nil {
			return ""
		}
		return Decrypt(t.value, key)
	default:
		return ""
	}
}

// String never prints token material
func (t Token) String() string {
	switch t.kind {
	case TokenPlaintext:
		return "Plaintext(" + RedactedSentinel + ")"
	case TokenEncrypted:
		return "Encrypted(" + RedactedSentinel + ")"
	default:
		return "Absent"
	}
}

// resolveToken prefers the encrypted sibling and falls back to the plaintext field
// when decryption yields nothing.
func resolveToken(encrypted, plaintext Token, key []byte) string {
	if !encrypted.IsAbsent() {
		if v := encrypted.Reveal(key); v != "" {
			return v
		}
	}
	return plaintext.Reveal(nil)
}
