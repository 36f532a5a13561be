package square

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error codes the caller must be able to distinguish
const (
	CodeAccessTokenRevoked = "ACCESS_TOKEN_REVOKED"
	CodeAccessTokenExpired = "ACCESS_TOKEN_EXPIRED"
)

// DefaultFieldSuffix is appended to an error message when the error names a field
const DefaultFieldSuffix = " - Field: %s"

// DefaultOverrideMessages replace the network's validation text for these fields
var DefaultOverrideMessages = map[string]string{
	"billing_address.country":  "Payment Address country is not valid. Please modify it and try again.",
	"shipping_address.country": "Shipping Address country is not valid. Please modify it and try again.",
	"email_address":            "Your customer e-mail address is not valid. Please modify it and try again.",
	"phone_number":             "Your customer phone number is not valid. Please modify it and try again.",
}

// ErrorEntry is one structured error returned by the API
type ErrorEntry struct {
	Category string `json:"category,omitempty"`
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Message  string `json:"message,omitempty"`
	Field    string `json:"field,omitempty"`
}

// ErrorList is SingleMessage(string) or StructuredErrors([]ErrorEntry)
type ErrorList struct {
	single  string
	entries []ErrorEntry
}

// SingleMessage builds an ErrorList holding a plain message
func SingleMessage(msg string) ErrorList {
	return ErrorList{single: msg}
}

// StructuredErrors builds an ErrorList holding structured entries
func StructuredErrors(entries []ErrorEntry) ErrorList {
	if entries == nil {
		entries = []ErrorEntry{}
	}
	return ErrorList{entries: entries}
}

// IsSingle reports whether the list is a SingleMessage
func (l ErrorList) IsSingle() bool {
	return l.entries == nil
}

// Entries returns the structured entries (nil for SingleMessage)
func (l ErrorList) Entries() []ErrorEntry {
	return l.entries
}

// Empty reports whether the list carries no error
func (l ErrorList) Empty() bool {
	return len(l.entries) == 0 && l.single == ""
}

// HasCode reports whether any structured entry carries code
func (l ErrorList) HasCode(code string) bool {
	for _, e := range l.entries {
		if e.Code == code {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts either a string or an array of error objects
func (l *ErrorList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = SingleMessage(s)
		return nil
	}

	var entries []ErrorEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("errors is neither a string nor a list: %w", err)
	}
	*l = StructuredErrors(entries)
	return nil
}

// MarshalJSON writes the list back in the shape it was read
func (l ErrorList) MarshalJSON() ([]byte, error) {
	if l.IsSingle() {
		return json.Marshal(l.single)
	}
	return json.Marshal(l.entries)
}

// Messages localizes the human-readable parts of an APIError
type Messages struct {
	// Overrides maps a field name to the message shown instead of the network's text
	Overrides map[string]string
	// FieldSuffix is a fmt pattern taking the field name
	FieldSuffix string
}

// DefaultMessages returns the English messages
func DefaultMessages() Messages {
	return Messages{Overrides: DefaultOverrideMessages, FieldSuffix: DefaultFieldSuffix}
}

func (m Messages) format(e ErrorEntry) string {
	if e.Field != "" {
		if override, ok := m.Overrides[e.Field]; ok {
			return override
		}
	}

	msg := e.Detail
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = "Unknown error"
	}

	if e.Field != "" {
		suffix := m.FieldSuffix
		if suffix == "" {
			suffix = DefaultFieldSuffix
		}
		msg += fmt.Sprintf(suffix, e.Field)
	}
	return msg
}

// join concatenates every entry's message with a space
func (m Messages) join(l ErrorList) string {
	if l.IsSingle() {
		return l.single
	}
	parts := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		parts = append(parts, m.format(e))
	}
	return strings.Join(parts, " ")
}

// APIError is returned when the API responds with a non-empty error list
type APIError struct {
	Errors     ErrorList
	message    string
	StatusCode int
}

// NewAPIError builds an APIError with its joined human-readable message
func NewAPIError(statusCode int, list ErrorList, messages Messages) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Errors:     list,
		message:    messages.join(list),
	}
}

func (e *APIError) Error() string {
	return e.message
}

// IsAccessTokenRevoked reports an ACCESS_TOKEN_REVOKED error code
func (e *APIError) IsAccessTokenRevoked() bool {
	return e.Errors.HasCode(CodeAccessTokenRevoked)
}

// IsAccessTokenExpired reports an ACCESS_TOKEN_EXPIRED error code
func (e *APIError) IsAccessTokenExpired() bool {
	return e.Errors.HasCode(CodeAccessTokenExpired)
}

// IsAuthorizationProblem reports either token condition
func (e *APIError) IsAuthorizationProblem() bool {
	return e.IsAccessTokenRevoked() || e.IsAccessTokenExpired()
}

// TransportError is a connection, timeout or undecodable-response failure
type TransportError struct {
	Err        error
	StatusCode int // 0 when no response was received
}

func (e *TransportError) Error() string {
	code := "unknown"
	if e.StatusCode != 0 {
		code = strconv.Itoa(e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport error. HTTP code: %s: %v", code, e.Err)
	}
	return fmt.Sprintf("transport error. HTTP code: %s", code)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsAPIError returns the APIError in err's chain, if any
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsTransportError reports whether err's chain holds a TransportError
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// IsAccessTokenRevoked reports whether err is an APIError with a revoked token
func IsAccessTokenRevoked(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.IsAccessTokenRevoked()
}

// IsAccessTokenExpired reports whether err is an APIError with an expired token
func IsAccessTokenExpired(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.IsAccessTokenExpired()
}
