package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Connection Errors (CONN_*)
	ErrorCodeNotConnected        ErrorCode = "CONN_NOT_CONNECTED"
	ErrorCodeMerchantMismatch    ErrorCode = "CONN_MERCHANT_MISMATCH"
	ErrorCodeTokenRefreshFailed  ErrorCode = "CONN_TOKEN_REFRESH_FAILED"
	ErrorCodeAuthorizationFailed ErrorCode = "CONN_AUTHORIZATION_FAILED"

	// Payment Errors (PAYMENT_*)
	ErrorCodePaymentNotFound        ErrorCode = "PAYMENT_NOT_FOUND"
	ErrorCodePaymentInvalidState    ErrorCode = "PAYMENT_INVALID_STATE"
	ErrorCodeRefundExceedsAvailable ErrorCode = "PAYMENT_REFUND_EXCEEDS_AVAILABLE"

	// Subscription Errors (SUBSCRIPTION_*)
	ErrorCodeSubscriptionNotFound ErrorCode = "SUBSCRIPTION_NOT_FOUND"

	// Webhook Errors (WEBHOOK_*)
	ErrorCodeWebhookEventNotFound ErrorCode = "WEBHOOK_EVENT_NOT_FOUND"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Payment Network Errors (GATEWAY_*)
	ErrorCodeGatewayError ErrorCode = "GATEWAY_ERROR"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code so sentinel values work with errors.Is
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodePaymentNotFound ||
		code == ErrorCodeSubscriptionNotFound ||
		code == ErrorCodeWebhookEventNotFound
}

// IsConnectionError checks if an error concerns the merchant connection
func IsConnectionError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeNotConnected ||
		code == ErrorCodeMerchantMismatch ||
		code == ErrorCodeTokenRefreshFailed ||
		code == ErrorCodeAuthorizationFailed
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField
}

// Sentinel errors
var (
	ErrNotConnected        = NewDomainError(ErrorCodeNotConnected, "merchant account is not connected")
	ErrMerchantMismatch    = NewDomainError(ErrorCodeMerchantMismatch, "token response merchant does not match connected merchant")
	ErrTokenRefreshFailed  = NewDomainError(ErrorCodeTokenRefreshFailed, "access token refresh failed")
	ErrAuthorizationFailed = NewDomainError(ErrorCodeAuthorizationFailed, "merchant authorization failed")

	ErrPaymentNotFound        = NewDomainError(ErrorCodePaymentNotFound, "payment not found")
	ErrPaymentInvalidState    = NewDomainError(ErrorCodePaymentInvalidState, "payment is in invalid state for this operation")
	ErrRefundExceedsAvailable = NewDomainError(ErrorCodeRefundExceedsAvailable, "refund amount exceeds refundable balance")

	ErrSubscriptionNotFound = NewDomainError(ErrorCodeSubscriptionNotFound, "subscription not found")
	ErrWebhookEventNotFound = NewDomainError(ErrorCodeWebhookEventNotFound, "webhook event not found")

	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrGatewayError = NewDomainError(ErrorCodeGatewayError, "payment network error")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
