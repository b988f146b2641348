package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorCode string

const (
	ErrInternalServer             ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrInvalidInput               ErrorCode = "INVALID_INPUT"
	ErrInvalidRequestData         ErrorCode = "INVALID_REQUEST_DATA"
	ErrUnauthorized               ErrorCode = "UNAUTHORIZED"
	ErrTokenExpired               ErrorCode = "TOKEN_EXPIRED"
	ErrInvalidTokenFormat         ErrorCode = "INVALID_TOKEN_FORMAT"
	ErrMissingAuthorizationHeader ErrorCode = "MISSING_AUTHORIZATION_HEADER"
	ErrForbidden                  ErrorCode = "FORBIDDEN"
	ErrNotFound                   ErrorCode = "NOT_FOUND"
	ErrAlreadyExists              ErrorCode = "ALREADY_EXISTS"

	// Calendar synchronization
	ErrAuthExchange       ErrorCode = "CALENDAR_AUTH_EXCHANGE_FAILED"
	ErrCredentialExpired  ErrorCode = "CALENDAR_CREDENTIAL_EXPIRED"
	ErrAuthExpired        ErrorCode = "CALENDAR_AUTH_EXPIRED"
	ErrProviderValidation ErrorCode = "CALENDAR_PROVIDER_VALIDATION"
	ErrProviderTransient  ErrorCode = "CALENDAR_PROVIDER_TRANSIENT"
	ErrSync               ErrorCode = "CALENDAR_SYNC_FAILED"
	ErrInvalidFeedToken   ErrorCode = "CALENDAR_FEED_TOKEN_INVALID"
	ErrExpiredFeedToken   ErrorCode = "CALENDAR_FEED_TOKEN_EXPIRED"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var ae *AppError
		if !stderrors.As(err, &ae) {
			return false
		}
		if ae.Code == code {
			return true
		}
		err = ae.Err
	}
	return false
}

// CodeOf returns the outermost AppError code, or ErrInternalServer.
func CodeOf(err error) ErrorCode {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ErrInternalServer
}

// IsReconnectRequired is true for failures only the user can fix by connecting the calendar again.
func IsReconnectRequired(err error) bool {
	return HasCode(err, ErrCredentialExpired) || HasCode(err, ErrAuthExpired)
}
