package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"calendar-sync/modules/calendar/dto"

	"google.golang.org/api/googleapi"
)

// Provider is a push calendar API. Every method carries its own bounded timeout.
type Provider interface {
	Name() string
	ListCalendars(ctx context.Context, accessToken string) ([]dto.ExternalCalendar, error)
	// CreateEvent returns the external event id.
	CreateEvent(ctx context.Context, accessToken, calendarID string, ev *dto.CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev *dto.CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error
}

type Kind int

const (
	KindTransient Kind = iota
	KindUnauthorized
	KindGone
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindGone:
		return "gone"
	case KindValidation:
		return "validation"
	default:
		return "transient"
	}
}

// Error is a classified provider failure.
type Error struct {
	StatusCode int
	Kind       Kind
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s (%d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status to a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusNotFound || status == http.StatusGone:
		return KindGone
	case status == http.StatusTooManyRequests || status >= 500:
		return KindTransient
	case status >= 400:
		return KindValidation
	default:
		return KindTransient
	}
}

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// Classify wraps err into *Error. Network failures and timeouts are transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe
	}

	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		kind := KindForStatus(gerr.Code)
		if gerr.Code == http.StatusForbidden {
			for _, item := range gerr.Errors {
				if rateLimitReasons[item.Reason] {
					kind = KindTransient
					break
				}
			}
		}
		return &Error{StatusCode: gerr.Code, Kind: kind, Err: err}
	}

	// Timeouts, cancellations and network errors leave the outcome unconfirmed.
	return &Error{Kind: KindTransient, Err: err}
}

func kindOf(err error) (Kind, bool) {
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe.Kind, true
	}
	return KindTransient, false
}

func IsUnauthorized(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnauthorized
}

func IsGone(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindGone
}

func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransient
}

func IsConflict(err error) bool {
	var pe *Error
	return stderrors.As(err, &pe) && pe.StatusCode == http.StatusConflict
}
