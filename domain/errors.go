package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrQuotaExceeded     = errors.New("guest quota exceeded")
	ErrGuestConverted    = errors.New("guest session already converted")
	ErrGuestExpired      = errors.New("guest session expired")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrTransient         = errors.New("transient failure")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrEmptyTranscript   = errors.New("empty transcript")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrConfiguration     = errors.New("configuration error")
)

// Wrap builds an error message that carries stage context and tags it with
// marker so callers can classify it with errors.Is.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// QuotaError is returned when a guest cannot reserve another submission.
type QuotaError struct {
	Reason error
	Quota  QuotaInfo
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v (%d/%d used)", e.Reason, e.Quota.VideoCount, e.Quota.MaxVideos)
}

func (e *QuotaError) Unwrap() error { return e.Reason }

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
