package yt

import (
	"errors"
	"fmt"
)

// Kind classifies an API call outcome for the retry pipeline and callers.
type Kind int

const (
	// KindQuota means the credential is exhausted; remedied by rotation,
	// never surfaced to callers.
	KindQuota Kind = iota
	// KindTransient covers 429 and server-side errors; retried with backoff.
	KindTransient
	// KindFatalClient covers other 4xx responses; failed fast, no retry.
	KindFatalClient
	// KindNoKeys means every key is on cooldown.
	KindNoKeys
	// KindRetriesExhausted means transient failures outlasted the budget.
	KindRetriesExhausted
	// KindCancelled means the caller's context expired mid-call.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "QUOTA"
	case KindTransient:
		return "TRANSIENT"
	case KindFatalClient:
		return "FATAL_CLIENT"
	case KindNoKeys:
		return "NO_KEYS"
	case KindRetriesExhausted:
		return "RETRIES_EXHAUSTED"
	case KindCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// ErrNoKeysAvailable is returned by the rotator when the live pool is empty.
var ErrNoKeysAvailable = errors.New("yt: no API keys available, all are in cooldown")

// APIError is a classified failure of one YouTube Data API invocation.
type APIError struct {
	Kind       Kind
	StatusCode int
	Reasons    []string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("youtube api: %s (http %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("youtube api: %s: %s", e.Kind, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsKind reports whether err is an *APIError of kind k.
func IsKind(err error, k Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == k
}

// quotaReasons are the error reasons the API uses for credit exhaustion.
var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"userRateLimitExceeded": true,
}

// classifyStatus maps an HTTP error response to an APIError kind using the
// status code and the reasons from the JSON error.errors[*].reason field.
func classifyStatus(status int, reasons []string, message string) *APIError {
	apiErr := &APIError{StatusCode: status, Reasons: reasons, Message: message}
	switch {
	case status == 403 && anyQuotaReason(reasons):
		apiErr.Kind = KindQuota
	case status == 429 || status >= 500:
		apiErr.Kind = KindTransient
	default:
		apiErr.Kind = KindFatalClient
	}
	return apiErr
}

func anyQuotaReason(reasons []string) bool {
	for _, r := range reasons {
		if quotaReasons[r] {
			return true
		}
	}
	return false
}
