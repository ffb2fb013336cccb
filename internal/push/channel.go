package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrGone marks a subscription the push service no longer accepts (HTTP 404 or 410).
	ErrGone = errors.New("push: subscription gone")
	// ErrNotConfigured is returned when VAPID keys are missing.
	ErrNotConfigured = errors.New("push: vapid keys not configured")
	// ErrInvalidKeys is returned when the configured VAPID pair is malformed or mismatched.
	ErrInvalidKeys = errors.New("push: invalid vapid keys")
)

// Target is one device endpoint with its encryption keys.
type Target struct {
	UserID   string
	Endpoint string
	P256dh   string
	Auth     string
}

// Channel delivers an encrypted payload to one target.
type Channel interface {
	Send(ctx context.Context, target Target, payload []byte) error
}

// StatusError is a non-success response from a push service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push: endpoint responded %d", e.StatusCode)
	}
	return fmt.Sprintf("push: endpoint responded %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrGone) match permanent failures.
func (e *StatusError) Is(target error) bool {
	return target == ErrGone && isGoneStatus(e.StatusCode)
}

// Permanent reports whether err means the subscription should be deactivated.
func Permanent(err error) bool {
	return errors.Is(err, ErrGone)
}

func isGoneStatus(code int) bool {
	return code == http.StatusNotFound || code == http.StatusGone
}
