package push

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusErrorClassification(t *testing.T) {
	require.True(t, Permanent(&StatusError{StatusCode: http.StatusGone}))
	require.True(t, Permanent(&StatusError{StatusCode: http.StatusNotFound}))
	require.True(t, Permanent(fmt.Errorf("wrapped: %w", &StatusError{StatusCode: http.StatusGone})))

	for _, code := range []int{http.StatusTooManyRequests, http.StatusBadRequest, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		require.False(t, Permanent(&StatusError{StatusCode: code}), code)
	}
	require.False(t, Permanent(errors.New("dial tcp: connection refused")))
	require.False(t, Permanent(nil))
}

func TestStatusErrorMessage(t *testing.T) {
	require.Equal(t, "push: endpoint responded 410", (&StatusError{StatusCode: 410}).Error())
	require.Equal(t, "push: endpoint responded 400: bad key", (&StatusError{StatusCode: 400, Body: "bad key"}).Error())
}
