package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Run("classified error", func(t *testing.T) {
		err := New(KindUpstreamRateLimited, 429, "slow down")
		assert.Equal(t, KindUpstreamRateLimited, KindOf(err))
	})

	t.Run("wrapped classified error", func(t *testing.T) {
		err := fmt.Errorf("removing follower: %w", New(KindAlreadyRemoved, 404, "not a follower"))
		assert.Equal(t, KindAlreadyRemoved, KindOf(err))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("boom")))
	})
}

func TestRetryAfterOf(t *testing.T) {
	err := &Error{Kind: KindUpstreamRateLimited, Code: 429, RetryAfter: 30 * time.Second}
	assert.Equal(t, 30*time.Second, RetryAfterOf(err))
	assert.Zero(t, RetryAfterOf(fmt.Errorf("boom")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInvalidCredentials, http.StatusBadRequest},
		{KindBatchTooLarge, http.StatusBadRequest},
		{KindUpstreamUnauthorized, http.StatusUnauthorized},
		{KindUpstreamRateLimited, http.StatusTooManyRequests},
		{KindUpstreamUnavailable, http.StatusBadGateway},
		{KindUnknown, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}

func TestErrorString(t *testing.T) {
	withCode := New(KindUpstreamUnauthorized, 401, "credentials rejected")
	assert.Equal(t, "relay upstream_unauthorized error (code 401): credentials rejected", withCode.Error())

	noCode := New(KindInvalidCredentials, 0, "missing bearer token")
	assert.Equal(t, "relay invalid_credentials error: missing bearer token", noCode.Error())
}

func TestIsCallerError(t *testing.T) {
	assert.True(t, IsCallerError(KindInvalidCredentials))
	assert.True(t, IsCallerError(KindBatchTooLarge))
	assert.False(t, IsCallerError(KindUpstreamUnavailable))
}
