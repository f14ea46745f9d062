package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")

func TestIssueParse(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, expires, err := iss.Issue(alice)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	got, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	_, err = NewIssuer("other", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	late := NewIssuer("secret", time.Hour)
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = late.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}

func TestMiddleware(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, _, err := iss.Issue(alice)
	require.NoError(t, err)

	var seen common.Address
	h := iss.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = Caller(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, alice, seen)
}
