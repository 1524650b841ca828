package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protected(a *Auth, subject *string) http.Handler {
	return a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := GetClaims(r.Context()); c != nil {
			*subject = c.Subject
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	a := New("s3cret")
	token, err := a.IssueToken("uploader-ci", time.Hour)
	require.NoError(t, err)

	var subject string
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(a, &subject).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "uploader-ci", subject)
}

func TestMiddlewareRejects(t *testing.T) {
	a := New("s3cret")
	other, err := New("other").IssueToken("x", time.Hour)
	require.NoError(t, err)
	expired, err := a.IssueToken("x", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"garbage", "Bearer not-a-token"},
		{"wrong secret", "Bearer " + other},
		{"expired", "Bearer " + expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subject string
			req := httptest.NewRequest(http.MethodPost, "/api/v1/files", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected(a, &subject).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, subject)
		})
	}
}

func TestTokenFromQuery(t *testing.T) {
	a := New("s3cret")
	token, err := a.IssueToken("sse", time.Hour)
	require.NoError(t, err)

	var subject string
	rec := httptest.NewRecorder()
	protected(a, &subject).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events?token="+token, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "sse", subject)
}
