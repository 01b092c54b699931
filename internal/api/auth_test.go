package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/uploader/internal/events"
)

func TestTokenMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, tokenMatches("s3cret", "s3cret"))
	assert.False(t, tokenMatches("s3cret", "other"))
	assert.False(t, tokenMatches("short", "s3cret"))
	assert.False(t, tokenMatches("", "s3cret"))
	assert.False(t, tokenMatches("s3cret", ""))
}

func TestRequestToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		header  string
		query   string
		want    string
		wantErr error
	}{
		{name: "bearer", header: "Bearer test-key", want: "test-key"},
		{name: "lowercase scheme", header: "bearer test-key", want: "test-key"},
		{name: "padded", header: "Bearer   padded  ", want: "padded"},
		{name: "query fallback", query: "?token=from-query", want: "from-query"},
		{name: "header wins", header: "Bearer h", query: "?token=q", want: "h"},
		{name: "missing", wantErr: errNoToken},
		{name: "basic", header: "Basic abc", wantErr: errBadScheme},
		{name: "empty bearer", header: "Bearer   ", wantErr: errEmptyBearer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.test/events"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got, err := requestToken(req)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAuthMiddlewareChallenges(t *testing.T) {
	srv := newTestServer("secret", events.NewHub(4))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/targets?token=nope", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/targets?token=secret", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
