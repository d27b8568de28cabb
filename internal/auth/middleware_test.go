package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/logger"
	"task-manager/internal/models"
	"task-manager/internal/token"
)

var alice = models.Identity{ID: "u-alice", Email: "alice@example.com"}

func newCodec(t *testing.T, secret string, now time.Time) *token.Codec {
	t.Helper()
	c, err := token.NewCodec([]byte(secret), time.Hour, token.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return c
}

type gateResult struct {
	code     int
	body     string
	reached  bool
	identity models.Identity
}

func runGate(t *testing.T, dec Decoder, header string) gateResult {
	t.Helper()
	logger.SetOutput(&bytes.Buffer{})

	var res gateResult
	h := Middleware(dec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res.reached = true
		res.identity, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	res.code = rec.Code
	res.body = rec.Body.String()
	return res
}

func TestGateResolvesIdentity(t *testing.T) {
	now := time.Now()
	c := newCodec(t, "secret", now)
	tok, err := c.Issue(alice)
	require.NoError(t, err)

	res := runGate(t, c, "Bearer "+tok)
	assert.Equal(t, http.StatusNoContent, res.code)
	assert.True(t, res.reached)
	assert.Equal(t, alice, res.identity)
}

func TestGateRejects(t *testing.T) {
	now := time.Now()
	c := newCodec(t, "secret", now)

	good, err := c.Issue(alice)
	require.NoError(t, err)
	foreign, err := newCodec(t, "other-secret", now).Issue(alice)
	require.NoError(t, err)
	expired, err := newCodec(t, "secret", now.Add(-3*time.Hour)).Issue(alice)
	require.NoError(t, err)
	noEmail, err := c.Issue(models.Identity{ID: "u-1"})
	require.NoError(t, err)
	noID, err := c.Issue(models.Identity{Email: "x@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"basic scheme", "Basic abc123"},
		{"lowercase scheme", "bearer " + good},
		{"scheme only", "Bearer "},
		{"scheme with spaces", "Bearer    "},
		{"double space before token", "Bearer  " + good},
		{"malformed", "Bearer not.a.jwt"},
		{"other secret", "Bearer " + foreign},
		{"expired", "Bearer " + expired},
		{"missing email", "Bearer " + noEmail},
		{"missing id", "Bearer " + noID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runGate(t, c, tt.header)
			assert.Equal(t, http.StatusUnauthorized, res.code)
			assert.False(t, res.reached, "next handler must not run")
			assert.JSONEq(t, `{"error":"unauthorized"}`, res.body)
		})
	}
}

func TestResolveReportsPayloadErrors(t *testing.T) {
	c := newCodec(t, "secret", time.Now())
	tok, err := c.Issue(models.Identity{ID: "u-1"})
	require.NoError(t, err)

	_, err = Resolve(c, "Bearer "+tok)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Resolve(c, "Bearer garbage")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, err, token.ErrMalformed)
}

func TestIdentityFromEmptyContext(t *testing.T) {
	_, ok := IdentityFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	tok, err = BearerToken("Bearer abc.def.ghi trailing")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	_, err = BearerToken("Bearer  abc.def.ghi")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
