// Package auth gates HTTP requests behind a bearer token and exposes the
// resolved identity to downstream handlers.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"task-manager/internal/logger"
	"task-manager/internal/models"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidPayload = errors.New("invalid token payload")
)

const bearerPrefix = "Bearer "

// Decoder is the part of the token codec the gate depends on.
type Decoder interface {
	Decode(raw string) (models.Identity, error)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity attached by the gate.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(models.Identity)
	return id, ok && id.ID != ""
}

// BearerToken extracts the token from an Authorization header value. The
// token is the single-space separated field right after the scheme, so
// "Bearer  <tok>" carries no token.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrUnauthorized
	}
	tok, _, _ := strings.Cut(header[len(bearerPrefix):], " ")
	if tok == "" {
		return "", ErrUnauthorized
	}
	return tok, nil
}

// Resolve runs the full gate check on a header value.
func Resolve(dec Decoder, header string) (models.Identity, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return models.Identity{}, err
	}
	id, err := dec.Decode(raw)
	if err != nil {
		return models.Identity{}, errors.Join(ErrUnauthorized, err)
	}
	if id.ID == "" || id.Email == "" {
		return models.Identity{}, errors.Join(ErrUnauthorized, ErrInvalidPayload)
	}
	return id, nil
}

// Middleware rejects requests without a valid token with 401. The reason
// is logged but never sent to the caller.
func Middleware(dec Decoder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := Resolve(dec, r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn(r.Context(), "request rejected by auth gate",
					"path", r.URL.Path,
					"reason", err.Error(),
				)
				Reject(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Reject writes the generic 401 response.
func Reject(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
