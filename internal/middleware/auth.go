package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumagen/backend/internal/models"
	"github.com/lumagen/backend/internal/repository"
)

type contextKey string

const ctxUserKey contextKey = "user"

// APIKeyPrefix marks raw API keys so the middleware can tell them apart
// from JWTs without parsing.
const APIKeyPrefix = "lg_"

// APIKeyRepo resolves a hashed API key to its owning user.
type APIKeyRepo interface {
	FindByKeyHash(ctx context.Context, keyHash string) (*repository.APIKeyWithUser, error)
}

// UserLookup resolves the subject of a validated JWT.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

// Auth authenticates every request with either a JWT (web sessions) or an
// lg_-prefixed API key, both carried as a Bearer token. On success the
// resolved user is placed into the request context.
func Auth(secret []byte, users UserLookup, apiKeys APIKeyRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				unauthorized(w, "missing or malformed Authorization header")
				return
			}

			var user *models.User
			var err error
			if strings.HasPrefix(raw, APIKeyPrefix) {
				user, err = resolveAPIKey(r.Context(), apiKeys, raw)
			} else {
				user, err = resolveJWT(r.Context(), secret, users, raw)
			}
			if err != nil {
				unauthorized(w, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func resolveAPIKey(ctx context.Context, apiKeys APIKeyRepo, raw string) (*models.User, error) {
	if apiKeys == nil {
		return nil, errors.New("api key auth not configured")
	}
	result, err := apiKeys.FindByKeyHash(ctx, HashAPIKey(raw))
	if err != nil {
		return nil, err
	}
	return &result.User, nil
}

func resolveJWT(ctx context.Context, secret []byte, users UserLookup, raw string) (*models.User, error) {
	tok, err := jwt.ParseWithClaims(raw, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*jwtClaims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, err
	}
	return users.GetByID(ctx, id)
}

// AdminAuth guards operational endpoints with a static bearer token. An
// empty configured token disables the endpoints entirely.
func AdminAuth(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" || extractBearer(r) != adminToken {
				unauthorized(w, "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashAPIKey is the storage form of a raw API key. Only the hash ever
// touches the database.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// UserFromCtx returns the authenticated user or nil.
func UserFromCtx(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxUserKey).(*models.User)
	return u
}

// WithUser returns a context carrying the given user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxUserKey, u)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"reason":"unauthorized","message":"` + msg + `"}}`))
}
