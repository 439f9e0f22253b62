package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/scribeline/meeting-backend/internal/config"
	"github.com/scribeline/meeting-backend/internal/observability"
)

type contextKey string

const userIDKey contextKey = "auth_user_id"

// UserID returns the authenticated user's id from the request context
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID returns a context carrying the given user id (used by tests
// that exercise handlers directly).
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Verifier validates Supabase-issued bearer tokens. Modern RS256/ES256
// signing keys are fetched from the project's JWKS endpoint; the legacy
// shared HS256 secret is the fallback.
type Verifier struct {
	cfg    *config.Config
	logger zerolog.Logger

	jwksOnce sync.Once
	jwks     keyfunc.Keyfunc
	jwksErr  error
}

// NewVerifier creates a token verifier
func NewVerifier(cfg *config.Config) *Verifier {
	return &Verifier{
		cfg:    cfg,
		logger: observability.WithComponent("auth"),
	}
}

// Configured reports whether at least one verification method is available
func (v *Verifier) Configured() bool {
	return v.cfg.SupabaseURL != "" || v.cfg.SupabaseJWTSecret != ""
}

// jwksKeyfunc lazily builds the JWKS client on first use so that startup
// does not block on the network
func (v *Verifier) jwksKeyfunc(ctx context.Context) (keyfunc.Keyfunc, error) {
	v.jwksOnce.Do(func() {
		jwksURL := strings.TrimSuffix(v.cfg.SupabaseURL, "/") + "/auth/v1/.well-known/jwks.json"
		v.jwks, v.jwksErr = keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if v.jwksErr != nil {
			v.logger.Warn().Err(v.jwksErr).Msg("JWKS fetch failed, falling back to HS256")
		}
	})
	return v.jwks, v.jwksErr
}

// Verify validates the token and returns the user id from the sub claim
func (v *Verifier) Verify(ctx context.Context, token string) (string, error) {
	claims := jwt.MapClaims{}

	// Try JWKS first (Supabase modern signing keys).
	if v.cfg.SupabaseURL != "" {
		if jwks, err := v.jwksKeyfunc(ctx); err == nil {
			parsed, err := jwt.ParseWithClaims(token, claims, jwks.Keyfunc,
				jwt.WithValidMethods([]string{"RS256", "ES256"}),
				jwt.WithAudience("authenticated"))
			if err == nil && parsed.Valid {
				return subject(claims)
			}
			// Expired tokens are rejected outright rather than retried
			// against the legacy secret.
			if errors.Is(err, jwt.ErrTokenExpired) {
				return "", err
			}
		}
	}

	// Fall back to the legacy HS256 shared secret.
	if v.cfg.SupabaseJWTSecret != "" {
		claims = jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(v.cfg.SupabaseJWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithAudience("authenticated"))
		if err != nil {
			return "", err
		}
		if !parsed.Valid {
			return "", jwt.ErrTokenUnverifiable
		}
		return subject(claims)
	}

	return "", errors.New("no valid verification method")
}

func subject(claims jwt.MapClaims) (string, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token missing sub claim")
	}
	return sub, nil
}

// Middleware enforces an Authorization: Bearer header on every request
// and stores the verified user id in the request context
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeAuthError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		if !v.Configured() {
			writeAuthError(w, http.StatusInternalServerError, "Server misconfigured: SUPABASE_URL or SUPABASE_JWT_SECRET required")
			return
		}

		userID, err := v.Verify(r.Context(), token)
		if err != nil {
			observability.RecordError("auth_error", "auth")
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeAuthError(w, http.StatusUnauthorized, "Token expired")
				return
			}
			writeAuthError(w, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
