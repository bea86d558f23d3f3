package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"server/internal/domain"
)

type identityContextKey struct{}

var identityKey = identityContextKey{}

// Identity resolves the caller's identity on every request. A valid bearer
// token yields a user identity; no token yields a guest identity keyed on the
// client IP and a browser fingerprint. A token that is present but invalid is
// rejected outright so that expired sessions do not silently degrade to guest
// quota.
func Identity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				identity := domain.GuestIdentity(ClientIP(r), ClientSignature(r))
				next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization", http.StatusUnauthorized)
				return
			}
			claims, err := VerifyJWT(secret, parts[1])
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			identity := domain.UserIdentity(claims.Sub)
			ctx := ContextWithIdentity(r.Context(), identity)
			ctx = ContextWithUserID(ctx, claims.Sub)
			if claims.Locale != "" {
				ctx = context.WithValue(ctx, LocaleKey, claims.Locale)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects requests whose resolved identity is not an
// authenticated user. It must run after Identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFromContext(r.Context()).Authenticated() {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientSignature derives a stable fingerprint for an unauthenticated client
// from request headers. Combined with the IP it forms the guest identity.
func ClientSignature(r *http.Request) string {
	h := sha256.New()
	h.Write([]byte(r.Header.Get("User-Agent")))
	h.Write([]byte{'|'})
	h.Write([]byte(r.Header.Get("Accept-Language")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func ContextWithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the resolved identity, or a zero-value guest
// identity when the middleware did not run.
func IdentityFromContext(ctx context.Context) domain.Identity {
	if v, ok := ctx.Value(identityKey).(domain.Identity); ok {
		return v
	}
	return domain.Identity{Class: domain.IdentityGuest}
}
