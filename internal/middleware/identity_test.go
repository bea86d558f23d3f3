package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"server/internal/domain"
)

func identityProbe(t *testing.T, secret string, prepare func(*http.Request)) (domain.Identity, *httptest.ResponseRecorder) {
	t.Helper()
	var got domain.Identity
	handler := Identity(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:51000"
	req.Header.Set("User-Agent", "probe/1.0")
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return got, rec
}

func TestIdentityGuestWithoutToken(t *testing.T) {
	identity, rec := identityProbe(t, "secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if identity.Class != domain.IdentityGuest {
		t.Fatalf("class = %q", identity.Class)
	}
	if identity.IPAddress != "203.0.113.9" {
		t.Fatalf("ip = %q", identity.IPAddress)
	}
	if identity.ClientSignature == "" {
		t.Fatal("expected client signature")
	}
}

func TestIdentityUserWithValidToken(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{Sub: "user-123", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	identity, rec := identityProbe(t, "secret", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !identity.Authenticated() || identity.UserID != "user-123" {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestIdentityRejectsBadToken(t *testing.T) {
	_, rec := identityProbe(t, "secret", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-token")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestIdentityRejectsExpiredToken(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{Sub: "user-123", Exp: time.Now().Add(-time.Minute).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, rec := identityProbe(t, "secret", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireUserBlocksGuests(t *testing.T) {
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), domain.GuestIdentity("203.0.113.9", "sig")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("guest status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), domain.UserIdentity("user-1")))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("user status = %d, want 200", rec.Code)
	}
}

func TestClientSignatureStable(t *testing.T) {
	mk := func(ua, lang string) string {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("User-Agent", ua)
		r.Header.Set("Accept-Language", lang)
		return ClientSignature(r)
	}
	if mk("a", "en") != mk("a", "en") {
		t.Fatal("signature not stable for identical headers")
	}
	if mk("a", "en") == mk("b", "en") {
		t.Fatal("signature must differ across user agents")
	}
}
