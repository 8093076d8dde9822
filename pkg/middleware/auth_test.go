package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoIdentity(t *testing.T, seen **Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = GetIdentity(r)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestHeaderAuthenticator(t *testing.T) {
	var seen *Identity
	handler := NewAuthMiddleware(NewHeaderAuthenticator("", ""), nil).Handler(echoIdentity(t, &seen))

	t.Run("with headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Principal-ID", "admin-1")
		req.Header.Set("X-Principal-Email", "admin@example.com")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "admin-1", seen.Subject)
		assert.Equal(t, "admin@example.com", seen.Email)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"success":false`)
	})
}

func TestOIDCAuthenticator_Rejects(t *testing.T) {
	verifier := oidc.NewVerifier("https://issuer.example.com", &oidc.StaticKeySet{}, &oidc.Config{ClientID: "grant"})
	authn := NewOIDCAuthenticatorWithVerifier(verifier)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			identity, err := authn.Authenticate(req)
			assert.Error(t, err)
			assert.Nil(t, identity)
		})
	}
}

func TestNewOIDCAuthenticator_RequiresIssuer(t *testing.T) {
	_, err := NewOIDCAuthenticator(context.Background(), "", "grant")
	assert.Error(t, err)
}

func TestIdentityFromContext_Empty(t *testing.T) {
	assert.Nil(t, IdentityFromContext(context.Background()))
}
