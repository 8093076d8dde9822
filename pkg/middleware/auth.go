package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/platinummonkey/grant/pkg/contextkeys"
	"github.com/platinummonkey/grant/pkg/httputil"
	"github.com/platinummonkey/grant/pkg/observability"
)

// ErrNoCredentials is returned when a request carries no identity at all
var ErrNoCredentials = errors.New("missing credentials")

// Identity is the authenticated caller of a request
type Identity struct {
	Subject string
	Email   string
}

// Authenticator extracts the caller identity from a request
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// OIDCAuthenticator verifies "Authorization: Bearer <id token>" headers
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCAuthenticator discovers the issuer and builds a verifier for clientID
func NewOIDCAuthenticator(ctx context.Context, issuerURL, clientID string) (*OIDCAuthenticator, error) {
	if issuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return NewOIDCAuthenticatorWithVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCAuthenticatorWithVerifier wraps an existing verifier
func NewOIDCAuthenticatorWithVerifier(verifier *oidc.IDTokenVerifier) *OIDCAuthenticator {
	return &OIDCAuthenticator{verifier: verifier}
}

// Authenticate verifies the bearer token and reads the subject and email claims
func (a *OIDCAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, ErrNoCredentials
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	idToken, err := a.verifier.Verify(r.Context(), parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	return &Identity{Subject: idToken.Subject, Email: claims.Email}, nil
}

// HeaderAuthenticator trusts identity headers injected by an upstream proxy
type HeaderAuthenticator struct {
	SubjectHeader string
	EmailHeader   string
}

// NewHeaderAuthenticator uses X-Principal-ID and X-Principal-Email when headers are empty
func NewHeaderAuthenticator(subjectHeader, emailHeader string) *HeaderAuthenticator {
	if subjectHeader == "" {
		subjectHeader = "X-Principal-ID"
	}
	if emailHeader == "" {
		emailHeader = "X-Principal-Email"
	}
	return &HeaderAuthenticator{SubjectHeader: subjectHeader, EmailHeader: emailHeader}
}

// Authenticate reads the identity headers
func (a *HeaderAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	subject := strings.TrimSpace(r.Header.Get(a.SubjectHeader))
	if subject == "" {
		return nil, ErrNoCredentials
	}
	return &Identity{
		Subject: subject,
		Email:   strings.TrimSpace(r.Header.Get(a.EmailHeader)),
	}, nil
}

// AuthMiddleware rejects unauthenticated requests with 401
type AuthMiddleware struct {
	authenticator Authenticator
	logger        *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator Authenticator, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        logger,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.authenticator.Authenticate(r)
		if err != nil {
			if !errors.Is(err, ErrNoCredentials) {
				observability.FromContext(r.Context(), m.logger).WithError(err).Warn("Authentication failed")
			}
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the authenticated caller from request context
func GetIdentity(r *http.Request) *Identity {
	return IdentityFromContext(r.Context())
}

// IdentityFromContext extracts the authenticated caller from a context
func IdentityFromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}
