// Package middleware authenticates callers of the grant API.
//
// Two authenticators are provided. OIDCAuthenticator verifies bearer ID tokens
// against an issuer discovered with go-oidc. HeaderAuthenticator trusts identity
// headers set by an authenticating proxy in front of the service.
//
//	authn, err := middleware.NewOIDCAuthenticator(ctx, issuerURL, clientID)
//	router.Use(middleware.NewAuthMiddleware(authn, logger).Handler)
//
// Handlers read the caller with GetIdentity.
package middleware
