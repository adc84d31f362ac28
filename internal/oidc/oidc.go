package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/appvault/appvault/internal/config"
)

// providerTimeout bounds every network call to the identity provider.
// Exceeding it fails the login attempt; there are no retries.
const providerTimeout = 10 * time.Second

// TokenSet is the outcome of a successful code exchange: the provider access
// token plus the verified identity claims. The raw ID token is not retained.
type TokenSet struct {
	AccessToken string
	ExpiresIn   int64 // seconds
	Subject     string
	Claims      map[string]interface{}
}

// Exchanger is the narrow provider-client surface the handlers depend on,
// so tests can substitute a fake without a reachable provider.
type Exchanger interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code, nonce string) (*TokenSet, error)
	LogoutURL(returnTo string) string
}

// ExchangeError covers every authentication-exchange failure: provider
// rejection, token validation failure, nonce mismatch. All of them surface
// to the browser as a generic 401.
type ExchangeError struct {
	Reason string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth exchange failed: %s: %v", e.Reason, e.Err)
	}
	return "auth exchange failed: " + e.Reason
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Authenticator performs the OIDC authorization-code flow against the
// configured provider.
type Authenticator struct {
	oauth    oauth2.Config
	verifier *goidc.IDTokenVerifier
	client   *http.Client
	domain   string
	clientID string
	insecure bool
}

// New discovers the provider and prepares the oauth2 exchange config.
// Scopes are fixed to openid/profile/email.
func New(ctx context.Context, cfg *config.Config) (*Authenticator, error) {
	client := &http.Client{Timeout: providerTimeout}
	ctx = goidc.ClientContext(ctx, client)
	provider, err := goidc.NewProvider(ctx, issuerURL(cfg.Auth0.Domain))
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	a := &Authenticator{
		oauth: oauth2.Config{
			ClientID:     cfg.Auth0.ClientID,
			ClientSecret: cfg.Auth0.ClientSecret,
			RedirectURL:  cfg.Auth0.CallbackURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{goidc.ScopeOpenID, "profile", "email"},
		},
		client:   client,
		domain:   cfg.Auth0.Domain,
		clientID: cfg.Auth0.ClientID,
	}
	if insecureAllowed() {
		a.insecure = true
	} else {
		a.verifier = provider.Verifier(&goidc.Config{ClientID: cfg.Auth0.ClientID})
	}
	return a, nil
}

// AuthCodeURL builds the provider authorization URL for the given state and
// nonce. The caller is responsible for making both retrievable at callback
// time (signed transient cookie).
func (a *Authenticator) AuthCodeURL(state, nonce string) string {
	return a.oauth.AuthCodeURL(state, goidc.Nonce(nonce))
}

// Exchange trades the authorization code for tokens, verifies the ID token
// and the nonce binding, and extracts the identity claims.
func (a *Authenticator) Exchange(ctx context.Context, code, nonce string) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, &ExchangeError{Reason: "code exchange rejected", Err: err}
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, &ExchangeError{Reason: "token response missing id_token"}
	}
	claims, err := a.claimsFromIDToken(ctx, raw)
	if err != nil {
		return nil, &ExchangeError{Reason: "id token verification failed", Err: err}
	}
	if nonce != "" {
		if n, _ := claims["nonce"].(string); n != nonce {
			return nil, &ExchangeError{Reason: "nonce mismatch"}
		}
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, &ExchangeError{Reason: "id token missing sub"}
	}
	expiresIn := int64(time.Until(tok.Expiry).Seconds())
	if tok.Expiry.IsZero() || expiresIn <= 0 {
		expiresIn = int64((24 * time.Hour).Seconds())
	}
	return &TokenSet{
		AccessToken: tok.AccessToken,
		ExpiresIn:   expiresIn,
		Subject:     sub,
		Claims:      claims,
	}, nil
}

// LogoutURL builds the provider logout endpoint with returnTo and client_id
// query parameters, form-url-encoded.
func (a *Authenticator) LogoutURL(returnTo string) string {
	base := strings.TrimRight(issuerURL(a.domain), "/")
	q := url.Values{}
	q.Set("returnTo", returnTo)
	q.Set("client_id", a.clientID)
	return base + "/v2/logout?" + q.Encode()
}

func (a *Authenticator) claimsFromIDToken(ctx context.Context, raw string) (map[string]interface{}, error) {
	if a.insecure {
		return parseInsecureClaims(raw)
	}
	idt, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := idt.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// issuerURL maps a bare Auth0 tenant domain to its issuer; URLs with an
// explicit scheme pass through untouched (tests, non-Auth0 issuers).
func issuerURL(domain string) string {
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain + "/"
}
