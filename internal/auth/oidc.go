package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Identity is the part of the provider's claims QuestLog uses.
type Identity struct {
	ID                string
	Subject           string
	Email             string
	Name              string
	PreferredUsername string
	Picture           string
}

// Key is the stable identifier stored as the user's oidcId: the ID token's
// "id" claim when it has one, its subject otherwise.
func (i *Identity) Key() string {
	if i.ID != "" {
		return i.ID
	}
	return i.Subject
}

// DisplayName prefers the full name over the username.
func (i *Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.PreferredUsername
}

// OIDCConfig describes the provider and our client registration.
//
// If AuthURL, TokenURL and JWKSURL are all set, the endpoints are used as
// given; otherwise they are discovered from Issuer's
// /.well-known/openid-configuration.
type OIDCConfig struct {
	Issuer       string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	JWKSURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCProvider runs the authorization code flow (with PKCE) against an
// OpenID Connect provider.
type OIDCProvider struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	config   oauth2.Config
}

// NewOIDCProvider builds a provider from cfg, performing discovery when the
// endpoints are not configured explicitly.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	var (
		provider *oidc.Provider
		err      error
	)
	if cfg.AuthURL != "" && cfg.TokenURL != "" && cfg.JWKSURL != "" {
		pc := &oidc.ProviderConfig{
			IssuerURL:   cfg.Issuer,
			AuthURL:     cfg.AuthURL,
			TokenURL:    cfg.TokenURL,
			UserInfoURL: cfg.UserInfoURL,
			JWKSURL:     cfg.JWKSURL,
		}
		provider = pc.NewProvider(ctx)
	} else {
		provider, err = oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("auth: discovering OIDC provider %s: %w", cfg.Issuer, err)
		}
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCProvider{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
	}, nil
}

// AuthCodeURL is the provider URL the browser is sent to. verifier is the
// PKCE code verifier; only its S256 challenge appears in the URL.
func (p *OIDCProvider) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades the authorization code for tokens, verifies the ID token
// and returns the caller's identity. Profile fields missing from the ID
// token are filled from the UserInfo endpoint when the provider has one.
func (p *OIDCProvider) Exchange(ctx context.Context, code, verifier string) (*Identity, error) {
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("auth: token response has no id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("auth: verifying id_token: %w", err)
	}

	var c identityClaims
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("auth: decoding id_token claims: %w", err)
	}
	id := c.identity()
	if id.Subject == "" {
		id.Subject = idToken.Subject
	}

	if id.Email == "" || id.DisplayName() == "" || id.Picture == "" {
		if info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token)); err == nil {
			var extra identityClaims
			if err := info.Claims(&extra); err == nil {
				id.fill(extra.identity())
			}
		}
	}

	if id.Key() == "" {
		return nil, errors.New("auth: provider returned no subject")
	}
	return id, nil
}

// identityClaims is the JSON shape shared by ID tokens and UserInfo
// responses. Some providers send "id" as a number.
type identityClaims struct {
	ID                any    `json:"id"`
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

func (c identityClaims) identity() *Identity {
	id := &Identity{
		Subject:           c.Subject,
		Email:             c.Email,
		Name:              c.Name,
		PreferredUsername: c.PreferredUsername,
		Picture:           c.Picture,
	}
	switch v := c.ID.(type) {
	case string:
		id.ID = v
	case float64:
		id.ID = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return id
}

// fill copies profile fields from other that are empty in i. The key
// fields (ID, Subject) come from the verified ID token only, so the key
// does not depend on which profile claims the token happened to carry.
func (i *Identity) fill(other *Identity) {
	if i.Email == "" {
		i.Email = other.Email
	}
	if i.Name == "" {
		i.Name = other.Name
	}
	if i.PreferredUsername == "" {
		i.PreferredUsername = other.PreferredUsername
	}
	if i.Picture == "" {
		i.Picture = other.Picture
	}
}

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// NewState returns an unguessable value for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
