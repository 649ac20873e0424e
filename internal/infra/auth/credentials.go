// Package auth supplies the bearer credential attached to every outgoing
// GraphQL attempt. Token storage and login flows live in the host; this
// package only reads the current value.
package auth

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Provider returns the credential to send with the next attempt. An empty
// string means no credential; the request is still sent.
type Provider interface {
	Credential(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Credential(ctx context.Context) (string, error) { return f(ctx) }

// Static always returns the same token.
type Static string

func (s Static) Credential(context.Context) (string, error) { return string(s), nil }

// Mutable holds a token the host can replace at any time, e.g. after re-login.
// Each attempt reads the latest value.
type Mutable struct {
	token atomic.Value
}

// NewMutable creates a Mutable provider with an initial token.
func NewMutable(token string) *Mutable {
	m := &Mutable{}
	m.token.Store(token)
	return m
}

// Set replaces the token.
func (m *Mutable) Set(token string) { m.token.Store(token) }

func (m *Mutable) Credential(context.Context) (string, error) {
	tok, _ := m.token.Load().(string)
	return tok, nil
}

// TokenSource adapts an oauth2.TokenSource. The source is wrapped with
// oauth2.ReuseTokenSource so tokens are refreshed only when expired.
type TokenSource struct {
	src oauth2.TokenSource
}

// FromTokenSource wraps src.
func FromTokenSource(src oauth2.TokenSource) *TokenSource {
	return &TokenSource{src: oauth2.ReuseTokenSource(nil, src)}
}

func (t *TokenSource) Credential(context.Context) (string, error) {
	tok, err := t.src.Token()
	if err != nil {
		return "", fmt.Errorf("fetch oauth2 token: %w", err)
	}
	return tok.AccessToken, nil
}

// OAuth2Config holds client-credentials settings.
type OAuth2Config struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// Enabled reports whether client credentials are configured.
func (c OAuth2Config) Enabled() bool {
	return c.ClientID != "" && c.TokenURL != ""
}

// ClientCredentials builds a provider using the OAuth2 client-credentials grant.
func ClientCredentials(ctx context.Context, cfg OAuth2Config) *TokenSource {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return FromTokenSource(cc.TokenSource(ctx))
}
