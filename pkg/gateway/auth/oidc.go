package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pulseboard/platform/pkg/common/logger"
	"golang.org/x/oauth2"
)

// OIDCAuthenticator covers deployments that front the dashboard with a
// corporate identity provider instead of local logins.
type OIDCAuthenticator struct {
	config *oauth2.Config
	issuer string
}

func NewOIDCAuthenticator(issuer, clientID, clientSecret string) (*OIDCAuthenticator, error) {
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC configuration incomplete")
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("%s/authorize", issuer),
			TokenURL: fmt.Sprintf("%s/token", issuer),
		},
		Scopes: []string{"openid", "profile", "email"},
	}

	return &OIDCAuthenticator{
		config: config,
		issuer: issuer,
	}, nil
}

// AuthCodeURL starts the authorization flow for the dashboard login
// redirect.
func (a *OIDCAuthenticator) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for provider tokens.
func (a *OIDCAuthenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		logger.Log.WithError(err).Warn("OIDC code exchange failed")
		return nil, err
	}
	return tok, nil
}

// EmailFromIDToken pulls the email claim out of an ID token returned by
// the provider's token endpoint. The token arrived directly over TLS
// from the issuer, so the claims are read without re-verifying the
// provider signature.
func EmailFromIDToken(tok *oauth2.Token) (string, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("token response missing id_token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("parse id_token: %w", err)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return "", fmt.Errorf("id_token missing email claim")
	}
	return email, nil
}
