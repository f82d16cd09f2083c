// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package identity logs a user in against an OAuth token endpoint with the
// password grant. The resulting access token is attached to wallet API
// requests; signature verification is left to the wallet backend.
package identity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skflow/skflow/internal/util"
)

var (
	// ErrLoginFailed indicates the identity provider rejected the credentials.
	ErrLoginFailed = errors.New("authentication failed")

	// ErrNoAccessToken indicates a 2xx response without an access token.
	ErrNoAccessToken = errors.New("no access token in response")
)

// NonceParam is the extra token request parameter carrying the nonce.
const NonceParam = "tknonce"

// Nonce derives the login nonce from a target public key: the hex sha256 of
// the key's string bytes, without a 0x prefix.
func Nonce(targetPublicKey string) string {
	sum := sha256.Sum256([]byte(targetPublicKey))
	return hex.EncodeToString(sum[:])
}

// Token is a token endpoint response.
type Token struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Claims are the fields of an access token skflow displays.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	Raw       jwt.MapClaims
}

// Expired reports whether the token expiry is before now. Tokens without an
// expiry never expire.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// ParseClaims reads the claims of a JWT without verifying its signature.
func ParseClaims(token string) (*Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	sub, _ := claims.GetSubject()
	iss, _ := claims.GetIssuer()
	c := &Claims{Subject: sub, Issuer: iss, Raw: claims}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// Client is a password-grant token client.
type Client struct {
	Domain       string
	Audience     string
	ClientID     string
	ClientSecret string
	HTTP         *http.Client
}

// NewClient creates a client from config.
func NewClient(cfg *util.IdentityConfig) *Client {
	return &Client{
		Domain:       cfg.Domain,
		Audience:     cfg.Audience,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
	}
}

// TokenURL returns the token endpoint. A bare domain is served over https.
func (c *Client) TokenURL() string {
	base := strings.TrimRight(c.Domain, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return base + "/oauth/token"
}

// Login exchanges username and password for a token. extra is merged into the
// request and may override the standard fields.
func (c *Client) Login(ctx context.Context, username, password string, extra map[string]string) (*Token, error) {
	body := map[string]string{
		"grant_type":    "password",
		"username":      username,
		"password":      password,
		"audience":      c.Audience,
		"scope":         "",
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
	}
	for k, v := range extra {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(data, &oauthErr) == nil && oauthErr.Error != "" {
			msg = oauthErr.Error
			if oauthErr.Description != "" {
				msg += ": " + oauthErr.Description
			}
		}
		util.Debug("token request rejected", "status", resp.StatusCode, "error", msg)
		return nil, fmt.Errorf("%w: %s", ErrLoginFailed, msg)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	return &tok, nil
}
