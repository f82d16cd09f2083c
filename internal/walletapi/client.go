// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package walletapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/skflow/skflow/internal/metrics"
	"github.com/skflow/skflow/internal/sessionkey"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/version"
)

// Endpoint names, used in errors, logs and metrics.
const (
	EndpointProvisionAccount = "provision-account"
	EndpointCreateSession    = "create-session"
	EndpointPrepareCalls     = "prepare-calls"
	EndpointSendCalls        = "send-calls"
	EndpointCallStatus       = "poll-status"
)

type endpoint struct {
	path           string
	defaultMessage string
}

var endpoints = map[string]endpoint{
	EndpointProvisionAccount: {"/api/wallet/create/smart-account", "Failed to request smart account"},
	EndpointCreateSession:    {"/api/wallet/create/session-keys", "Failed to create session"},
	EndpointPrepareCalls:     {"/api/wallet/prepare-calls", "Failed to prepare calls"},
	EndpointSendCalls:        {"/api/wallet/send-prepare-calls", "Failed to send prepared calls"},
	EndpointCallStatus:       {"/api/wallet/calls-status", "Failed to get calls status"},
}

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 30 * time.Second

// Client talks to the wallet backend.
type Client struct {
	baseURL   string
	http      *http.Client
	transport *http.Transport
	limiter   *rate.Limiter
	metrics   *metrics.Metrics

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or negative disables the cap.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithDialContext routes connections through dial, e.g. an SSH bastion.
func WithDialContext(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(c *Client) {
		if dial != nil {
			c.transport.DialContext = dial
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		http:      &http.Client{Timeout: DefaultTimeout, Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken replaces the bearer token. An empty token disables the header.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ProvisionAccount creates (or returns) the smart account for a signer.
func (c *Client) ProvisionAccount(ctx context.Context, params ProvisionParams) (*SmartAccount, error) {
	var acct SmartAccount
	if err := c.post(ctx, EndpointProvisionAccount, params, &acct); err != nil {
		return nil, err
	}
	if acct.AccountAddress == "" {
		return nil, fmt.Errorf("%w: accountAddress", ErrMissingField)
	}
	return &acct, nil
}

// CreateSession creates a delegated session. The session payload may be wrapped
// in a "result" object; the session key may sit at either level.
func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	var body map[string]json.RawMessage
	if err := c.post(ctx, EndpointCreateSession, params, &body); err != nil {
		return nil, err
	}

	sessionData := body
	if raw, ok := body["result"]; ok && isObject(raw) {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode session result: %w", err)
		}
		sessionData = wrapped
	}

	var session Session
	if !present(sessionData["signatureRequest"]) {
		if msg := errorMessage(sessionData["error"]); msg != "" {
			return nil, fmt.Errorf("session creation failed: %s: %w", msg, ErrMissingSignatureRequest)
		}
		return nil, ErrMissingSignatureRequest
	}
	if err := json.Unmarshal(sessionData["signatureRequest"], &session.SignatureRequest); err != nil {
		return nil, fmt.Errorf("failed to decode signatureRequest: %w", err)
	}

	if err := json.Unmarshal(sessionData["sessionId"], &session.SessionID); err != nil || session.SessionID == "" {
		return nil, fmt.Errorf("%w: sessionId", ErrMissingField)
	}

	keyRaw := body["sessionKey"]
	if !present(keyRaw) {
		keyRaw = sessionData["sessionKey"]
	}
	if !present(keyRaw) {
		return nil, ErrMissingSessionKey
	}
	var key sessionkey.Key
	if err := json.Unmarshal(keyRaw, &key); err != nil {
		return nil, fmt.Errorf("failed to decode sessionKey: %w", err)
	}
	if key.Address == "" && key.PrivateKey == "" {
		return nil, ErrMissingSessionKey
	}
	session.SessionKey = key

	return &session, nil
}

// PrepareCalls builds an unsigned user operation for calls.
func (c *Client) PrepareCalls(ctx context.Context, params PrepareCallsParams) (*PreparedCall, error) {
	var prepared PreparedCall
	if err := c.post(ctx, EndpointPrepareCalls, params, &prepared); err != nil {
		return nil, err
	}
	if !present(prepared.UserOpRequest) {
		return nil, fmt.Errorf("%w: userOpRequest", ErrMissingField)
	}
	if prepared.SignatureRequest.Data.Raw == "" {
		return nil, fmt.Errorf("%w: signatureRequest.data.raw", ErrMissingField)
	}
	if prepared.ChainID == "" {
		prepared.ChainID = params.ChainID
	}
	return &prepared, nil
}

// SendPreparedCalls relays a signed user operation and returns the call ids.
// An empty slice means the backend accepted the call but returned nothing to poll.
func (c *Client) SendPreparedCalls(ctx context.Context, params SendCallsParams) ([]string, error) {
	var body any
	if err := c.post(ctx, EndpointSendCalls, params, &body); err != nil {
		return nil, err
	}
	ids := NormalizeCallIDs(sendCallsSource(body))
	if len(ids) == 0 {
		util.Logger.Warn("send-calls returned no call ids", "body", body)
	}
	return ids, nil
}

// CallStatus fetches the status of a submitted call batch.
func (c *Client) CallStatus(ctx context.Context, callID string) (*CallStatus, error) {
	var status CallStatus
	if err := c.post(ctx, EndpointCallStatus, callStatusParams{CallID: callID}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// post sends body to the named endpoint and decodes a 2xx response into out.
func (c *Client) post(ctx context.Context, name string, body, out any) (err error) {
	ep, ok := endpoints[name]
	if !ok {
		return fmt.Errorf("unknown endpoint %q", name)
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.ObserveRequest(name, outcome, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{Endpoint: name, Message: ep.defaultMessage + ": " + err.Error(), Err: err}
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ep.path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", name, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("User-Agent", version.UserAgent())
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	util.Debug("wallet api request", "endpoint", name, "request_id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Endpoint: name, Message: ep.defaultMessage + ": " + err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Endpoint: name, Status: resp.StatusCode, Message: ep.defaultMessage + ": " + err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ep.defaultMessage
		var envelope struct {
			Error json.RawMessage `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			if m := errorMessage(envelope.Error); m != "" {
				msg = m
			}
		}
		util.Debug("wallet api error", "endpoint", name, "status", resp.StatusCode, "message", msg)
		return &APIError{Endpoint: name, Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{Endpoint: name, Status: resp.StatusCode, Message: fmt.Sprintf("%s: invalid response: %v", ep.defaultMessage, err), Err: err}
	}
	return nil
}

// errorMessage extracts a message from an "error" value that is either a
// string or an object with a "message" field.
func errorMessage(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
