// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package engine wires configuration into the services the session-key
// workflow needs, independent of any UI. The shell, the script runner and the
// dashboard all drive the same Engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/skflow/skflow/internal/balance"
	"github.com/skflow/skflow/internal/fsutil"
	"github.com/skflow/skflow/internal/identity"
	"github.com/skflow/skflow/internal/jsapi"
	"github.com/skflow/skflow/internal/metrics"
	"github.com/skflow/skflow/internal/passcmd"
	"github.com/skflow/skflow/internal/signer"
	"github.com/skflow/skflow/internal/sshtunnel"
	"github.com/skflow/skflow/internal/util"
	"github.com/skflow/skflow/internal/walletapi"
	"github.com/skflow/skflow/internal/workflow"
)

// PassphraseFunc supplies the passphrase of an encrypted key file.
type PassphraseFunc func(path string) ([]byte, error)

// Engine owns the workflow and everything around it.
type Engine struct {
	DataDir string

	Client   *walletapi.Client
	Flow     *workflow.Orchestrator
	Metrics  *metrics.Metrics
	Identity *identity.Client // nil when login is not configured

	mu      sync.Mutex
	config  util.Config
	signer  *signer.KeystoreSigner
	balance *balance.Checker
	tunnel  *sshtunnel.Client
	claims  *identity.Claims

	passphrase      PassphraseFunc
	hostKeyApproval sshtunnel.HostKeyApprovalHandler
	flowOpts        []workflow.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithPassphrase sets how passphrases for encrypted key files are obtained.
func WithPassphrase(fn PassphraseFunc) Option {
	return func(e *Engine) { e.passphrase = fn }
}

// WithHostKeyApproval sets the handler asked to trust unknown bastion host keys.
func WithHostKeyApproval(h sshtunnel.HostKeyApprovalHandler) Option {
	return func(e *Engine) { e.hostKeyApproval = h }
}

// WithWorkflowOptions passes extra options to the orchestrator, e.g. a listener.
func WithWorkflowOptions(opts ...workflow.Option) Option {
	return func(e *Engine) { e.flowOpts = append(e.flowOpts, opts...) }
}

// New builds an Engine from cfg. A missing signer key file is not an error:
// the workflow waits until one is created or loaded.
func New(cfg util.Config, dataDir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		DataDir: dataDir,
		Metrics: metrics.New(),
		config:  cfg,
	}
	for _, opt := range opts {
		opt(e)
	}

	clientOpts := []walletapi.Option{
		walletapi.WithTimeout(time.Duration(cfg.RequestTimeout) * time.Second),
		walletapi.WithRateLimit(cfg.RateLimit),
		walletapi.WithMetrics(e.Metrics),
	}
	if cfg.SSH != nil {
		e.tunnel = sshtunnel.NewClient(cfg.SSH)
		if e.hostKeyApproval != nil {
			e.tunnel.SetHostKeyApprovalHandler(e.hostKeyApproval)
		}
		e.tunnel.SetDisconnectCallback(func() {
			util.Logger.Warn("ssh bastion disconnected; next request will reconnect", "host", e.tunnel.Addr())
		})
		clientOpts = append(clientOpts, walletapi.WithDialContext(e.tunnel.DialContext))
	}
	e.Client = walletapi.New(cfg.APIURL, clientOpts...)

	if cfg.Identity != nil {
		e.Identity = identity.NewClient(cfg.Identity)
	}

	flowOpts := append([]workflow.Option{
		workflow.WithMetrics(e.Metrics),
		workflow.WithChainName(cfg.ChainName()),
	}, e.flowOpts...)
	e.Flow = workflow.New(e.Client, nil, workflow.SettingsFromConfig(&cfg), flowOpts...)

	if err := e.LoadSigner(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return e, nil
}

// Config returns the active configuration.
func (e *Engine) Config() util.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// Signer returns the loaded primary signer, or nil.
func (e *Engine) Signer() *signer.KeystoreSigner {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signer
}

// LoadSigner (re)loads the primary signer from signer_key_file. It returns an
// error wrapping os.ErrNotExist if the file is missing.
func (e *Engine) LoadSigner() error {
	path := e.Config().SignerKeyFile
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read signer key file: %w", err)
	}
	if err := fsutil.CheckPrivate(path); err != nil {
		util.Logger.Warn("signer key file is accessible to other users", "error", err)
	}

	var passphrase []byte
	if signer.IsEncrypted(data) {
		passphrase, err = e.passphraseFor(path)
		if err != nil {
			return err
		}
		defer passcmd.Zero(passphrase)
	}
	s, err := signer.LoadFile(path, passphrase)
	if err != nil {
		return err
	}
	e.setSigner(s)
	return nil
}

// passphraseFor asks the configured helper, falling back to the prompt.
func (e *Engine) passphraseFor(path string) ([]byte, error) {
	if cmd, ok := e.passphraseCommand(); ok {
		util.Debug("reading signer passphrase from helper", "helper", cmd.Argv[0])
		return passcmd.Read(context.Background(), cmd)
	}
	if e.passphrase == nil {
		return nil, signer.ErrPassphraseRequired
	}
	return e.passphrase(path)
}

func (e *Engine) passphraseCommand() (passcmd.Command, bool) {
	cfg := e.Config()
	if len(cfg.PassphraseCommandArgv) == 0 {
		return passcmd.Command{}, false
	}
	return passcmd.Command{Argv: cfg.PassphraseCommandArgv, Env: cfg.PassphraseCommandEnv}, true
}

// GenerateSigner creates a new encrypted key at signer_key_file and loads it.
// With a passphrase helper configured, the passphrase is also handed to the
// helper's write verb; the key is kept even if that fails.
func (e *Engine) GenerateSigner(passphrase []byte, light bool) (string, error) {
	path := e.Config().SignerKeyFile
	addr, err := signer.CreateKeystore(path, passphrase, light)
	if err != nil {
		return "", err
	}
	s, err := signer.LoadFile(path, passphrase)
	if err != nil {
		return "", err
	}
	e.setSigner(s)
	util.Logger.Info("signer key created", "path", path, "address", addr)

	if cmd, ok := e.passphraseCommand(); ok {
		if err := passcmd.Write(context.Background(), cmd, passphrase); err != nil {
			return addr, fmt.Errorf("signer created but the passphrase helper did not store it: %w", err)
		}
	}
	return addr, nil
}

func (e *Engine) setSigner(s *signer.KeystoreSigner) {
	e.mu.Lock()
	old := e.signer
	e.signer = s
	e.mu.Unlock()

	if old != nil {
		old.Close()
	}
	e.Flow.SetSigner(s)
}

// Balance returns the ether balance of address, dialing rpc_url on first use.
func (e *Engine) Balance(ctx context.Context, address string) (string, error) {
	e.mu.Lock()
	checker := e.balance
	rpcURL := e.config.RPCURL
	e.mu.Unlock()

	if checker == nil {
		c, err := balance.Dial(ctx, rpcURL)
		if err != nil {
			return "", err
		}
		e.mu.Lock()
		if e.balance == nil {
			e.balance = c
		} else {
			c.Close()
		}
		checker = e.balance
		e.mu.Unlock()
	}
	return checker.Ether(ctx, address)
}

// Login authenticates with the identity provider. The nonce binds the token to
// the signer's public key. On success the access token is sent on every
// wallet API request.
func (e *Engine) Login(ctx context.Context, username, password string) (*identity.Claims, error) {
	if e.Identity == nil {
		return nil, ErrNoIdentity
	}
	s := e.Signer()
	if s == nil {
		return nil, ErrNoSigner
	}
	pub, err := s.PublicKey()
	if err != nil {
		return nil, err
	}

	tok, err := e.Identity.Login(ctx, username, password, map[string]string{
		identity.NonceParam: identity.Nonce(pub),
	})
	if err != nil {
		return nil, err
	}

	raw := tok.IDToken
	if raw == "" {
		raw = tok.AccessToken
	}
	claims, err := identity.ParseClaims(raw)
	if err != nil {
		// Opaque access tokens are still usable as bearer tokens.
		util.Debug("token is not a JWT", "error", err)
		claims = &identity.Claims{}
	}

	e.Client.SetToken(tok.AccessToken)
	e.mu.Lock()
	e.claims = claims
	e.mu.Unlock()
	return claims, nil
}

// Logout drops the bearer token.
func (e *Engine) Logout() {
	e.Client.SetToken("")
	e.mu.Lock()
	e.claims = nil
	e.mu.Unlock()
}

// Claims returns the claims of the current login, or nil.
func (e *Engine) Claims() *identity.Claims {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.claims
}

// ScriptDeps returns the services exposed to scripts.
func (e *Engine) ScriptDeps() jsapi.Deps {
	return jsapi.Deps{
		Flow:    e.Flow,
		Balance: e.Balance,
		Metrics: e.Metrics,
	}
}

// Close releases keys and connections.
func (e *Engine) Close() error {
	e.mu.Lock()
	s, b, t := e.signer, e.balance, e.tunnel
	e.signer, e.balance = nil, nil
	e.mu.Unlock()

	if s != nil {
		s.Close()
	}
	if b != nil {
		b.Close()
	}
	if t != nil {
		return t.Close()
	}
	return nil
}
