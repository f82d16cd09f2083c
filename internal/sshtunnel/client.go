// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package sshtunnel routes wallet API connections through an SSH bastion.
//
// Client keeps one SSH connection open and hands out direct-tcpip channels
// through DialContext, which plugs into an http.Transport.
package sshtunnel

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/skflow/skflow/internal/fsutil"
	"github.com/skflow/skflow/internal/util"
)

// KeepaliveInterval is how often an idle connection is probed.
const KeepaliveInterval = 15 * time.Second

var (
	// ErrHostKeyMismatch indicates the bastion presented a different key than known_hosts.
	ErrHostKeyMismatch = errors.New("SSH host key mismatch (possible MITM attack)")

	// ErrUnknownHost indicates a host absent from known_hosts with no approval handler.
	ErrUnknownHost = errors.New("unknown SSH host")

	// ErrHostKeyRejected indicates the approval handler declined the host key.
	ErrHostKeyRejected = errors.New("host key rejected by user")
)

// HostKeyApprovalHandler is called when connecting to an unknown SSH server.
// It should display the host and fingerprint to the user and return true if trusted.
type HostKeyApprovalHandler func(host string, fingerprint string) (bool, error)

// Client is a lazily connected SSH bastion.
type Client struct {
	host           string
	port           int
	user           string
	identityFile   string
	knownHostsPath string

	mu              sync.Mutex
	hostKeyApproval HostKeyApprovalHandler
	sshClient       *ssh.Client
	agentConn       net.Conn
	keepaliveStop   chan struct{}
	onDisconnect    func()
}

// NewClient creates a client from SSH config. Paths are expected to be resolved.
func NewClient(cfg *util.SSHClientConfig) *Client {
	return &Client{
		host:           cfg.Host,
		port:           cfg.Port,
		user:           cfg.User,
		identityFile:   cfg.IdentityFile,
		knownHostsPath: cfg.KnownHostsPath,
	}
}

// Addr returns the bastion host:port.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// SetHostKeyApprovalHandler sets a callback for TOFU host key approval.
// When connecting to an unknown server, this handler will be called to prompt
// the user. If approved, the host key is saved to known_hosts.
func (c *Client) SetHostKeyApprovalHandler(handler HostKeyApprovalHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostKeyApproval = handler
}

// SetDisconnectCallback sets a callback to be called when the connection dies.
func (c *Client) SetDisconnectCallback(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = callback
}

// Connect opens the SSH connection if it is not open yet.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connection(ctx)
	return err
}

// DialContext opens a channel to addr through the bastion, connecting first
// if needed. Its signature matches http.Transport.DialContext.
func (c *Client) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := client.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s via %s: %w", addr, c.Addr(), err)
	}
	return conn, nil
}

func (c *Client) connection(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sshClient != nil {
		return c.sshClient, nil
	}

	authMethod, agentConn, err := c.authMethod()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		if agentConn != nil {
			_ = agentConn.Close()
		}
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            c.user,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	sshClient, err := dialWithContext(ctx, "tcp", c.Addr(), config)
	if err != nil {
		if agentConn != nil {
			_ = agentConn.Close()
		}
		return nil, fmt.Errorf("SSH connection failed: %w", err)
	}

	c.sshClient = sshClient
	c.agentConn = agentConn
	c.keepaliveStop = make(chan struct{})
	util.Logger.Info("SSH bastion connected", "addr", c.Addr())

	go c.monitorConnection(sshClient, c.keepaliveStop)
	return sshClient, nil
}

func (c *Client) authMethod() (ssh.AuthMethod, net.Conn, error) {
	if c.identityFile != "" {
		keyData, err := os.ReadFile(c.identityFile)
		if err != nil {
			if os.IsNotExist(err) {
				signer, genErr := generateIdentityKey(c.identityFile)
				if genErr != nil {
					return agentAuthMethod()
				}
				return ssh.PublicKeys(signer), nil, nil
			}
			return nil, nil, fmt.Errorf("failed to read SSH identity file %s: %w", c.identityFile, err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, nil, fmt.Errorf("SSH identity file %s is encrypted; use ssh-agent or an unencrypted key", c.identityFile)
			}
			return nil, nil, fmt.Errorf("failed to parse SSH identity file %s: %w", c.identityFile, err)
		}
		return ssh.PublicKeys(signer), nil, nil
	}

	return agentAuthMethod()
}

// generateIdentityKey writes a new Ed25519 key to path and logs the public
// key so it can be added to the bastion's authorized_keys.
func generateIdentityKey(path string) (ssh.Signer, error) {
	pubKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 key: %w", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	if err := fsutil.WriteFile(path, pem.EncodeToMemory(pemBlock)); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH public key: %w", err)
	}
	util.Logger.Info("generated SSH identity key",
		"path", path,
		"fingerprint", ssh.FingerprintSHA256(sshPubKey),
		"authorized_key", string(ssh.MarshalAuthorizedKey(sshPubKey)))

	return signer, nil
}

func agentAuthMethod() (ssh.AuthMethod, net.Conn, error) {
	agentSock := os.Getenv("SSH_AUTH_SOCK")
	if agentSock == "" {
		return nil, nil, fmt.Errorf("no SSH identity file configured and SSH_AUTH_SOCK is not set")
	}

	conn, err := net.Dial("unix", agentSock)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
	}

	agentClient := agent.NewClient(conn)
	return ssh.PublicKeysCallback(agentClient.Signers), conn, nil
}

// hostKeyCallback checks known_hosts and falls back to the approval handler
// for hosts it has never seen. A changed key is always rejected.
func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.knownHostsPath == "" {
		return nil, fmt.Errorf("known_hosts path is empty")
	}
	knownHostsPath := c.knownHostsPath

	var existing ssh.HostKeyCallback
	if _, err := os.Stat(knownHostsPath); err == nil {
		callback, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts %s: %w", knownHostsPath, err)
		}
		existing = callback
	}

	handler := c.hostKeyApproval
	var once sync.Once

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fingerprint := ssh.FingerprintSHA256(key)

		if existing != nil {
			err := existing(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if !errors.As(err, &keyErr) {
				return err
			}
			if len(keyErr.Want) > 0 {
				return fmt.Errorf("%w for %s", ErrHostKeyMismatch, hostname)
			}
		}

		if handler == nil {
			return fmt.Errorf("%w %s (key %s); add it to %s", ErrUnknownHost, hostname, fingerprint, knownHostsPath)
		}

		var approved bool
		var approvalErr error
		once.Do(func() {
			approved, approvalErr = handler(hostname, fingerprint)
		})
		if approvalErr != nil {
			return fmt.Errorf("host key approval failed: %w", approvalErr)
		}
		if !approved {
			return ErrHostKeyRejected
		}

		if err := saveHostKey(knownHostsPath, hostname, key); err != nil {
			return fmt.Errorf("failed to save host key: %w", err)
		}
		util.Logger.Info("SSH host key saved", "host", hostname, "path", knownHostsPath)
		return nil
	}, nil
}

// saveHostKey appends a host key to the known_hosts file.
func saveHostKey(knownHostsPath, hostname string, key ssh.PublicKey) error {
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)

	f, err := fsutil.CreateFile(knownHostsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write host key: %w", err)
	}
	return f.Close()
}

// IsConnected reports whether an SSH connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sshClient != nil
}

// CheckConnection sends a keepalive and reports whether the bastion answered.
func (c *Client) CheckConnection() error {
	c.mu.Lock()
	sshClient := c.sshClient
	c.mu.Unlock()

	if sshClient == nil {
		return fmt.Errorf("not connected")
	}
	if _, _, err := sshClient.SendRequest("keepalive@openssh.com", true, nil); err != nil {
		c.handleDisconnect(sshClient)
		return fmt.Errorf("connection dead: %w", err)
	}
	return nil
}

// Close closes the SSH connection. The next DialContext reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keepaliveStop != nil {
		close(c.keepaliveStop)
		c.keepaliveStop = nil
	}

	var errs []error
	if c.sshClient != nil {
		if err := c.sshClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close SSH client: %w", err))
		}
		c.sshClient = nil
	}
	if c.agentConn != nil {
		if err := c.agentConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close SSH agent connection: %w", err))
		}
		c.agentConn = nil
	}
	return errors.Join(errs...)
}

// monitorConnection pings the bastion until stop is closed or the connection
// dies, then drops it so the next dial reconnects.
func (c *Client) monitorConnection(sshClient *ssh.Client, stop <-chan struct{}) {
	dead := make(chan struct{})
	go func() {
		if err := sshClient.Wait(); err != nil {
			util.Debug("SSH connection closed", "error", err)
		}
		close(dead)
	}()

	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-dead:
			c.handleDisconnect(sshClient)
			return
		case <-ticker.C:
			if _, _, err := sshClient.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				util.Logger.Warn("SSH keepalive failed", "error", err)
				c.handleDisconnect(sshClient)
				return
			}
		}
	}
}

// handleDisconnect forgets sshClient if it is still the current connection.
func (c *Client) handleDisconnect(sshClient *ssh.Client) {
	c.mu.Lock()
	if c.sshClient != sshClient {
		c.mu.Unlock()
		return
	}
	_ = c.sshClient.Close()
	c.sshClient = nil
	if c.agentConn != nil {
		_ = c.agentConn.Close()
		c.agentConn = nil
	}
	if c.keepaliveStop != nil {
		close(c.keepaliveStop)
		c.keepaliveStop = nil
	}
	callback := c.onDisconnect
	c.mu.Unlock()

	util.Logger.Warn("SSH bastion connection lost", "addr", c.Addr())
	if callback != nil {
		callback()
	}
}

// dialWithContext connects to an SSH server, honoring ctx during the handshake.
func dialWithContext(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}
