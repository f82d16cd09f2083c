// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package sshtunnel

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/skflow/skflow/internal/util"
)

// bastion is an in-process SSH server that forwards direct-tcpip channels
// for one authorized key.
type bastion struct {
	listener net.Listener
	config   *ssh.ServerConfig
	hostKey  ssh.PublicKey

	mu       sync.Mutex
	forwards []string
}

func newBastion(t *testing.T, authorized ssh.PublicKey) *bastion {
	t.Helper()
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatal(err)
	}

	b := &bastion{hostKey: hostSigner.PublicKey()}
	b.config = &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	b.config.AddHostKey(hostSigner)

	b.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = b.listener.Close() })
	go b.serve()
	return b
}

func (b *bastion) port() int {
	return b.listener.Addr().(*net.TCPAddr).Port
}

func (b *bastion) forwarded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.forwards...)
}

func (b *bastion) serve() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		go b.handleConnection(conn)
	}
}

func (b *bastion) handleConnection(netConn net.Conn) {
	defer func() { _ = netConn.Close() }()
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, b.config)
	if err != nil {
		return
	}
	defer func() { _ = sshConn.Close() }()
	go ssh.DiscardRequests(reqs)
	for newChannel := range chans {
		go b.handleChannel(newChannel)
	}
}

func (b *bastion) handleChannel(newChannel ssh.NewChannel) {
	if newChannel.ChannelType() != "direct-tcpip" {
		_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
		return
	}
	var req struct {
		DestAddr   string
		DestPort   uint32
		OriginAddr string
		OriginPort uint32
	}
	if err := ssh.Unmarshal(newChannel.ExtraData(), &req); err != nil {
		_ = newChannel.Reject(ssh.Prohibited, "failed to parse port forward request")
		return
	}
	target := net.JoinHostPort(req.DestAddr, fmt.Sprint(req.DestPort))

	targetConn, err := net.Dial("tcp", target)
	if err != nil {
		_ = newChannel.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	defer func() { _ = targetConn.Close() }()

	channel, requests, err := newChannel.Accept()
	if err != nil {
		return
	}
	defer func() { _ = channel.Close() }()
	go ssh.DiscardRequests(requests)

	b.mu.Lock()
	b.forwards = append(b.forwards, target)
	b.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(channel, targetConn)
		_ = channel.CloseWrite()
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(targetConn, channel)
	}()
	wg.Wait()
}

// writeIdentity stores an unencrypted Ed25519 identity and returns its public key.
func writeIdentity(t *testing.T, path string) ssh.PublicKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestDialThroughBastion(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "wallet ok")
	}))
	defer backend.Close()

	dir := t.TempDir()
	identity := filepath.Join(dir, "id_ed25519")
	b := newBastion(t, writeIdentity(t, identity))

	cfg := util.DefaultSSHClientConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = b.port()
	cfg.IdentityFile = identity
	cfg.KnownHostsPath = filepath.Join(dir, "known_hosts")
	c := NewClient(&cfg)
	defer func() { _ = c.Close() }()

	var prompted string
	c.SetHostKeyApprovalHandler(func(host, fingerprint string) (bool, error) {
		prompted = fingerprint
		return true, nil
	})

	client := &http.Client{Transport: &http.Transport{DialContext: c.DialContext}}
	resp, err := client.Get(backend.URL)
	if err != nil {
		t.Fatalf("GET through bastion: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "wallet ok" {
		t.Errorf("body = %q", body)
	}

	if prompted != ssh.FingerprintSHA256(b.hostKey) {
		t.Errorf("approval fingerprint = %q, want %q", prompted, ssh.FingerprintSHA256(b.hostKey))
	}
	if !c.IsConnected() {
		t.Error("client should report connected")
	}
	if got := b.forwarded(); len(got) != 1 || got[0] != backend.Listener.Addr().String() {
		t.Errorf("forwarded = %v, want [%s]", got, backend.Listener.Addr())
	}

	// The approved key is remembered, so a fresh client connects without asking
	known, err := os.ReadFile(cfg.KnownHostsPath)
	if err != nil || len(known) == 0 {
		t.Fatalf("known_hosts not written: %v", err)
	}
	again := NewClient(&cfg)
	defer func() { _ = again.Close() }()
	if err := again.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect with saved host key: %v", err)
	}
}

func TestDialRejectedKey(t *testing.T) {
	dir := t.TempDir()
	other := writeIdentity(t, filepath.Join(dir, "other"))
	b := newBastion(t, other)

	identity := filepath.Join(dir, "id_ed25519")
	writeIdentity(t, identity)

	cfg := util.DefaultSSHClientConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = b.port()
	cfg.IdentityFile = identity
	cfg.KnownHostsPath = filepath.Join(dir, "known_hosts")
	c := NewClient(&cfg)
	c.SetHostKeyApprovalHandler(func(string, string) (bool, error) { return true, nil })

	if err := c.Connect(context.Background()); err == nil {
		_ = c.Close()
		t.Fatal("expected authentication failure")
	}
	if c.IsConnected() {
		t.Error("client should not report connected")
	}
}
