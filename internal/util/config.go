// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chain IDs accepted in config. Only chains the wallet backend serves are listed.
var knownChains = map[string]string{
	"0x1":      "Ethereum",
	"0xaa36a7": "Sepolia",
	"0x2105":   "Base",
	"0x14a34":  "Base Sepolia",
	"0xa4b1":   "Arbitrum",
	"0x66eee":  "Arbitrum Sepolia",
}

// Session durations selectable for session creation, in display order.
var sessionTimes = []struct {
	name    string
	seconds int64
}{
	{"5min", 5 * 60},
	{"1hour", 60 * 60},
	{"1day", 24 * 60 * 60},
}

// Permission types the wallet backend accepts for a session, in display order.
var permissionTypes = []string{"root", "native-token-transfer", "erc20-token-transfer"}

// SSHClientConfig holds settings for reaching the wallet API through an SSH bastion.
// If nil, the API is dialed directly.
type SSHClientConfig struct {
	Host           string `yaml:"host" description:"Bastion host to SSH to (required)"`
	Port           int    `yaml:"port" description:"SSH port" default:"22"`
	User           string `yaml:"user" description:"SSH user name" default:"skflow"`
	IdentityFile   string `yaml:"identity_file" description:"SSH private key path (relative to data dir)" default:".ssh/id_ed25519"`
	KnownHostsPath string `yaml:"known_hosts_path" description:"Known hosts file path (relative to data dir)" default:".ssh/known_hosts"`
}

// IdentityConfig holds identity provider settings for password login.
type IdentityConfig struct {
	Domain       string `yaml:"domain" description:"Identity provider domain (e.g. tenant.auth0.com)"`
	Audience     string `yaml:"audience" description:"Token audience"`
	ClientID     string `yaml:"client_id" description:"OAuth client id"`
	ClientSecret string `yaml:"client_secret" description:"OAuth client secret"`
}

// CallConfig is the call prepared in the prepare-calls step.
type CallConfig struct {
	To    string `yaml:"to" description:"Call target address" default:"0x4Ff840AC60adbdCa20e5640fC2124F5d639Ea501"`
	Value string `yaml:"value" description:"Value in wei, hex encoded" default:"0x2386f26fc10000"`
	Data  string `yaml:"data" description:"Call data, hex encoded" default:"0x"`
}

// Config holds skflow configuration settings
type Config struct {
	APIURL         string  `yaml:"api_url" description:"Wallet API base URL" default:"http://localhost:3000"`
	RPCURL         string  `yaml:"rpc_url" description:"JSON-RPC URL used for balance lookups"`
	ChainID        string  `yaml:"chain_id" description:"Chain id, hex encoded" default:"0xaa36a7"`
	UserID         string  `yaml:"user_id" description:"User id sent on session creation (random if empty)"`
	PermissionType string  `yaml:"permission_type" description:"Default session permission (root, native-token-transfer, erc20-token-transfer)" default:"root"`
	SessionTime    string  `yaml:"session_time" description:"Default session duration (5min, 1hour, 1day)" default:"1hour"`
	SignerKeyFile  string  `yaml:"signer_key_file" description:"Primary signer key file (keystore JSON or hex, relative to data dir)" default:"signer.key"`
	RequestTimeout int     `yaml:"request_timeout" description:"Wallet API request timeout in seconds" default:"30"`
	RateLimit      float64 `yaml:"rate_limit" description:"Max wallet API requests per second (0 = unlimited)" default:"0"`
	LockMemory     bool    `yaml:"lock_memory" description:"Lock process memory so keys are never swapped (needs CAP_IPC_LOCK)" default:"false"`

	// Headless unlock of an encrypted signer key file
	PassphraseCommandArgv []string          `yaml:"passphrase_command_argv" description:"Helper that prints the signer key passphrase (argv[0] relative to data dir; verb 'read' or 'write' is injected as argv[1])"`
	PassphraseCommandEnv  map[string]string `yaml:"passphrase_command_env" description:"Environment for the passphrase helper (process env is never inherited)"`

	Call     CallConfig      `yaml:"call" description:"Call prepared by the prepare step"`
	Identity *IdentityConfig `yaml:"identity" description:"Identity provider settings (omit to skip login)"`

	// SSH bastion config (nil = direct connection)
	SSH *SSHClientConfig `yaml:"ssh" description:"SSH bastion settings (omit for direct connection)"`
}

// DefaultConfig returns the default configuration for runtime use.
func DefaultConfig() Config {
	return Config{
		APIURL:         "http://localhost:3000",
		ChainID:        "0xaa36a7",
		PermissionType: "root",
		SessionTime:    "1hour",
		SignerKeyFile:  "signer.key",
		RequestTimeout: 30,
		Call: CallConfig{
			To:    "0x4Ff840AC60adbdCa20e5640fC2124F5d639Ea501",
			Value: "0x2386f26fc10000",
			Data:  "0x",
		},
	}
}

// DefaultSSHClientConfig returns default SSH settings (used when ssh block exists but fields are missing)
func DefaultSSHClientConfig() SSHClientConfig {
	return SSHClientConfig{
		Port:           22,
		User:           "skflow",
		IdentityFile:   ".ssh/id_ed25519",
		KnownHostsPath: ".ssh/known_hosts",
	}
}

// DefaultDataDir is the default data directory for skflow clients
const DefaultDataDir = "~/.skflow"

// GetDataDir returns the data directory.
// Resolution order: -d flag > SKFLOW_DATA env var > ~/.skflow
func GetDataDir(flagValue string) string {
	if flagValue != "" {
		return ExpandPath(flagValue)
	}
	if envDir := os.Getenv("SKFLOW_DATA"); envDir != "" {
		return ExpandPath(envDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".skflow")
}

// RequireDataDir resolves the data directory, exiting if it cannot be determined.
func RequireDataDir(flagValue string) string {
	dir := GetDataDir(flagValue)
	if dir == "" {
		fmt.Fprintln(os.Stderr, "Error: Could not determine data directory")
		fmt.Fprintln(os.Stderr, "Use -d <path> or set SKFLOW_DATA environment variable")
		os.Exit(1)
	}
	return dir
}

// GetConfigPath returns the path to the config file in the data directory.
// Returns empty string if dataDir is empty.
func GetConfigPath(dataDir string) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, "config.yaml")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// ResolvePath returns path unchanged if absolute, otherwise joined to baseDir.
func ResolvePath(path, baseDir string) string {
	path = ExpandPath(path)
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// LoadConfig loads configuration from config.yaml in the data directory.
// Relative file paths are resolved against the data directory.
func LoadConfig(dataDir string) (Config, error) {
	config, err := LoadConfigFromPath(GetConfigPath(dataDir))
	if err != nil {
		return config, err
	}

	config.SignerKeyFile = ResolvePath(config.SignerKeyFile, dataDir)
	if len(config.PassphraseCommandArgv) > 0 {
		config.PassphraseCommandArgv[0] = ResolvePath(config.PassphraseCommandArgv[0], dataDir)
	}
	if config.SSH != nil {
		config.SSH.IdentityFile = ResolvePath(config.SSH.IdentityFile, dataDir)
		config.SSH.KnownHostsPath = ResolvePath(config.SSH.KnownHostsPath, dataDir)
	}

	return config, nil
}

// LoadConfigFromPath loads configuration from the specified path.
// A missing file yields the defaults.
func LoadConfigFromPath(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig overlays YAML data on the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	defaults := DefaultConfig()
	if config.APIURL == "" {
		config.APIURL = defaults.APIURL
	}
	if config.ChainID == "" {
		config.ChainID = defaults.ChainID
	}
	if config.PermissionType == "" {
		config.PermissionType = defaults.PermissionType
	}
	if config.SessionTime == "" {
		config.SessionTime = defaults.SessionTime
	}
	if config.SignerKeyFile == "" {
		config.SignerKeyFile = defaults.SignerKeyFile
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.Call.To == "" {
		config.Call.To = defaults.Call.To
	}
	if config.Call.Value == "" {
		config.Call.Value = defaults.Call.Value
	}
	if config.Call.Data == "" {
		config.Call.Data = defaults.Call.Data
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	if config.SSH != nil {
		sshDefaults := DefaultSSHClientConfig()
		if config.SSH.Port == 0 {
			config.SSH.Port = sshDefaults.Port
		}
		if config.SSH.User == "" {
			config.SSH.User = sshDefaults.User
		}
		if config.SSH.IdentityFile == "" {
			config.SSH.IdentityFile = sshDefaults.IdentityFile
		}
		if config.SSH.KnownHostsPath == "" {
			config.SSH.KnownHostsPath = sshDefaults.KnownHostsPath
		}
	}

	return config, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api_url '%s' (must be an http or https URL)", c.APIURL)
	}
	if _, ok := knownChains[strings.ToLower(c.ChainID)]; !ok {
		return fmt.Errorf("unsupported chain_id '%s'", c.ChainID)
	}
	if !IsPermissionType(c.PermissionType) {
		return fmt.Errorf("invalid permission_type '%s' (must be root, native-token-transfer, or erc20-token-transfer)", c.PermissionType)
	}
	if _, err := SessionSeconds(c.SessionTime); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.SSH != nil && c.SSH.Host == "" {
		return fmt.Errorf("ssh.host is required when ssh block is present")
	}
	if c.Identity != nil && c.Identity.Domain == "" {
		return fmt.Errorf("identity.domain is required when identity block is present")
	}
	return nil
}

// ChainName returns a display name for the configured chain.
func (c *Config) ChainName() string {
	return ChainName(c.ChainID)
}

// ChainName returns the display name of a hex chain id, or the id itself if unknown.
func ChainName(chainID string) string {
	if name, ok := knownChains[strings.ToLower(chainID)]; ok {
		return name
	}
	return chainID
}

// SessionTimes lists the selectable session duration names.
func SessionTimes() []string {
	names := make([]string, len(sessionTimes))
	for i, st := range sessionTimes {
		names[i] = st.name
	}
	return names
}

// PermissionTypes lists the permission types the backend accepts.
func PermissionTypes() []string {
	return slices.Clone(permissionTypes)
}

// SessionSeconds converts a session duration name into seconds.
func SessionSeconds(name string) (int64, error) {
	for _, st := range sessionTimes {
		if st.name == name {
			return st.seconds, nil
		}
	}
	return 0, fmt.Errorf("invalid session time '%s' (must be one of %s)", name, strings.Join(SessionTimes(), ", "))
}

// IsPermissionType reports whether p is a permission type the backend accepts.
func IsPermissionType(p string) bool {
	return slices.Contains(permissionTypes, p)
}

// DisplayConfig prints the current configuration
func DisplayConfig(dataDir string) {
	config, err := LoadConfig(dataDir)
	configPath := GetConfigPath(dataDir)

	fmt.Println("Current Configuration:")
	fmt.Println("=====================")
	fmt.Printf("Data dir:    %s\n", dataDir)
	fmt.Printf("Config file: %s\n", configPath)
	if err != nil {
		fmt.Printf("Error:       %v\n", err)
		fmt.Println()
		return
	}
	fmt.Printf("API URL:     %s\n", config.APIURL)
	fmt.Printf("Chain:       %s (%s)\n", config.ChainName(), config.ChainID)
	fmt.Printf("Permission:  %s\n", config.PermissionType)
	fmt.Printf("Session:     %s\n", config.SessionTime)
	fmt.Printf("Signer key:  %s\n", config.SignerKeyFile)
	fmt.Printf("Call:        to=%s value=%s data=%s\n", config.Call.To, config.Call.Value, config.Call.Data)
	if config.RPCURL != "" {
		fmt.Printf("RPC URL:     %s\n", config.RPCURL)
	} else {
		fmt.Printf("RPC URL:     (not set, balance disabled)\n")
	}
	if config.SSH != nil {
		fmt.Printf("SSH host:    %s@%s:%d\n", config.SSH.User, config.SSH.Host, config.SSH.Port)
		fmt.Printf("SSH key:     %s\n", config.SSH.IdentityFile)
		fmt.Printf("known_hosts: %s\n", config.SSH.KnownHostsPath)
	} else {
		fmt.Printf("SSH:         disabled (direct connection)\n")
	}
	if config.Identity != nil {
		fmt.Printf("Identity:    %s\n", config.Identity.Domain)
	} else {
		fmt.Printf("Identity:    (login disabled)\n")
	}
	fmt.Println()
}
