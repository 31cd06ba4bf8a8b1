// Package config loads the client configuration from a JSON config dir.
// Only connectivity settings live here; session state is never persisted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dappcoin/coinctl/internal/token"
)

const (
	configFile = "config.json"

	defaultPollSeconds = 3
)

// Config holds all coinctl configuration.
type Config struct {
	// RPCURL is the wallet provider endpoint. Empty means no wallet is
	// available, which connect reports rather than crashes on.
	RPCURL string `json:"rpc_url"`

	// ContractAddress and ChainID override the built-in binding, for
	// running against a local deployment of the same contract.
	ContractAddress string `json:"contract_address,omitempty"`
	ChainID         int64  `json:"chain_id,omitempty"`

	// PollSeconds is the interval for receipt, log, and network polling.
	PollSeconds int `json:"poll_seconds"`

	configDir string
}

// Load reads config from dir (or returns defaults). dir defaults to
// ~/.coinctl; the COINCTL_CONFIG_DIR env var is handled by the caller.
func Load(dir string) (*Config, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".coinctl")
	}

	cfg := &Config{
		PollSeconds: defaultPollSeconds,
		configDir:   dir,
	}

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.configDir = dir
	if cfg.PollSeconds <= 0 {
		cfg.PollSeconds = defaultPollSeconds
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.configDir, configFile), data, 0o600)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// Binding returns the contract binding, applying any configured override
// on top of the built-in deployment.
func (c *Config) Binding() token.Binding {
	b := token.DefaultBinding()
	if c.ContractAddress != "" {
		b.Address = c.ContractAddress
	}
	if c.ChainID != 0 {
		b.ChainID = c.ChainID
	}
	return b
}
