// Package config loads the per-repository settings file, .mxgit/config.yaml.
//
// Config here means the operator's choices for one repository: which hash
// function addresses its objects, how loudly it logs, how the history
// filesystem mounts. Nothing in it changes the meaning of stored history.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the config file's name inside the repository metadata directory.
const FileName = "config.yaml"

// HashEnv overrides the hash function when a repository is initialised.
const HashEnv = "MXGIT_HASH"

// Hash names accepted in the "hash" field. All are at least 256 bits.
var SupportedHashes = []string{"sha2-256", "sha2-512", "sha3-256", "blake3"}

// Config is the parsed config.yaml.
type Config struct {
	Hash    string      `yaml:"hash"`
	Verbose bool        `yaml:"verbose"`
	Mount   MountConfig `yaml:"mount"`
}

// MountConfig controls the read-only history filesystem.
type MountConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns the configuration written by a plain init.
func Default() *Config {
	return &Config{Hash: "sha2-256"}
}

// FromEnv returns Default with environment overrides applied.
func FromEnv() *Config {
	cfg := Default()
	if h := os.Getenv(HashEnv); h != "" {
		cfg.Hash = h
	}
	return cfg
}

// LoadFromFile reads and parses a configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes. Missing fields take
// their defaults; the result is validated.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// Validate normalises the hash name and rejects unsupported values.
func (c *Config) Validate() error {
	c.Hash = strings.ToLower(strings.TrimSpace(c.Hash))
	if c.Hash == "" {
		c.Hash = Default().Hash
	}
	for _, h := range SupportedHashes {
		if c.Hash == h {
			return nil
		}
	}
	return fmt.Errorf("unsupported hash %q (supported: %s)", c.Hash, strings.Join(SupportedHashes, ", "))
}
