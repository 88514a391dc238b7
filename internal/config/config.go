// Package config loads service configuration from an optional YAML file
// with environment variable overrides (ZKPLEDGE_* prefix).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"zkpledge/pkg/proof"
)

type Config struct {
	// Backend selects the proving variant: "local" or "remote"
	Backend string `yaml:"backend" envconfig:"BACKEND"`
	// ArtifactDir holds the circuit artifacts for the local backend,
	// produced by `zkpledge setup`
	ArtifactDir string `yaml:"artifactDir" envconfig:"ARTIFACT_DIR"`
	// DataDir holds the commitment database; empty means in-memory
	DataDir string `yaml:"dataDir" envconfig:"DATA_DIR"`
	Remote  Remote `yaml:"remote"`
}

// Remote configures the remote proving service client. Timeout is a
// duration string ("30s", "2m") so it can come from YAML or environment.
type Remote struct {
	URL      string `yaml:"url"      envconfig:"REMOTE_URL"`
	Network  string `yaml:"network"  envconfig:"REMOTE_NETWORK"`
	Timeout  string `yaml:"timeout"  envconfig:"REMOTE_TIMEOUT"`
	RetryMax int    `yaml:"retryMax" envconfig:"REMOTE_RETRY_MAX"`
}

// TimeoutDuration parses the remote timeout; Load has already validated it.
func (r Remote) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func defaultConfig() *Config {
	return &Config{
		Backend:     string(proof.KindLocal),
		ArtifactDir: "artifacts",
		Remote: Remote{
			Network:  "mainnet",
			Timeout:  "30s",
			RetryMax: 3,
		},
	}
}

// Load reads the config file (if the path is non-empty and exists), applies
// ZKPLEDGE_* environment overrides, and validates the result.
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("zkpledge", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !proof.Kind(c.Backend).Valid() {
		return fmt.Errorf("unknown proof backend %q", c.Backend)
	}
	if proof.Kind(c.Backend) == proof.KindLocal && c.ArtifactDir == "" {
		return errors.New("local backend requires an artifact directory")
	}
	if proof.Kind(c.Backend) == proof.KindRemote {
		if c.Remote.URL == "" {
			return errors.New("remote backend requires a service URL")
		}
		if _, err := time.ParseDuration(c.Remote.Timeout); err != nil {
			return fmt.Errorf("invalid remote timeout: %w", err)
		}
	}
	return nil
}
