// Package config loads txrelay settings.
//
// Settings come from three layers, later ones winning: built-in defaults,
// an optional YAML file, and TXRELAY_* environment variables. The merged
// result is checked against an embedded CUE schema before use.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "txrelay.yaml"

// PathEnv names the environment variable that overrides DefaultPath.
const PathEnv = "TXRELAY_CONFIG"

// Config is the complete node configuration.
type Config struct {
	Storage  Storage  `yaml:"storage" json:"storage"`
	Pipeline Pipeline `yaml:"pipeline" json:"pipeline"`
	Peer     Peer     `yaml:"peer" json:"peer"`
	Ingress  Ingress  `yaml:"ingress" json:"ingress"`
}

// Storage configures the transaction store.
type Storage struct {
	DBPath string `yaml:"db_path" json:"db_path"`
}

// Pipeline configures the dispatch loop.
type Pipeline struct {
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	RetryBudget  int           `yaml:"retry_budget" json:"retry_budget"`
	Workers      int           `yaml:"workers" json:"workers"`
	ClaimLease   time.Duration `yaml:"claim_lease" json:"claim_lease"`
	AttemptTTL   time.Duration `yaml:"attempt_ttl" json:"attempt_ttl"`
}

// Peer configures the gossip peer manager.
type Peer struct {
	Listen         []string      `yaml:"listen" json:"listen"`
	Bootstrap      []string      `yaml:"bootstrap" json:"bootstrap"`
	Topic          string        `yaml:"topic" json:"topic"`
	MinPeers       int           `yaml:"min_peers" json:"min_peers"`
	PublishTimeout time.Duration `yaml:"publish_timeout" json:"publish_timeout"`
	MaxMessageSize int           `yaml:"max_message_size" json:"max_message_size"`
}

// Ingress configures the HTTP submission server.
type Ingress struct {
	Listen       string  `yaml:"listen" json:"listen"`
	RateLimit    float64 `yaml:"rate_limit" json:"rate_limit"`
	Burst        int     `yaml:"burst" json:"burst"`
	MaxBatch     int     `yaml:"max_batch" json:"max_batch"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: Storage{
			DBPath: "txrelay.db",
		},
		Pipeline: Pipeline{
			PollInterval: time.Second,
			RetryBudget:  5,
			Workers:      1,
			ClaimLease:   30 * time.Second,
			AttemptTTL:   time.Hour,
		},
		Peer: Peer{
			Listen:         []string{"/ip4/0.0.0.0/tcp/4001"},
			Bootstrap:      []string{},
			Topic:          "txrelay/tx/v1",
			MinPeers:       1,
			PublishTimeout: 10 * time.Second,
			MaxMessageSize: 1 << 20,
		},
		Ingress: Ingress{
			Listen:       "127.0.0.1:8480",
			RateLimit:    100,
			Burst:        200,
			MaxBatch:     1000,
			MaxBodyBytes: 8 << 20,
		},
	}
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	required bool
	lookup   func(string) (string, bool)
}

// Required makes a missing config file an error.
func Required() LoadOption {
	return func(o *loadOptions) {
		o.required = true
	}
}

// WithLookup replaces os.LookupEnv for environment overrides.
func WithLookup(lookup func(string) (string, bool)) LoadOption {
	return func(o *loadOptions) {
		o.lookup = lookup
	}
}

// Load builds the effective configuration from defaults, the YAML file at
// path (skipped when absent unless Required) and the environment.
func Load(path string, opts ...LoadOption) (Config, error) {
	o := loadOptions{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			err = decode(f, &cfg)
			f.Close()
			if err != nil {
				return Config{}, fmt.Errorf("config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !o.required:
		default:
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	if err := applyEnv(&cfg, o.lookup); err != nil {
		return Config{}, err
	}
	cfg.normalize()

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
// The environment is not consulted.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// normalize replaces nil lists so the schema sees empty lists.
func (c *Config) normalize() {
	if c.Peer.Listen == nil {
		c.Peer.Listen = []string{}
	}
	if c.Peer.Bootstrap == nil {
		c.Peer.Bootstrap = []string{}
	}
}
