// Package config holds the ambient process configuration a standalone
// front-end (an eventual cmd/ binary) would parse and validate before
// handing off to server.New, following the teacher's per-package
// Config+Validate idiom (minting/config.go, sending/config.go,
// proofconfig/config.go) collapsed into the single process-level config
// this toolkit's composition root actually needs.
package config

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/lwkgo/lwk/elements"
)

// Config is the flag/env-annotated process configuration, parsed with
// jessevdk/go-flags the way the teacher's own binaries do.
type Config struct {
	Network string `long:"network" description:"liquid, testnet-liquid, or localtest-liquid" default:"localtest-liquid"`

	Descriptor string `long:"descriptor" description:"confidential wallet descriptor (ct(...))" required:"true"`

	DBPath    string `long:"db-path" description:"sqlite database path (empty selects an in-memory store)"`
	EncryptDB bool   `long:"encrypt-db" description:"wrap the sqlite store in AES-256-GCM-SIV encryption keyed from the descriptor"`

	EsploraURL string `long:"esplora-url" description:"base URL of the esplora-style chain API" required:"true"`
	EsploraRPS int    `long:"esplora-rps" description:"esplora request rate limit, in requests/second" default:"4"`
	GapLimit   uint32 `long:"gap-limit" description:"consecutive unused addresses scanned before a chain is considered exhausted" default:"20"`
	LogLevel   string `long:"log-level" description:"btclog level name (e.g. info, debug)" default:"info"`
}

// Parse parses args (typically os.Args[1:]) into a Config.
func Parse(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that cfg describes a usable network/descriptor/backend
// combination, following the teacher's per-package Validate() convention.
func (c *Config) Validate() error {
	if c.Descriptor == "" {
		return fmt.Errorf("config: descriptor is required")
	}
	if c.EsploraURL == "" {
		return fmt.Errorf("config: esplora-url is required")
	}
	if _, ok := elements.Networks[elements.Network(c.Network)]; !ok {
		return fmt.Errorf("config: unknown network %q", c.Network)
	}
	if c.EsploraRPS <= 0 {
		return fmt.Errorf("config: esplora-rps must be positive")
	}
	return nil
}

// NetworkParams resolves Network into its elements.NetworkParams.
func (c *Config) NetworkParams() elements.NetworkParams {
	return elements.Networks[elements.Network(c.Network)]
}
