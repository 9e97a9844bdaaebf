// Package server is the composition root wiring descriptor/, store/,
// chain/esplora/, and wallet/ into one running instance, following the
// teacher's server/config.go Config+New+Start/Stop composition pattern
// (there wiring db/keyring/minting/sending/receiving behind tapgarden;
// here wiring the Store/BlockchainBackend/Wallet capabilities behind
// this toolkit's own engine).
package server

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btclog"

	"github.com/lwkgo/lwk/chain/esplora"
	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/internal/config"
	"github.com/lwkgo/lwk/internal/walletlog"
	"github.com/lwkgo/lwk/store"
	"github.com/lwkgo/lwk/wallet"
)

// Server wires one wallet instance's storage, chain backend, and engine
// together, per SPEC_FULL.md's composition-root description.
type Server struct {
	cfg *config.Config

	descriptor *descriptor.Descriptor
	backend    *esplora.ChainBridge
	wallet     *wallet.Wallet

	closeStore func() error
}

// New validates cfg, parses its descriptor, opens the configured store
// (encrypted or plain sqlite), constructs the esplora chain bridge, and
// loads the wallet engine from persisted state if any.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	desc, err := descriptor.Parse(cfg.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("server: parse descriptor: %w", err)
	}

	persister, closeStore, err := openStore(cfg, desc)
	if err != nil {
		return nil, err
	}

	net := cfg.NetworkParams()
	clientCfg := esplora.DefaultConfig()
	clientCfg.BaseURL = cfg.EsploraURL
	clientCfg.RateLimit = cfg.EsploraRPS
	backend := esplora.NewChainBridge(esplora.NewClient(clientCfg), net, cfg.GapLimit)

	w, err := wallet.New(ctx, net.Network, desc, persister)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("server: load wallet: %w", err)
	}

	return &Server{
		cfg:        cfg,
		descriptor: desc,
		backend:    backend,
		wallet:     w,
		closeStore: closeStore,
	}, nil
}

func openStore(cfg *config.Config, desc *descriptor.Descriptor) (wallet.Store, func() error, error) {
	sqliteStore, err := store.NewSqliteStore(store.DefaultConfig(cfg.DBPath))
	if err != nil {
		return nil, nil, fmt.Errorf("server: open store: %w", err)
	}
	if !cfg.EncryptDB {
		return sqliteStore, sqliteStore.Close, nil
	}

	key, err := store.DeriveKey(desc.Text)
	if err != nil {
		sqliteStore.Close()
		return nil, nil, fmt.Errorf("server: derive store key: %w", err)
	}
	encrypted := store.NewEncryptedStore(sqliteStore, key, false, rand.Reader)
	return encrypted, sqliteStore.Close, nil
}

// UseLogger installs a sub-logger of backend into wallet/, the one wired
// package that logs, following the teacher's sub-logger wiring.
func UseLogger(backend *btclog.Backend) {
	wallet.UseLogger(walletlog.NewSubLogger(backend, "WLET"))
}

// Wallet returns the server's wallet engine.
func (s *Server) Wallet() *wallet.Wallet { return s.wallet }

// Descriptor returns the server's parsed descriptor.
func (s *Server) Descriptor() *descriptor.Descriptor { return s.descriptor }

// Scan runs one full scan against the server's chain backend and applies
// any resulting update.
func (s *Server) Scan(ctx context.Context) error {
	return s.wallet.Scan(ctx, s.backend)
}

// Stop closes the server's underlying store.
func (s *Server) Stop() error {
	if s.closeStore == nil {
		return nil
	}
	return s.closeStore()
}
