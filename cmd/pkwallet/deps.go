package main

import (
	"fmt"

	"github.com/brojonat/pkwallet/service/config"
	"github.com/brojonat/pkwallet/service/keystore"
	"github.com/brojonat/pkwallet/service/metrics"
	natspkg "github.com/brojonat/pkwallet/service/nats"
	"github.com/brojonat/pkwallet/service/portal"
	"github.com/brojonat/pkwallet/service/wallet"
	"github.com/urfave/cli/v2"
)

// deps bundles the wired session stack for a CLI command.
type deps struct {
	cfg     *config.Config
	keys    *keystore.Store
	store   *portal.Store
	session *wallet.Session
	events  natspkg.Publisher // nil when NATS is not configured
	metrics *metrics.Metrics  // nil unless a command serves /metrics
}

// close releases everything buildSession opened.
func (d *deps) close() {
	if d.events != nil {
		d.events.Close()
	}
	if d.keys != nil {
		d.keys.Close()
	}
}

// resolveConfig loads the environment-backed configuration, applies any CLI
// flag overrides, and validates the result.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := c.String("rpc-url"); v != "" {
		cfg.SolanaRPCURL = v
	}
	if v := c.String("portal-url"); v != "" {
		cfg.PortalURL = v
	}
	if v := c.String("paymaster-url"); v != "" {
		cfg.PaymasterURL = v
	}
	if v := c.String("nats-url"); v != "" {
		cfg.NATSURL = v
	}
	if v := c.String("keystore"); v != "" {
		cfg.KeystorePath = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildSession wires the keystore, portal store, event publisher, and
// session from the resolved configuration.
func buildSession(c *cli.Context, m *metrics.Metrics) (*deps, error) {
	cfg, err := resolveConfig(c)
	if err != nil {
		return nil, err
	}
	logger := newLogger(c)

	keys, err := keystore.Open(cfg.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	var events natspkg.Publisher
	if cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			// Event publishing is best-effort for the CLI; the wallet
			// still works without a broker.
			logger.Warn("failed to connect to NATS, events disabled", "error", err)
		} else {
			events = pub
		}
	}

	store := portal.NewStore(keys, nil, logger)
	storeCfg := wallet.StoreConfig{
		RPCEndpoint:       cfg.SolanaRPCURL,
		PortalEndpoint:    cfg.PortalURL,
		PaymasterEndpoint: cfg.PaymasterURL,
	}
	session := wallet.NewSession(store, keys, storeCfg, events, m, logger)

	return &deps{
		cfg:     cfg,
		keys:    keys,
		store:   store,
		session: session,
		events:  events,
		metrics: m,
	}, nil
}
