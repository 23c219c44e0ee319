package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cipherlink/internal/auth"
	"cipherlink/internal/config"
	"cipherlink/internal/domain"
	"cipherlink/internal/ledger"
	"cipherlink/internal/metrics"
	"cipherlink/internal/ratelimit"
	"cipherlink/internal/realtime"
	"cipherlink/internal/server"
	"cipherlink/internal/services/audit"
	"cipherlink/internal/services/directory"
	"cipherlink/internal/services/kdc"
	"cipherlink/internal/services/keymint"
	"cipherlink/internal/services/lifecycle"
	messagesvc "cipherlink/internal/services/message"
	"cipherlink/internal/services/pfs"
	"cipherlink/internal/store"
	"cipherlink/internal/util/keylock"
)

// shutdownGrace bounds how long in-flight requests may run after a stop.
const shutdownGrace = 10 * time.Second

// Daemon is a fully wired KDC server.
type Daemon struct {
	Config    config.Config
	Log       *logrus.Logger
	Store     domain.Store
	Vault     *store.Vault
	Ledger    *ledger.Chain
	KDC       *kdc.Service
	Lifecycle *lifecycle.Manager
	PFS       *pfs.Service
	Hub       *realtime.Hub
	Server    *server.Server
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Metrics
}

// NewDaemon opens storage and builds every service from cfg. Close
// releases what it opened.
//
// Steps:
//  1. Validate cfg, open the store and derive the vault key.
//  2. Build the ledger and the audit recorder on top of it.
//  3. Wire directory, KDC, lifecycle, PFS and the message relay, all
//     publishing through the realtime hub.
//  4. Put the REST surface in front.
func NewDaemon(cfg config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger()
	m := metrics.New()

	st, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path, log)
	if err != nil {
		return nil, err
	}
	vault, err := store.NewVault(store.VaultConfig{Passphrase: cfg.Vault.Passphrase, Salt: cfg.Vault.Salt})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	tokens, err := auth.NewTokens(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL, nil)
	if err != nil {
		vault.Close()
		_ = st.Close()
		return nil, err
	}

	chain := ledger.New(st, ledger.Config{Difficulty: cfg.Ledger.Difficulty, Logger: log, Metrics: m})
	recorder := audit.New(st, chain, audit.Config{
		DefaultLimit: cfg.Events.DefaultLimit,
		MaxLimit:     cfg.Events.MaxLimit,
		Logger:       log,
	})
	hub := realtime.NewHub(realtime.Config{Logger: log, Metrics: m})
	limiter := ratelimit.New(cfg.KDC.RateLimit.Requests, cfg.KDC.RateLimit.Window)
	locks := keylock.New()
	minter := keymint.New(vault)
	dir := directory.New(st, st, nil, log)

	kdcSvc := kdc.New(kdc.Deps{
		Users:     st,
		Sessions:  st,
		Directory: dir,
		Minter:    minter,
		Audit:     recorder,
		Publisher: hub,
		Locks:     locks,
		Broadcast: vault,
	}, kdc.Config{SessionTTL: cfg.KDC.SessionTTL, Limiter: limiter, Logger: log, Metrics: m})
	lc := lifecycle.New(lifecycle.Deps{
		Users:     st,
		Sessions:  st,
		Minter:    minter,
		Audit:     recorder,
		Publisher: hub,
		Locks:     locks,
	}, lifecycle.Config{
		SessionTTL: cfg.KDC.SessionTTL,
		Retention:  cfg.Lifecycle.RevokedRetention,
		Logger:     log,
		Metrics:    m,
	})
	kdcSvc.SetExpirer(lc)
	pfsSvc := pfs.New(st, dir, recorder, hub, pfs.Config{
		PendingTTL:     cfg.PFS.PendingTTL,
		EstablishedTTL: cfg.PFS.EstablishedTTL,
		Limiter:        limiter,
		Logger:         log,
		Metrics:        m,
	})
	relay := messagesvc.NewRelay(messagesvc.RelayDeps{
		Users:     st,
		Links:     st,
		Sessions:  st,
		Messages:  st,
		Ledger:    chain,
		Publisher: hub,
	}, messagesvc.RelayConfig{Logger: log, Metrics: m})

	srv, err := server.New(server.Services{
		Directory: dir,
		KDC:       kdcSvc,
		PFS:       pfsSvc,
		Lifecycle: lc,
		Ledger:    chain,
		Relay:     relay,
		Hub:       hub,
	}, server.Config{Tokens: tokens, Logger: log, Metrics: m})
	if err != nil {
		vault.Close()
		_ = st.Close()
		return nil, err
	}

	return &Daemon{
		Config:    cfg,
		Log:       log,
		Store:     st,
		Vault:     vault,
		Ledger:    chain,
		KDC:       kdcSvc,
		Lifecycle: lc,
		PFS:       pfsSvc,
		Hub:       hub,
		Server:    srv,
		Limiter:   limiter,
		Metrics:   m,
	}, nil
}

// Run validates the ledger, then serves and sweeps until ctx is done.
// An already tampered chain is reported but does not stop the server.
func (d *Daemon) Run(ctx context.Context) error {
	report, err := d.Ledger.Validate(ctx)
	if err != nil {
		return fmt.Errorf("validate ledger: %w", err)
	}
	d.Log.WithFields(logrus.Fields{"valid": report.Valid, "length": report.Length}).Info("audit chain checked")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Lifecycle.Run(ctx, d.Config.Lifecycle.SweepInterval)
		return nil
	})
	g.Go(func() error {
		d.PFS.Run(ctx, d.Config.PFS.SweepInterval)
		return nil
	})
	g.Go(func() error {
		d.pruneLimiter(ctx)
		return nil
	})
	g.Go(func() error {
		return d.Server.Serve(ctx, d.Config.Listen, shutdownGrace)
	})
	return g.Wait()
}

// pruneLimiter forgets callers that have been idle for a full window.
func (d *Daemon) pruneLimiter(ctx context.Context) {
	window := d.Config.KDC.RateLimit.Window
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Limiter.Prune(window); n > 0 {
				d.Log.WithField("buckets", n).Debug("rate limiter pruned")
			}
		}
	}
}

// Close releases the store and wipes the vault key.
func (d *Daemon) Close() error {
	d.Hub.Close()
	d.Vault.Close()
	return d.Store.Close()
}
