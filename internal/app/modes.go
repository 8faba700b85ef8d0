package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/azubet/azubet/internal/bet"
	"github.com/azubet/azubet/internal/crypto"
	"github.com/azubet/azubet/internal/domain"
	"github.com/azubet/azubet/internal/notify"
	"github.com/azubet/azubet/internal/reconcile"
	"github.com/azubet/azubet/internal/server"
	"github.com/azubet/azubet/internal/server/handler"
	"github.com/azubet/azubet/internal/server/ws"
	"github.com/azubet/azubet/internal/service"
)

// services bundles the service layer built from wired dependencies.
type services struct {
	bets       *service.BetService
	settlement *service.SettlementService
	payouts    *service.PayoutService
	cashout    *service.CashoutService
	reconciler *reconcile.Reconciler
}

// ServerMode runs the API server, the WebSocket hub, the odds stream pump,
// and the notification bridge. Background reconciliation and settlement loops
// are not started; they remain reachable through the manual API triggers.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	a.startOddsPump(ctx, g, deps)
	a.startNotifyBridge(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// ReconcileMode runs the ghost-bet reconciliation loop: the normal cleanup
// pass on every tick, followed by the strict recovery pass.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting reconcile mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("reconcile mode: %w", err)
	}

	a.startReconcileLoop(ctx, g, svcs)
	a.startNotifyBridge(ctx, g, deps)

	return g.Wait()
}

// SettleMode runs the settlement sync loop against the data feed.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("settle mode: %w", err)
	}

	a.startSettleLoop(ctx, g, svcs)
	a.startNotifyBridge(ctx, g, deps)

	return g.Wait()
}

// FullMode starts all subsystems: the API server, the reconciliation and
// settlement loops, the odds stream pump, the archive loop, and the
// notification bridge.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	a.startReconcileLoop(ctx, g, svcs)
	a.startSettleLoop(ctx, g, svcs)
	a.startOddsPump(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)
	a.startNotifyBridge(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}

// buildServices assembles the service layer on top of the wired dependencies.
func (a *App) buildServices(deps *Dependencies) (*services, error) {
	wallet := deps.Signer.Address().Hex()

	builder, err := bet.NewBuilder(
		a.cfg.Azuro.Affiliate,
		a.cfg.Betting.SlippagePct,
		a.cfg.Betting.ExpiryWindow.Duration,
	)
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}

	poller := bet.NewPoller(
		deps.Relayer,
		a.cfg.Betting.PollInterval.Duration,
		a.cfg.Betting.PollBudget.Duration,
		a.logger,
	)

	singleDomain := crypto.BetDomain{
		Name:              a.cfg.Azuro.DomainName,
		Version:           a.cfg.Azuro.DomainVersion,
		ChainID:           a.cfg.Chain.ChainID,
		VerifyingContract: a.cfg.Azuro.CoreAddress,
	}
	comboDomain := singleDomain
	comboDomain.VerifyingContract = a.cfg.Azuro.ExpressCoreAddress

	token := common.HexToAddress(a.cfg.Azuro.TokenAddress)
	lp := common.HexToAddress(a.cfg.Azuro.LPAddress)
	ensure := func(ctx context.Context, amount string) error {
		n, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return fmt.Errorf("app: malformed amount %q", amount)
		}
		return deps.TxEngine.EnsureTokenAllowance(ctx, token, lp, n)
	}

	betSvc := service.NewBetService(
		deps.BetStore,
		deps.AuditStore,
		deps.LockManager,
		deps.RateLimiter,
		deps.SignalBus,
		builder,
		poller,
		deps.Relayer,
		deps.Signer,
		ensure,
		service.BetConfig{
			Wallet:       wallet,
			SingleDomain: singleDomain,
			ComboDomain:  comboDomain,
			LockTTL:      a.cfg.Betting.LockTTL.Duration,
			MinBetGap:    a.cfg.Betting.MinBetGap.Duration,
		},
		a.logger,
	)

	settlementSvc := service.NewSettlementService(
		deps.BetStore,
		deps.AuditStore,
		deps.SignalBus,
		deps.Feed,
		wallet,
		a.logger,
	)

	payoutSvc := service.NewPayoutService(
		deps.BetStore,
		deps.AuditStore,
		deps.LockManager,
		deps.SignalBus,
		deps.TxEngine,
		service.PayoutConfig{
			LPAddress:       a.cfg.Azuro.LPAddress,
			AzuroBetAddress: a.cfg.Azuro.AzuroBetAddress,
			TokenAddress:    a.cfg.Azuro.TokenAddress,
			LockTTL:         a.cfg.Betting.LockTTL.Duration,
		},
		a.logger,
	)

	cashoutSvc := service.NewCashoutService(
		deps.BetStore,
		deps.AuditStore,
		deps.LockManager,
		deps.SignalBus,
		deps.Relayer,
		deps.Signer,
		service.CashoutConfig{
			Wallet:       wallet,
			Domain:       singleDomain,
			LockTTL:      a.cfg.Betting.LockTTL.Duration,
			PollInterval: a.cfg.Betting.PollInterval.Duration,
			PollBudget:   a.cfg.Betting.CashoutPollBudget.Duration,
		},
		a.logger,
	)

	reconciler := reconcile.New(
		deps.BetStore,
		deps.AuditStore,
		deps.Feed,
		wallet,
		reconcile.Config{
			StaleAge:           a.cfg.Reconcile.StaleAge.Duration,
			Lookback:           a.cfg.Reconcile.Lookback.Duration,
			AmountTolerancePct: a.cfg.Reconcile.AmountTolerancePct,
		},
		a.logger,
	)

	return &services{
		bets:       betSvc,
		settlement: settlementSvc,
		payouts:    payoutSvc,
		cashout:    cashoutSvc,
		reconciler: reconciler,
	}, nil
}

// startReconcileLoop adds the periodic ghost-bet reconciliation goroutine.
func (a *App) startReconcileLoop(ctx context.Context, g *errgroup.Group, svcs *services) {
	interval := a.cfg.Reconcile.Interval.Duration
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if report, err := svcs.reconciler.Run(ctx); err != nil {
					a.logger.ErrorContext(ctx, "reconcile pass failed",
						slog.String("error", err.Error()),
					)
				} else if report.Scanned > 0 {
					a.logger.InfoContext(ctx, "reconcile pass complete",
						slog.Int("scanned", report.Scanned),
						slog.Int("matched", report.Matched),
						slog.Int("cleaned_up", report.CleanedUp),
					)
				}

				if report, err := svcs.reconciler.Recover(ctx); err != nil {
					a.logger.ErrorContext(ctx, "recovery pass failed",
						slog.String("error", err.Error()),
					)
				} else if report.Recovered > 0 {
					a.logger.InfoContext(ctx, "recovery pass complete",
						slog.Int("recovered", report.Recovered),
					)
				}
			}
		}
	})
}

// startSettleLoop adds the periodic settlement sync goroutine. It reuses the
// reconcile interval; settlement has no urgency beyond it.
func (a *App) startSettleLoop(ctx context.Context, g *errgroup.Group, svcs *services) {
	interval := a.cfg.Reconcile.Interval.Duration
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := svcs.settlement.Sync(ctx); err != nil {
					a.logger.ErrorContext(ctx, "settlement sync failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// startOddsPump connects the odds stream and fans updates into the odds cache
// and the signal bus.
func (a *App) startOddsPump(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.OddsStream == nil {
		return
	}

	deps.OddsStream.OnOdds(func(update domain.OddsUpdate) {
		if err := deps.OddsCache.SetOdds(ctx, update); err != nil {
			a.logger.Warn("odds cache update failed",
				slog.String("condition_id", update.ConditionID),
				slog.String("error", err.Error()),
			)
		}
		payload, err := json.Marshal(update)
		if err != nil {
			return
		}
		if err := deps.SignalBus.Publish(ctx, "odds", payload); err != nil {
			a.logger.Warn("odds publish failed", slog.String("error", err.Error()))
		}
	})

	g.Go(func() error {
		if err := deps.OddsStream.Connect(ctx); err != nil {
			a.logger.WarnContext(ctx, "odds stream connect failed; stream disabled",
				slog.String("error", err.Error()),
			)
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	})
}

// startArchiveLoop adds the periodic cold-storage archival goroutine.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				archived, err := deps.Archiver.ArchiveBets(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "archive pass failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if archived > 0 {
					a.logger.InfoContext(ctx, "archive pass complete",
						slog.Int64("archived", archived),
						slog.Time("cutoff", cutoff),
					)
				}
			}
		}
	})
}

// startNotifyBridge adds the signal-bus-to-notifier goroutine.
func (a *App) startNotifyBridge(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	bridge := notify.NewBridge(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		err := bridge.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Bets:      handler.NewBetHandler(svcs.bets, a.logger),
		Cashout:   handler.NewCashoutHandler(svcs.cashout, a.logger),
		Payouts:   handler.NewPayoutHandler(svcs.payouts, a.logger),
		Reconcile: handler.NewReconcileHandler(svcs.reconciler, a.logger),
		Odds:      handler.NewOddsHandler(deps.OddsCache, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIToken:        a.cfg.Server.APIToken,
		Limiter:         deps.RateLimiter,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
