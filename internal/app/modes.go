package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/server"
	"github.com/tealbay/nftmarketd/internal/server/handler"
	"github.com/tealbay/nftmarketd/internal/server/ws"
	"github.com/tealbay/nftmarketd/internal/service"
	"github.com/tealbay/nftmarketd/internal/trade"
)

// buildMachine constructs the trade machine from the contract section of the
// configuration. It requires a wired wallet.
func (a *App) buildMachine(deps *Dependencies) (*trade.Machine, error) {
	if deps.Wallet == nil {
		return nil, fmt.Errorf("build machine: no operator wallet configured")
	}

	refTime, err := time.Parse(time.RFC3339, a.cfg.Contract.PolicyReferenceTime)
	if err != nil {
		return nil, fmt.Errorf("build machine: policy reference time: %w", err)
	}

	return trade.New(trade.Config{
		Network:              domain.Network(a.cfg.Network),
		TradeScriptHash:      a.cfg.Contract.TradeScriptHash,
		MintPolicyID:         a.cfg.Contract.MintPolicyID,
		PolicyReferenceTime:  refTime,
		RoyaltyTokenUnit:     a.cfg.Contract.RoyaltyTokenUnit,
		RoyaltyAdminKeyHash:  a.cfg.Contract.RoyaltyAdminKeyHash,
		ProtocolFundAddress:  a.cfg.Contract.ProtocolFundAddress,
		ProtocolFundLovelace: a.cfg.Contract.ProtocolFundLovelace,
		FundProtocol:         a.cfg.Contract.FundProtocol,
	}, deps.Ledger, deps.Wallet, deps.Scripts, a.logger)
}

// ServeMode runs the marketplace API: the trade and market services, the
// WebSocket hub fed from the event bus, and the HTTP server.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	machine, err := a.buildMachine(deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	tradeSvc := service.NewTradeService(
		machine, deps.Builder, deps.Wallet,
		deps.ActivityStore, deps.AuditStore,
		deps.MarketCache, deps.RoyaltyCache,
		deps.LockManager, deps.EventBus,
		deps.Notifier, a.logger,
	)
	marketSvc := service.NewMarketService(
		machine, deps.MarketCache, deps.RoyaltyCache, deps.ActivityStore, a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.EventBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Network:   a.cfg.Network,
		Channels:  []string{service.EventChannel},
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimiter: deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, a.cfg.Network, machine.FundProtocol()),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		Trades:  handler.NewTradeHandler(tradeSvc, a.logger),
		Royalty: handler.NewRoyaltyHandler(tradeSvc, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// ArchiveMode runs one archival cycle: activity rows older than the retention
// window are uploaded to object storage as JSONL and, when pruning is
// enabled, deleted from the database afterwards.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	retention := a.cfg.Archive.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retention)

	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", retention),
		slog.Time("cutoff", cutoff),
	)

	path, err := deps.Archiver.ArchiveActivities(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	if path == "" {
		a.logger.InfoContext(ctx, "archive mode: no activity rows to archive")
		return nil
	}
	a.logger.InfoContext(ctx, "archive mode: uploaded activity archive",
		slog.String("path", path),
	)

	if a.cfg.Archive.PruneAfter {
		deleted, err := deps.ActivityPruner.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive mode: prune: %w", err)
		}
		a.logger.InfoContext(ctx, "archive mode: pruned archived rows",
			slog.Int64("deleted", deleted),
		)
	}

	return nil
}
