// Package service orchestrates the trade state machine with persistence,
// caching, and event delivery.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/notify"
	"github.com/tealbay/nftmarketd/internal/trade"
)

// EventChannel is the pub/sub channel market events are published on.
const EventChannel = "market.events"

// EventStream is the durable stream market events are appended to.
const EventStream = "market.activity"

// planLockTTL bounds how long a plan-building lock can be held.
const planLockTTL = 30 * time.Second

// TradeService drives marketplace transitions end to end: it builds a
// transaction plan through the state machine, submits it, and records the
// outcome in the activity store, audit log, cache, and event bus.
type TradeService struct {
	machine    *trade.Machine
	builder    domain.TxBuilder
	wallet     domain.Wallet
	activities domain.ActivityStore
	audit      domain.AuditStore
	cache      domain.MarketCache
	royalties  domain.RoyaltyCache
	locks      domain.LockManager
	bus        domain.EventBus
	notifier   *notify.Notifier
	logger     *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	machine *trade.Machine,
	builder domain.TxBuilder,
	wallet domain.Wallet,
	activities domain.ActivityStore,
	audit domain.AuditStore,
	cache domain.MarketCache,
	royalties domain.RoyaltyCache,
	locks domain.LockManager,
	bus domain.EventBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		machine:    machine,
		builder:    builder,
		wallet:     wallet,
		activities: activities,
		audit:      audit,
		cache:      cache,
		royalties:  royalties,
		locks:      locks,
		bus:        bus,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "trade_service")),
	}
}

// List creates a listing for the asset unit at the requested price.
func (s *TradeService) List(ctx context.Context, unit string, requestedLovelace int64, privateBuyer *domain.Address) (string, error) {
	return s.run(ctx, domain.ActivityListed, unit, requestedLovelace, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.List(ctx, unit, requestedLovelace, privateBuyer)
	})
}

// ChangeListing updates the price or private buyer of an existing listing.
func (s *TradeService) ChangeListing(ctx context.Context, ref domain.OutRef, requestedLovelace int64, privateBuyer *domain.Address) (string, error) {
	return s.runRef(ctx, domain.ActivityListingChange, ref, requestedLovelace, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.ChangeListing(ctx, ref, requestedLovelace, privateBuyer)
	})
}

// CancelListing cancels a listing and refunds the asset to its owner.
func (s *TradeService) CancelListing(ctx context.Context, ref domain.OutRef) (string, error) {
	return s.runRef(ctx, domain.ActivityListingCancel, ref, 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.CancelListing(ctx, ref)
	})
}

// Buy settles a listing, paying the owner and any royalty recipients.
func (s *TradeService) Buy(ctx context.Context, ref domain.OutRef) (string, error) {
	return s.runRef(ctx, domain.ActivityBought, ref, 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.Buy(ctx, ref)
	})
}

// BuyBatch settles several listings in one transaction.
func (s *TradeService) BuyBatch(ctx context.Context, refs []domain.OutRef) (string, error) {
	if len(refs) == 0 {
		return "", fmt.Errorf("trade_service: buy batch: no listings")
	}
	return s.runRef(ctx, domain.ActivityBought, refs[0], 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.BuyBatch(ctx, refs)
	})
}

// Bid places a bid for a specific asset bundle.
func (s *TradeService) Bid(ctx context.Context, bundle domain.Value, offerLovelace int64) (string, error) {
	unit := ""
	for _, u := range bundle.Units() {
		if u != domain.LovelaceUnit {
			unit = u
			break
		}
	}
	return s.run(ctx, domain.ActivityBidPlaced, unit, offerLovelace, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.Bid(ctx, bundle, offerLovelace)
	})
}

// BidOpen places an open bid constrained by policy, types, and traits.
func (s *TradeService) BidOpen(ctx context.Context, policyID string, types []string, traits []domain.TraitFilter, offerLovelace int64) (string, error) {
	return s.run(ctx, domain.ActivityBidPlaced, "", offerLovelace, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.BidOpen(ctx, policyID, types, traits, offerLovelace)
	})
}

// ChangeBid updates the locked lovelace of an existing bid.
func (s *TradeService) ChangeBid(ctx context.Context, ref domain.OutRef, offerLovelace int64) (string, error) {
	return s.runRef(ctx, domain.ActivityBidChanged, ref, offerLovelace, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.ChangeBid(ctx, ref, offerLovelace)
	})
}

// CancelBid cancels a bid and refunds the locked funds to its owner.
func (s *TradeService) CancelBid(ctx context.Context, ref domain.OutRef) (string, error) {
	return s.runRef(ctx, domain.ActivityBidCancelled, ref, 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.CancelBid(ctx, ref)
	})
}

// Sell settles a bid by delivering the asset unit to the bid owner.
func (s *TradeService) Sell(ctx context.Context, ref domain.OutRef, assetUnit string) (string, error) {
	return s.runRef(ctx, domain.ActivitySold, ref, 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.Sell(ctx, ref, assetUnit)
	})
}

// SellBatch settles several bids in one transaction.
func (s *TradeService) SellBatch(ctx context.Context, orders []trade.SellOrder) (string, error) {
	if len(orders) == 0 {
		return "", fmt.Errorf("trade_service: sell batch: no orders")
	}
	return s.runRef(ctx, domain.ActivitySold, orders[0].Bid, 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.SellBatch(ctx, orders)
	})
}

// CancelListingAndSell atomically moves an asset from the caller's own
// listing into a matching bid.
func (s *TradeService) CancelListingAndSell(ctx context.Context, listing, bid domain.OutRef, assetUnit string) (string, error) {
	return s.runRef(ctx, domain.ActivitySold, listing, 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.CancelListingAndSell(ctx, listing, bid, assetUnit)
	})
}

// CancelBidAndBuy atomically funds a purchase with the caller's own
// cancelled bid.
func (s *TradeService) CancelBidAndBuy(ctx context.Context, bid, listing domain.OutRef) (string, error) {
	return s.runRef(ctx, domain.ActivityBought, listing, 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.CancelBidAndBuy(ctx, bid, listing)
	})
}

// MintRoyalty publishes the one-shot royalty schedule for the marketplace.
func (s *TradeService) MintRoyalty(ctx context.Context, info domain.RoyaltyInfo) (string, error) {
	txID, err := s.run(ctx, domain.ActivityRoyaltyMinted, "", 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.MintRoyalty(ctx, info)
	})
	if err == nil {
		s.invalidateRoyalty(ctx)
	}
	return txID, err
}

// UpdateRoyalty replaces the published royalty schedule.
func (s *TradeService) UpdateRoyalty(ctx context.Context, info domain.RoyaltyInfo) (string, error) {
	txID, err := s.run(ctx, domain.ActivityRoyaltyUpdate, "", 0, func(ctx context.Context) (*domain.TxPlan, error) {
		return s.machine.UpdateRoyalty(ctx, info)
	})
	if err == nil {
		s.invalidateRoyalty(ctx)
	}
	return txID, err
}

// runRef serializes plan building on the consumed out-ref, then runs the
// transition. The asset unit recorded in the activity row is recovered from
// the built plan.
func (s *TradeService) runRef(ctx context.Context, kind domain.ActivityKind, ref domain.OutRef, lovelace int64, build func(context.Context) (*domain.TxPlan, error)) (string, error) {
	unlock, err := s.locks.Acquire(ctx, "plan:"+ref.String(), planLockTTL)
	if err != nil {
		return "", fmt.Errorf("trade_service: %s: %w", kind, err)
	}
	defer unlock()

	return s.run(ctx, kind, "", lovelace, build)
}

// run builds a plan, submits it, and records the result. unitHint seeds the
// activity row when the caller already knows the asset unit.
func (s *TradeService) run(ctx context.Context, kind domain.ActivityKind, unitHint string, lovelace int64, build func(context.Context) (*domain.TxPlan, error)) (string, error) {
	plan, err := build(ctx)
	if err != nil {
		s.auditLog(ctx, "trade."+string(kind)+".rejected", map[string]any{
			"error": err.Error(),
		})
		return "", err
	}

	txID, err := s.builder.Submit(ctx, plan)
	if err != nil {
		s.auditLog(ctx, "trade."+string(kind)+".failed", map[string]any{
			"error": err.Error(),
		})
		return "", fmt.Errorf("trade_service: %s: %w", kind, err)
	}

	unit := unitHint
	if unit == "" {
		unit = planAssetUnit(plan, s.machine.MintPolicy().PolicyID())
	}
	if lovelace == 0 {
		lovelace = planLovelace(plan)
	}
	policyID, _ := domain.SplitUnit(unit)

	s.record(ctx, domain.Activity{
		ID:        uuid.New().String(),
		Kind:      kind,
		TxID:      txID,
		PolicyID:  policyID,
		Unit:      unit,
		Lovelace:  lovelace,
		Caller:    s.wallet.Bech32(),
		CreatedAt: time.Now().UTC(),
	})

	return txID, nil
}

// record persists and broadcasts a settled activity. The transaction is
// already submitted at this point, so failures here are logged rather than
// returned.
func (s *TradeService) record(ctx context.Context, a domain.Activity) {
	if err := s.activities.Insert(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "activity insert failed",
			slog.String("activity_id", a.ID),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, "trade."+string(a.Kind), map[string]any{
		"activity_id": a.ID,
		"tx_id":       a.TxID,
		"unit":        a.Unit,
		"lovelace":    a.Lovelace,
	})

	if a.PolicyID != "" {
		if err := s.cache.Invalidate(ctx, a.PolicyID); err != nil {
			s.logger.WarnContext(ctx, "cache invalidate failed",
				slog.String("policy_id", a.PolicyID),
				slog.String("error", err.Error()),
			)
		}
	}

	event := domain.MarketEvent{
		Kind:     a.Kind,
		TxID:     a.TxID,
		Unit:     a.Unit,
		Lovelace: a.Lovelace,
		Caller:   a.Caller,
		At:       a.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WarnContext(ctx, "event marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, EventChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, EventStream, payload); err != nil {
		s.logger.WarnContext(ctx, "event stream append failed", slog.String("error", err.Error()))
	}

	if s.notifier != nil {
		title, message := notify.FormatActivity(a)
		if err := s.notifier.Notify(ctx, string(a.Kind), title, message); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

func (s *TradeService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) invalidateRoyalty(ctx context.Context) {
	unit := s.machine.RoyaltyUnit()
	if unit == "" {
		return
	}
	if err := s.royalties.Invalidate(ctx, unit); err != nil {
		s.logger.WarnContext(ctx, "royalty cache invalidate failed",
			slog.String("unit", unit),
			slog.String("error", err.Error()),
		)
	}
}

// planAssetUnit recovers the traded asset unit from a built plan: the first
// non-lovelace unit in any output that is not a locking token of the
// marketplace minting policy.
func planAssetUnit(plan *domain.TxPlan, mintPolicyID string) string {
	for _, out := range plan.Outputs {
		for _, u := range out.Value.Units() {
			if u == domain.LovelaceUnit {
				continue
			}
			if policy, _ := domain.SplitUnit(u); policy == mintPolicyID {
				continue
			}
			return u
		}
	}
	return ""
}

// planLovelace recovers the settlement amount from a plan as the sum of its
// datum-carrying outputs' lovelace.
func planLovelace(plan *domain.TxPlan) int64 {
	var total int64
	for _, out := range plan.Outputs {
		if len(out.DatumBytes) == 0 {
			continue
		}
		total += out.Value.Lovelace()
	}
	return total
}
