package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/service"
)

// MarketQueryService defines the methods the market handler requires from
// the service layer.
type MarketQueryService interface {
	Listings(ctx context.Context, policyID string) ([]domain.ListingView, error)
	Bids(ctx context.Context, policyID string) ([]domain.BidView, error)
	Snapshot(ctx context.Context, policyID string) (service.MarketSnapshot, error)
	Position(ctx context.Context, ref domain.OutRef) (*domain.TradeDatum, error)
	Royalty(ctx context.Context) (domain.RoyaltyInfo, error)
	Activity(ctx context.Context, policyID string, opts domain.ListOpts) ([]domain.Activity, error)
}

// MarketHandler serves the marketplace query endpoints.
type MarketHandler struct {
	markets MarketQueryService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketQueryService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// GetSnapshot returns the open listings and bids of one minting policy.
// GET /api/markets/{policy}
func (h *MarketHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	policyID := pathParam(r, "policy")
	if policyID == "" {
		writeError(w, http.StatusBadRequest, "missing policy id")
		return
	}

	snap, err := h.markets.Snapshot(r.Context(), policyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: market snapshot failed",
			slog.String("policy_id", policyID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load market")
		return
	}

	if snap.Listings == nil {
		snap.Listings = []domain.ListingView{}
	}
	if snap.Bids == nil {
		snap.Bids = []domain.BidView{}
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListListings returns the open listings of one minting policy.
// GET /api/markets/{policy}/listings
func (h *MarketHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	policyID := pathParam(r, "policy")
	if policyID == "" {
		writeError(w, http.StatusBadRequest, "missing policy id")
		return
	}

	listings, err := h.markets.Listings(r.Context(), policyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list listings failed",
			slog.String("policy_id", policyID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	if listings == nil {
		listings = []domain.ListingView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

// ListBids returns the open bids of one minting policy.
// GET /api/markets/{policy}/bids
func (h *MarketHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	policyID := pathParam(r, "policy")
	if policyID == "" {
		writeError(w, http.StatusBadRequest, "missing policy id")
		return
	}

	bids, err := h.markets.Bids(r.Context(), policyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bids failed",
			slog.String("policy_id", policyID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bids")
		return
	}

	if bids == nil {
		bids = []domain.BidView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": bids})
}

// GetPosition returns the decoded datum of one script UTXO.
// GET /api/positions/{txhash}/{index}
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}

	datum, err := h.markets.Position(r.Context(), ref)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("ref", ref.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load position")
		return
	}
	if datum == nil {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}

	writeJSON(w, http.StatusOK, datum)
}

// GetRoyalty returns the published royalty schedule.
// GET /api/royalty
func (h *MarketHandler) GetRoyalty(w http.ResponseWriter, r *http.Request) {
	info, err := h.markets.Royalty(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNoMatchingUtxo) {
			writeError(w, http.StatusNotFound, "royalty schedule not published")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get royalty failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load royalty schedule")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// ListActivity returns recent settlement history.
// GET /api/activity?policy_id=...&limit=50&offset=0
func (h *MarketHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	policyID := r.URL.Query().Get("policy_id")
	opts := parseListOpts(r)

	rows, err := h.markets.Activity(r.Context(), policyID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list activity failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}

	if rows == nil {
		rows = []domain.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": rows})
}

// refFromPath parses the {txhash}/{index} path segments into an out-ref.
// On failure it writes a 400 response and returns ok=false.
func refFromPath(w http.ResponseWriter, r *http.Request) (domain.OutRef, bool) {
	txHash := pathParam(r, "txhash")
	if txHash == "" {
		writeError(w, http.StatusBadRequest, "missing tx hash")
		return domain.OutRef{}, false
	}
	idx, err := strconv.ParseUint(pathParam(r, "index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid output index")
		return domain.OutRef{}, false
	}
	return domain.OutRef{TxHash: txHash, Index: idx}, true
}
