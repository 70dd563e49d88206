package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tealbay/nftmarketd/internal/crypto"
	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/trade"
)

// TradeTransitionService defines the transitions the trade handler requires
// from the service layer. Each call returns the submitted transaction id.
type TradeTransitionService interface {
	List(ctx context.Context, unit string, requestedLovelace int64, privateBuyer *domain.Address) (string, error)
	ChangeListing(ctx context.Context, ref domain.OutRef, requestedLovelace int64, privateBuyer *domain.Address) (string, error)
	CancelListing(ctx context.Context, ref domain.OutRef) (string, error)
	Buy(ctx context.Context, ref domain.OutRef) (string, error)
	BuyBatch(ctx context.Context, refs []domain.OutRef) (string, error)
	Bid(ctx context.Context, bundle domain.Value, offerLovelace int64) (string, error)
	BidOpen(ctx context.Context, policyID string, types []string, traits []domain.TraitFilter, offerLovelace int64) (string, error)
	ChangeBid(ctx context.Context, ref domain.OutRef, offerLovelace int64) (string, error)
	CancelBid(ctx context.Context, ref domain.OutRef) (string, error)
	Sell(ctx context.Context, ref domain.OutRef, assetUnit string) (string, error)
	SellBatch(ctx context.Context, orders []trade.SellOrder) (string, error)
	CancelListingAndSell(ctx context.Context, listing, bid domain.OutRef, assetUnit string) (string, error)
	CancelBidAndBuy(ctx context.Context, bid, listing domain.OutRef) (string, error)
}

// TradeHandler serves the marketplace transition endpoints.
type TradeHandler struct {
	trades TradeTransitionService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeTransitionService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

type txResponse struct {
	TxID string `json:"tx_id"`
}

type outRefBody struct {
	TxHash string `json:"tx_hash"`
	Index  uint64 `json:"index"`
}

func (b outRefBody) ref() domain.OutRef {
	return domain.OutRef{TxHash: b.TxHash, Index: b.Index}
}

type listingBody struct {
	Unit              string `json:"unit"`
	RequestedLovelace int64  `json:"requested_lovelace"`
	PrivateBuyer      string `json:"private_buyer,omitempty"`
}

// CreateListing lists an asset for sale.
// POST /api/listings
func (h *TradeHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var body listingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Unit == "" || body.RequestedLovelace <= 0 {
		writeError(w, http.StatusBadRequest, "unit and a positive requested_lovelace are required")
		return
	}

	buyer, ok := h.parseBuyer(w, body.PrivateBuyer)
	if !ok {
		return
	}

	txID, err := h.trades.List(r.Context(), body.Unit, body.RequestedLovelace, buyer)
	if err != nil {
		h.transitionError(w, r, "create listing", err)
		return
	}
	writeJSON(w, http.StatusCreated, txResponse{TxID: txID})
}

// UpdateListing changes the price or private buyer of a listing.
// PUT /api/listings/{txhash}/{index}
func (h *TradeHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}

	var body listingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.RequestedLovelace <= 0 {
		writeError(w, http.StatusBadRequest, "a positive requested_lovelace is required")
		return
	}

	buyer, ok := h.parseBuyer(w, body.PrivateBuyer)
	if !ok {
		return
	}

	txID, err := h.trades.ChangeListing(r.Context(), ref, body.RequestedLovelace, buyer)
	if err != nil {
		h.transitionError(w, r, "update listing", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

// CancelListing cancels a listing and refunds the asset.
// DELETE /api/listings/{txhash}/{index}
func (h *TradeHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}

	txID, err := h.trades.CancelListing(r.Context(), ref)
	if err != nil {
		h.transitionError(w, r, "cancel listing", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

// BuyListing settles a listing.
// POST /api/listings/{txhash}/{index}/buy
func (h *TradeHandler) BuyListing(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}

	txID, err := h.trades.Buy(r.Context(), ref)
	if err != nil {
		h.transitionError(w, r, "buy", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

// BuyBatch settles several listings in one transaction.
// POST /api/listings/buy
func (h *TradeHandler) BuyBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Listings []outRefBody `json:"listings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Listings) == 0 {
		writeError(w, http.StatusBadRequest, "at least one listing is required")
		return
	}

	refs := make([]domain.OutRef, len(body.Listings))
	for i, b := range body.Listings {
		refs[i] = b.ref()
	}

	txID, err := h.trades.BuyBatch(r.Context(), refs)
	if err != nil {
		h.transitionError(w, r, "buy batch", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

type bidBody struct {
	// Bundle holds the requested assets of a specific bid, keyed by unit.
	Bundle map[string]int64 `json:"bundle,omitempty"`

	// Open-bid constraints, mutually exclusive with Bundle.
	PolicyID string               `json:"policy_id,omitempty"`
	Types    []string             `json:"types,omitempty"`
	Traits   []domain.TraitFilter `json:"traits,omitempty"`

	OfferLovelace int64 `json:"offer_lovelace"`
}

// CreateBid places a specific or open bid.
// POST /api/bids
func (h *TradeHandler) CreateBid(w http.ResponseWriter, r *http.Request) {
	var body bidBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.OfferLovelace <= 0 {
		writeError(w, http.StatusBadRequest, "a positive offer_lovelace is required")
		return
	}
	if len(body.Bundle) == 0 && body.PolicyID == "" {
		writeError(w, http.StatusBadRequest, "either bundle or policy_id is required")
		return
	}

	var (
		txID string
		err  error
	)
	if len(body.Bundle) > 0 {
		bundle := domain.Value{}
		for unit, qty := range body.Bundle {
			bundle = bundle.Add(unit, qty)
		}
		txID, err = h.trades.Bid(r.Context(), bundle, body.OfferLovelace)
	} else {
		txID, err = h.trades.BidOpen(r.Context(), body.PolicyID, body.Types, body.Traits, body.OfferLovelace)
	}
	if err != nil {
		h.transitionError(w, r, "create bid", err)
		return
	}
	writeJSON(w, http.StatusCreated, txResponse{TxID: txID})
}

// UpdateBid changes the locked lovelace of a bid.
// PUT /api/bids/{txhash}/{index}
func (h *TradeHandler) UpdateBid(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}

	var body bidBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.OfferLovelace <= 0 {
		writeError(w, http.StatusBadRequest, "a positive offer_lovelace is required")
		return
	}

	txID, err := h.trades.ChangeBid(r.Context(), ref, body.OfferLovelace)
	if err != nil {
		h.transitionError(w, r, "update bid", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

// CancelBid cancels a bid and refunds the locked funds.
// DELETE /api/bids/{txhash}/{index}
func (h *TradeHandler) CancelBid(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}

	txID, err := h.trades.CancelBid(r.Context(), ref)
	if err != nil {
		h.transitionError(w, r, "cancel bid", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

type sellBody struct {
	AssetUnit string `json:"asset_unit"`
}

// SellToBid settles a bid with the caller's asset.
// POST /api/bids/{txhash}/{index}/sell
func (h *TradeHandler) SellToBid(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}

	var body sellBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.AssetUnit == "" {
		writeError(w, http.StatusBadRequest, "asset_unit is required")
		return
	}

	txID, err := h.trades.Sell(r.Context(), ref, body.AssetUnit)
	if err != nil {
		h.transitionError(w, r, "sell", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

// SellBatch settles several bids in one transaction.
// POST /api/bids/sell
func (h *TradeHandler) SellBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Orders []struct {
			Bid       outRefBody `json:"bid"`
			AssetUnit string     `json:"asset_unit"`
		} `json:"orders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Orders) == 0 {
		writeError(w, http.StatusBadRequest, "at least one order is required")
		return
	}

	orders := make([]trade.SellOrder, len(body.Orders))
	for i, o := range body.Orders {
		if o.AssetUnit == "" {
			writeError(w, http.StatusBadRequest, "asset_unit is required for every order")
			return
		}
		orders[i] = trade.SellOrder{Bid: o.Bid.ref(), AssetUnit: o.AssetUnit}
	}

	txID, err := h.trades.SellBatch(r.Context(), orders)
	if err != nil {
		h.transitionError(w, r, "sell batch", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

// SwapListingToBid atomically moves an asset from the caller's own listing
// into a matching bid.
// POST /api/trades/listing-to-bid
func (h *TradeHandler) SwapListingToBid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Listing   outRefBody `json:"listing"`
		Bid       outRefBody `json:"bid"`
		AssetUnit string     `json:"asset_unit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.AssetUnit == "" {
		writeError(w, http.StatusBadRequest, "asset_unit is required")
		return
	}

	txID, err := h.trades.CancelListingAndSell(r.Context(), body.Listing.ref(), body.Bid.ref(), body.AssetUnit)
	if err != nil {
		h.transitionError(w, r, "listing to bid", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

// SwapBidToListing atomically funds a purchase with the caller's own
// cancelled bid.
// POST /api/trades/bid-to-listing
func (h *TradeHandler) SwapBidToListing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Bid     outRefBody `json:"bid"`
		Listing outRefBody `json:"listing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	txID, err := h.trades.CancelBidAndBuy(r.Context(), body.Bid.ref(), body.Listing.ref())
	if err != nil {
		h.transitionError(w, r, "bid to listing", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

// parseBuyer decodes an optional bech32 private-buyer address. On failure it
// writes a 400 response and returns ok=false.
func (h *TradeHandler) parseBuyer(w http.ResponseWriter, bech string) (*domain.Address, bool) {
	if bech == "" {
		return nil, true
	}
	addr, _, err := crypto.DecodeAddress(bech)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid private_buyer address")
		return nil, false
	}
	return &addr, true
}

// transitionError maps domain errors from a failed transition to HTTP
// status codes.
func (h *TradeHandler) transitionError(w http.ResponseWriter, r *http.Request, op string, err error) {
	writeTransitionError(w, r, h.logger, op, err)
}

func writeTransitionError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "not authorized for this position")
	case errors.Is(err, domain.ErrNoMatchingUtxo), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "position not found")
	case errors.Is(err, domain.ErrReferenceNotFound):
		writeError(w, http.StatusNotFound, "reference token not found")
	case errors.Is(err, domain.ErrWrongVariant), errors.Is(err, domain.ErrDecode):
		writeError(w, http.StatusBadRequest, "position has the wrong shape for this operation")
	case errors.Is(err, domain.ErrConstraintUnsatisfied):
		writeError(w, http.StatusConflict, "asset does not satisfy the bid constraints")
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "locked funds cannot cover the payout schedule")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "position is being settled by another request")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrScriptsNotDeployed):
		writeError(w, http.StatusServiceUnavailable, "marketplace scripts are not deployed")
	case errors.Is(err, domain.ErrSubmission):
		writeError(w, http.StatusBadGateway, "transaction submission failed")
	default:
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
