package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tealbay/nftmarketd/internal/crypto"
	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/fees"
)

// RoyaltyAdminService defines the admin transitions the royalty handler
// requires from the service layer.
type RoyaltyAdminService interface {
	MintRoyalty(ctx context.Context, info domain.RoyaltyInfo) (string, error)
	UpdateRoyalty(ctx context.Context, info domain.RoyaltyInfo) (string, error)
}

// RoyaltyHandler serves the royalty administration endpoints.
type RoyaltyHandler struct {
	trades RoyaltyAdminService
	logger *slog.Logger
}

// NewRoyaltyHandler creates a RoyaltyHandler with the given service and logger.
func NewRoyaltyHandler(trades RoyaltyAdminService, logger *slog.Logger) *RoyaltyHandler {
	return &RoyaltyHandler{
		trades: trades,
		logger: logger,
	}
}

type royaltyBody struct {
	Recipients []struct {
		Address  string `json:"address"`
		FeeBps   int64  `json:"fee_bps"`
		FixedFee int64  `json:"fixed_fee"`
	} `json:"recipients"`
	MinAda int64 `json:"min_ada"`
}

// MintRoyalty publishes the one-shot royalty schedule.
// POST /api/royalty
func (h *RoyaltyHandler) MintRoyalty(w http.ResponseWriter, r *http.Request) {
	info, ok := h.parseSchedule(w, r)
	if !ok {
		return
	}

	txID, err := h.trades.MintRoyalty(r.Context(), info)
	if err != nil {
		h.adminError(w, r, "mint royalty", err)
		return
	}
	writeJSON(w, http.StatusCreated, txResponse{TxID: txID})
}

// UpdateRoyalty replaces the published royalty schedule.
// PUT /api/royalty
func (h *RoyaltyHandler) UpdateRoyalty(w http.ResponseWriter, r *http.Request) {
	info, ok := h.parseSchedule(w, r)
	if !ok {
		return
	}

	txID, err := h.trades.UpdateRoyalty(r.Context(), info)
	if err != nil {
		h.adminError(w, r, "update royalty", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxID: txID})
}

// parseSchedule decodes a royalty schedule body, converting basis-point
// rates to the on-chain divisor encoding. On failure it writes a 400
// response and returns ok=false.
func (h *RoyaltyHandler) parseSchedule(w http.ResponseWriter, r *http.Request) (domain.RoyaltyInfo, bool) {
	var body royaltyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return domain.RoyaltyInfo{}, false
	}
	if len(body.Recipients) == 0 {
		writeError(w, http.StatusBadRequest, "at least one recipient is required")
		return domain.RoyaltyInfo{}, false
	}

	info := domain.RoyaltyInfo{MinAda: body.MinAda}
	for _, rec := range body.Recipients {
		addr, _, err := crypto.DecodeAddress(rec.Address)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid recipient address "+rec.Address)
			return domain.RoyaltyInfo{}, false
		}
		rate, err := fees.EncodeRate(rec.FeeBps)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return domain.RoyaltyInfo{}, false
		}
		info.Recipients = append(info.Recipients, domain.RoyaltyRecipient{
			Address:  addr,
			Fee:      rate,
			FixedFee: rec.FixedFee,
		})
	}

	return info, true
}

func (h *RoyaltyHandler) adminError(w http.ResponseWriter, r *http.Request, op string, err error) {
	writeTransitionError(w, r, h.logger, op, err)
}
