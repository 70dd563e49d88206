package handler

import (
	"net/http"
)

// StatusHandler serves the backend status (mode, network) for dashboards.
type StatusHandler struct {
	Mode         string
	Network      string
	FundProtocol bool
}

// NewStatusHandler creates a StatusHandler with the given runtime metadata.
func NewStatusHandler(mode, network string, fundProtocol bool) *StatusHandler {
	return &StatusHandler{Mode: mode, Network: network, FundProtocol: fundProtocol}
}

// GetStatus responds with the current backend mode and network.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":          h.Mode,
		"network":       h.Network,
		"fund_protocol": h.FundProtocol,
	})
}
