// Package handlers implements the bot's HTTP status surface
// (SPEC_FULL.md §13): health, read-only order/stats/params/balance/rate
// views, and the single command endpoint the operator dashboard drives.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dome/adamant-tradebot/internal/cache"
	"github.com/dome/adamant-tradebot/internal/command"
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/tradeparams"
)

// allPurposes lists every purpose tag StatsByPurpose aggregates over
// for the /stats endpoint.
var allPurposes = []models.Purpose{
	models.PurposeMarketMaking,
	models.PurposeOrderBook,
	models.PurposeLiquidity,
	models.PurposePriceWatcher,
	models.PurposePriceMaker,
	models.PurposeCloser,
	models.PurposeQuoteHold,
	models.PurposeLadder,
	models.PurposeManual,
}

// Handler holds every read/command dependency the routes need.
type Handler struct {
	Ledger     *ledger.Ledger
	Params     *tradeparams.Store
	Balances   *cache.BalanceCache
	Adapter    exchange.Adapter
	Dispatcher *command.Dispatcher
	Pair       string
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetOrders returns every open ledger row for the traded pair.
//
// GET /api/v1/orders
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Ledger.FindOpen(r.Context(), "", h.Pair)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// GetStats returns per-purpose placed/filled/cancelled counts and
// traded volume for the requested window.
//
// GET /api/v1/orders/stats?window=hour|day|month|all
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	window := models.WindowDay
	switch r.URL.Query().Get("window") {
	case "hour":
		window = models.WindowHour
	case "month":
		window = models.WindowMonth
	case "all":
		window = models.WindowAll
	}

	stats, err := h.Ledger.StatsByPurpose(r.Context(), h.Pair, allPurposes, window)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetParams returns the current trade parameters snapshot.
//
// GET /api/v1/params
func (h *Handler) GetParams(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Params.Snapshot())
}

// GetBalances returns every cached balance entry.
//
// GET /api/v1/balances
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Balances.All())
}

// GetRates returns the live rate info for the traded pair.
//
// GET /api/v1/rates
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Adapter.GetRates(r.Context(), h.Pair)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rates)
}

// commandRequest is the POST /api/v1/commands body: a single
// whitespace-delimited command line, verb first, per spec.md §6.
type commandRequest struct {
	Command string `json:"command"`
}

// PostCommand parses and dispatches one operator command.
//
// POST /api/v1/commands
// Body: {"command": "buy amount=1 price=100"}
func (h *Handler) PostCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cmd, ok := parseCommand(req.Command, h.Pair)
	if !ok {
		respondError(w, http.StatusBadRequest, "empty command")
		return
	}

	res := h.Dispatcher.Dispatch(r.Context(), cmd)
	respondJSON(w, http.StatusOK, res)
}

// parseCommand splits a raw command line into verb + args, per
// spec.md §6's "whitespace-delimited, first token is the verb."
func parseCommand(raw, pair string) (command.Command, bool) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return command.Command{}, false
	}
	return command.Command{Verb: fields[0], Args: fields[1:], Pair: pair, Raw: raw}, true
}
