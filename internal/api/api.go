// Package api exposes the bank engine over HTTP: JSON request handling,
// error-to-status mapping, and the WebSocket event feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/bank"
	"github.com/arcabank/bank-engine/internal/market"
	"github.com/arcabank/bank-engine/internal/metrics"
	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/registry"
)

// Handler wires the service layer to HTTP routes.
type Handler struct {
	bank     *bank.Service
	market   *market.Engine
	registry *registry.Registry
	hub      *WSHub
	validate *validator.Validate
}

// NewHandler builds the HTTP handler set.
func NewHandler(b *bank.Service, m *market.Engine, reg *registry.Registry, hub *WSHub) *Handler {
	return &Handler{
		bank:     b,
		market:   m,
		registry: reg,
		hub:      hub,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes mounts every endpoint under the given router.
func (h *Handler) Routes(r chi.Router) {
	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}

	r.Post("/accounts/register", h.registerAccount)
	r.Post("/accounts/link", h.linkMinecraft)
	r.Get("/accounts/{id}/balance", h.getBalance)

	r.Post("/roles/promote", h.promoteBanker)
	r.Post("/roles/resign", h.resignBanker)
	r.Post("/roles/consumer", h.setConsumer)
	r.Post("/roles/restore", h.restoreUser)

	r.Post("/transfer", h.transfer)
	r.Post("/exchange", h.exchange)

	r.Get("/treasury", h.treasuryStatus)
	r.Get("/treasury/history", h.treasuryHistory)
	r.Post("/treasury/deposit", h.deposit)
	r.Post("/treasury/atm-profit", h.atmProfit)
	r.Post("/treasury/mint", h.mint)
	r.Post("/treasury/burn", h.burn)
	r.Post("/treasury/mint-check", h.mintCheck)

	r.Get("/market", h.marketStatus)
	r.Get("/market/chart", h.marketChart)
	r.Get("/market/treasury-chart", h.treasuryChart)
	r.Post("/market/freeze", h.freezePrice)
	r.Post("/market/unfreeze", h.unfreezePrice)

	r.Post("/trades", h.reportTrade)
	r.Post("/trades/{id}/verify", h.verifyTrade)
	r.Get("/trades/mine", h.myTrades)
	r.Get("/trades/stats", h.traderStats)
	r.Get("/trades/item-price", h.itemPrice)
	r.Get("/trades/trending", h.trendingItems)
	r.Get("/trades/top", h.topTraders)
	r.Get("/trades/reports", h.allTraderReports)
	r.Get("/trades/reports/{target}", h.traderReport)
}

// --- Request types ---

type registerRequest struct {
	ActorID           string `json:"actor_id" validate:"required"`
	DisplayName       string `json:"display_name" validate:"required"`
	MinecraftUsername string `json:"minecraft_username"`
}

type linkRequest struct {
	ActorID           string `json:"actor_id" validate:"required"`
	MinecraftUUID     string `json:"minecraft_uuid" validate:"required"`
	MinecraftUsername string `json:"minecraft_username" validate:"required"`
}

type roleRequest struct {
	ActorID  string `json:"actor_id" validate:"required"`
	TargetID string `json:"target_id"`
}

type transferRequest struct {
	FromID   string          `json:"from_id" validate:"required"`
	ToID     string          `json:"to_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency model.Currency  `json:"currency" validate:"required"`
}

type exchangeRequest struct {
	ActorID      string          `json:"actor_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency model.Currency  `json:"from_currency" validate:"required"`
	ToCurrency   model.Currency  `json:"to_currency" validate:"required"`
}

type depositRequest struct {
	ActorID     string          `json:"actor_id" validate:"required"`
	RecipientID string          `json:"recipient_id" validate:"required"`
	Diamonds    decimal.Decimal `json:"diamonds"`
	Carats      decimal.Decimal `json:"carats"`
	Memo        string          `json:"memo"`
}

type atmProfitRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Books   int64  `json:"books" validate:"gt=0"`
	Memo    string `json:"memo"`
}

type supplyRequest struct {
	ActorID  string          `json:"actor_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency model.Currency  `json:"currency" validate:"required"`
	Memo     string          `json:"memo"`
}

type mintCheckRequest struct {
	ActorID      string `json:"actor_id" validate:"required"`
	PendingBooks int64  `json:"pending_books" validate:"gte=0"`
}

type actorRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

type freezeRequest struct {
	ActorID string           `json:"actor_id" validate:"required"`
	Price   *decimal.Decimal `json:"price"`
}

type reportTradeRequest struct {
	ActorID      string          `json:"actor_id" validate:"required"`
	Type         model.TradeType `json:"type" validate:"required"`
	ItemName     string          `json:"item_name" validate:"required"`
	Quantity     int64           `json:"quantity" validate:"gt=0"`
	Carats       decimal.Decimal `json:"carats"`
	GoldenCarats decimal.Decimal `json:"golden_carats"`
	Counterparty string          `json:"counterparty"`
}

// --- Account handlers ---

func (h *Handler) registerAccount(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.bank.Register(r.Context(), req.ActorID, req.DisplayName, req.MinecraftUsername)
	writeResult(w, res, http.StatusCreated)
}

func (h *Handler) linkMinecraft(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeResult(w, h.bank.LinkMinecraft(r.Context(), req.ActorID, req.MinecraftUUID, req.MinecraftUsername), http.StatusOK)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.bank.GetBalance(r.Context(), chi.URLParam(r, "id")), http.StatusOK)
}

// --- Role handlers ---

func (h *Handler) promoteBanker(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeResult(w, h.bank.PromoteToBanker(r.Context(), req.ActorID, req.TargetID), http.StatusOK)
}

func (h *Handler) resignBanker(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeResult(w, h.bank.ResignAsBanker(r.Context(), req.ActorID), http.StatusOK)
}

func (h *Handler) setConsumer(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeResult(w, h.bank.SetConsumer(r.Context(), req.ActorID, req.TargetID), http.StatusOK)
}

func (h *Handler) restoreUser(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeResult(w, h.bank.RestoreUser(r.Context(), req.ActorID, req.TargetID), http.StatusOK)
}

// --- Money movement handlers ---

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.bank.Transfer(r.Context(), req.FromID, req.ToID, req.Amount, req.Currency)
	if res.Success {
		metrics.TransfersTotal.WithLabelValues("transfer").Inc()
	}
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.bank.Exchange(r.Context(), req.ActorID, req.Amount, req.FromCurrency, req.ToCurrency)
	if res.Success {
		metrics.TransfersTotal.WithLabelValues("exchange").Inc()
	}
	writeResult(w, res, http.StatusOK)
}

// --- Treasury handlers ---

func (h *Handler) treasuryStatus(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.bank.TreasuryStatus(r.Context()), http.StatusOK)
}

func (h *Handler) treasuryHistory(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.bank.TreasuryHistory(r.Context(), queryInt(r, "days", 30)), http.StatusOK)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.bank.Deposit(r.Context(), req.ActorID, req.RecipientID, req.Diamonds, req.Carats, req.Memo)
	if res.Success {
		metrics.TransfersTotal.WithLabelValues("deposit").Inc()
	}
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) atmProfit(w http.ResponseWriter, r *http.Request) {
	var req atmProfitRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeResult(w, h.bank.RecordATMProfit(r.Context(), req.ActorID, req.Books, req.Memo), http.StatusOK)
}

func (h *Handler) mint(w http.ResponseWriter, r *http.Request) {
	var req supplyRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.bank.Mint(r.Context(), req.ActorID, req.Amount, req.Currency, req.Memo)
	if res.Success {
		metrics.TransfersTotal.WithLabelValues("mint").Inc()
	}
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) burn(w http.ResponseWriter, r *http.Request) {
	var req supplyRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.bank.Burn(r.Context(), req.ActorID, req.Amount, req.Currency, req.Memo)
	if res.Success {
		metrics.TransfersTotal.WithLabelValues("burn").Inc()
	}
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) mintCheck(w http.ResponseWriter, r *http.Request) {
	var req mintCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeResult(w, h.bank.MintCheck(r.Context(), req.ActorID, req.PendingBooks), http.StatusOK)
}

// --- Market handlers ---

func (h *Handler) marketStatus(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.market.Status(r.Context()), http.StatusOK)
}

func (h *Handler) marketChart(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.market.ChartData(r.Context(), queryInt(r, "days", 7)), http.StatusOK)
}

func (h *Handler) treasuryChart(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.market.TreasuryChartData(r.Context(), queryInt(r, "days", 7)), http.StatusOK)
}

func (h *Handler) freezePrice(w http.ResponseWriter, r *http.Request) {
	var req freezeRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeResult(w, h.market.FreezePrice(r.Context(), req.ActorID, req.Price), http.StatusOK)
}

func (h *Handler) unfreezePrice(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeResult(w, h.market.UnfreezePrice(r.Context(), req.ActorID), http.StatusOK)
}

// --- Trade registry handlers ---

func (h *Handler) reportTrade(w http.ResponseWriter, r *http.Request) {
	var req reportTradeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.registry.ReportTrade(r.Context(), req.ActorID, req.Type, req.ItemName,
		req.Quantity, req.Carats, req.GoldenCarats, req.Counterparty)
	if res.Success {
		metrics.TradesReported.WithLabelValues(string(req.Type)).Inc()
	}
	writeResult(w, res, http.StatusCreated)
}

func (h *Handler) verifyTrade(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, "invalid trade id", http.StatusBadRequest)
		return
	}
	writeResult(w, h.registry.VerifyTrade(r.Context(), req.ActorID, id), http.StatusOK)
}

func (h *Handler) myTrades(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor_id")
	if actor == "" {
		writeError(w, "actor_id is required", http.StatusBadRequest)
		return
	}
	writeResult(w, h.registry.MyTrades(r.Context(), actor, queryInt(r, "limit", 10)), http.StatusOK)
}

func (h *Handler) traderStats(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor_id")
	if actor == "" {
		writeError(w, "actor_id is required", http.StatusBadRequest)
		return
	}
	writeResult(w, h.registry.MyTraderStats(r.Context(), actor), http.StatusOK)
}

func (h *Handler) itemPrice(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.registry.ItemPrice(r.Context(), r.URL.Query().Get("item")), http.StatusOK)
}

func (h *Handler) trendingItems(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.registry.TrendingItems(r.Context(), queryInt(r, "limit", 5)), http.StatusOK)
}

func (h *Handler) topTraders(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.registry.TopTraders(r.Context(), queryInt(r, "limit", 10), queryInt(r, "days", 7)), http.StatusOK)
}

func (h *Handler) allTraderReports(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor_id")
	if actor == "" {
		writeError(w, "actor_id is required", http.StatusBadRequest)
		return
	}
	writeResult(w, h.registry.AllTraderReports(r.Context(), actor, queryInt(r, "limit", 20)), http.StatusOK)
}

func (h *Handler) traderReport(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor_id")
	if actor == "" {
		writeError(w, "actor_id is required", http.StatusBadRequest)
		return
	}
	writeResult(w, h.registry.TraderReport(r.Context(), actor, chi.URLParam(r, "target")), http.StatusOK)
}

// --- Helpers ---

// decode parses and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeResult maps a service result to an HTTP response. okStatus is used for
// successful results; failures map through the error taxonomy.
func writeResult(w http.ResponseWriter, res model.Result, okStatus int) {
	status := okStatus
	if !res.Success {
		status = statusFor(res.Err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrAlreadyVerified),
		errors.Is(err, model.ErrAlreadyRegistered),
		errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
