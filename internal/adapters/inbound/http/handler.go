// handler.go provides HTTP REST API handlers for the exchange service.
//
// This inbound adapter exposes the offer lifecycle and admin operations:
//   - POST   /offers: Create (or overwrite) an offer
//   - GET    /offers/{seller}/{itemID}: Fetch a single offer
//   - DELETE /offers/{seller}/{itemID}: Cancel an offer
//   - POST   /offers/{seller}/{itemID}/accept: Settle with a whitelisted token
//   - POST   /offers/{seller}/{itemID}/accept-native: Settle with native currency
//   - GET    /sellers/{seller}/offers: List a seller's offers
//   - PUT    /admin/fee: Update the fee divisor
//   - PUT    /admin/fee-recipient: Update the fee recipient
//   - PUT    /admin/payment-tokens: Upsert a payment-asset whitelist entry
//   - GET    /health: Health check endpoint for liveness/readiness probes
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/ports/inbound"
)

// Handler implements HTTP handlers for the API.
type Handler struct {
	exchange inbound.ExchangeService
	admin    inbound.AdminService
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler with the given services.
func NewHandler(exchange inbound.ExchangeService, admin inbound.AdminService, logger *slog.Logger) (*Handler, error) {
	if exchange == nil {
		return nil, fmt.Errorf("exchange service is required")
	}
	if admin == nil {
		return nil, fmt.Errorf("admin service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		exchange: exchange,
		admin:    admin,
		logger:   logger,
	}, nil
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /offers", h.CreateOffer)
	mux.HandleFunc("GET /offers/{seller}/{itemID}", h.GetOffer)
	mux.HandleFunc("DELETE /offers/{seller}/{itemID}", h.CancelOffer)
	mux.HandleFunc("POST /offers/{seller}/{itemID}/accept", h.AcceptOffer)
	mux.HandleFunc("POST /offers/{seller}/{itemID}/accept-native", h.AcceptOfferNative)
	mux.HandleFunc("GET /sellers/{seller}/offers", h.ListSellerOffers)
	mux.HandleFunc("PUT /admin/fee", h.SetFee)
	mux.HandleFunc("PUT /admin/fee-recipient", h.SetFeeRecipient)
	mux.HandleFunc("PUT /admin/payment-tokens", h.SetPaymentToken)
	mux.HandleFunc("GET /health", h.Health)
}

type createOfferRequest struct {
	Seller       string `json:"seller"`
	ItemContract string `json:"itemContract"`
	ItemID       uint64 `json:"itemId"`
	Amount       uint64 `json:"amount"`
	Deadline     string `json:"deadline"` // RFC 3339
	PriceUSD     uint64 `json:"priceUsd"` // fixed-point USD, 8 fractional digits
}

type offerResponse struct {
	Seller       string    `json:"seller"`
	ItemContract string    `json:"itemContract"`
	ItemID       uint64    `json:"itemId"`
	Amount       uint64    `json:"amount"`
	Deadline     time.Time `json:"deadline"`
	PriceUSD     uint64    `json:"priceUsd"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

type acceptRequest struct {
	Buyer        string `json:"buyer"`
	PaymentToken string `json:"paymentToken,omitempty"`
	AttachedWei  string `json:"attachedWei,omitempty"` // decimal string
}

type acceptResponse struct {
	FinalAmount string `json:"finalAmount"`
	FeeAmount   string `json:"feeAmount"`
}

type cancelRequest struct {
	Caller string `json:"caller"`
}

type setFeeRequest struct {
	Caller  string `json:"caller"`
	Divisor uint64 `json:"divisor"`
}

type setFeeRecipientRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
}

type setPaymentTokenRequest struct {
	Caller      string `json:"caller"`
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	FeedAddress string `json:"feedAddress"`
	Enabled     bool   `json:"enabled"`
}

func toOfferResponse(o *entity.Offer) offerResponse {
	return offerResponse{
		Seller:       o.Seller.Hex(),
		ItemContract: o.ItemContract.Hex(),
		ItemID:       o.ItemID,
		Amount:       o.Amount,
		Deadline:     o.Deadline,
		PriceUSD:     o.PriceUSD,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
	}
}

// CreateOffer handles POST /offers.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	seller, err := parseAddress(req.Seller)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid seller address")
		return
	}
	itemContract, err := parseAddress(req.ItemContract)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid item contract address")
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "deadline must be RFC 3339")
		return
	}
	if req.ItemID == 0 || req.Amount == 0 || req.PriceUSD == 0 {
		h.respondError(w, http.StatusBadRequest, "itemId, amount and priceUsd must be positive")
		return
	}
	if !deadline.After(time.Now()) {
		h.respondError(w, http.StatusBadRequest, "deadline must be in the future")
		return
	}

	offer, err := h.exchange.CreateOffer(r.Context(), inbound.CreateOfferRequest{
		Seller:       seller,
		ItemContract: itemContract,
		ItemID:       req.ItemID,
		Amount:       req.Amount,
		Deadline:     deadline,
		PriceUSD:     req.PriceUSD,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, toOfferResponse(offer))
}

// GetOffer handles GET /offers/{seller}/{itemID}.
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	seller, itemID, ok := h.offerKeyFromPath(w, r)
	if !ok {
		return
	}

	offer, err := h.exchange.GetOffer(r.Context(), seller, itemID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toOfferResponse(offer))
}

// CancelOffer handles DELETE /offers/{seller}/{itemID}.
func (h *Handler) CancelOffer(w http.ResponseWriter, r *http.Request) {
	seller, itemID, ok := h.offerKeyFromPath(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.exchange.CancelOffer(r.Context(), caller, seller, itemID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// AcceptOffer handles POST /offers/{seller}/{itemID}/accept.
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	seller, itemID, ok := h.offerKeyFromPath(w, r)
	if !ok {
		return
	}

	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	buyer, err := parseAddress(req.Buyer)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid buyer address")
		return
	}
	paymentToken, err := parseAddress(req.PaymentToken)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid payment token address")
		return
	}

	result, err := h.exchange.AcceptOfferWithTokens(r.Context(), buyer, seller, itemID, paymentToken)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, acceptResponse{
		FinalAmount: result.FinalAmount.String(),
		FeeAmount:   result.FeeAmount.String(),
	})
}

// AcceptOfferNative handles POST /offers/{seller}/{itemID}/accept-native.
func (h *Handler) AcceptOfferNative(w http.ResponseWriter, r *http.Request) {
	seller, itemID, ok := h.offerKeyFromPath(w, r)
	if !ok {
		return
	}

	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	buyer, err := parseAddress(req.Buyer)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid buyer address")
		return
	}
	attached, ok2 := new(big.Int).SetString(req.AttachedWei, 10)
	if !ok2 || attached.Sign() < 0 {
		h.respondError(w, http.StatusBadRequest, "attachedWei must be a non-negative decimal string")
		return
	}

	result, err := h.exchange.AcceptOfferWithNative(r.Context(), buyer, seller, itemID, attached)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, acceptResponse{
		FinalAmount: result.FinalAmount.String(),
		FeeAmount:   result.FeeAmount.String(),
	})
}

// ListSellerOffers handles GET /sellers/{seller}/offers.
func (h *Handler) ListSellerOffers(w http.ResponseWriter, r *http.Request) {
	seller, err := parseAddress(r.PathValue("seller"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid seller address")
		return
	}

	offers, err := h.exchange.ListSellerOffers(r.Context(), seller)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	out := make([]offerResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferResponse(o))
	}
	h.respondJSON(w, http.StatusOK, out)
}

// SetFee handles PUT /admin/fee.
func (h *Handler) SetFee(w http.ResponseWriter, r *http.Request) {
	var req setFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	if req.Divisor == 0 {
		h.respondError(w, http.StatusBadRequest, "divisor must be positive")
		return
	}

	if err := h.admin.SetFee(r.Context(), caller, req.Divisor); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// SetFeeRecipient handles PUT /admin/fee-recipient.
func (h *Handler) SetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	var req setFeeRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	if err := h.admin.SetFeeRecipient(r.Context(), caller, recipient); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// SetPaymentToken handles PUT /admin/payment-tokens.
func (h *Handler) SetPaymentToken(w http.ResponseWriter, r *http.Request) {
	var req setPaymentTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	address, err := parseAddress(req.Address)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid token address")
		return
	}
	feed, err := parseAddress(req.FeedAddress)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid feed address")
		return
	}

	token, err := entity.NewPaymentToken(address, req.Symbol, req.Decimals, feed, req.Enabled)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.SetWhitelistedPaymentToken(r.Context(), caller, token); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.exchange.Ping(r.Context()); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "service unhealthy")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// offerKeyFromPath parses the {seller}/{itemID} path segments, writing a 400
// response when either is malformed.
func (h *Handler) offerKeyFromPath(w http.ResponseWriter, r *http.Request) (common.Address, uint64, bool) {
	seller, err := parseAddress(r.PathValue("seller"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid seller address")
		return common.Address{}, 0, false
	}
	itemID, err := strconv.ParseUint(r.PathValue("itemID"), 10, 64)
	if err != nil || itemID == 0 {
		h.respondError(w, http.StatusBadRequest, "invalid item id")
		return common.Address{}, 0, false
	}
	return seller, itemID, true
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// respondServiceError maps domain sentinel errors to HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entity.ErrOfferNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrOfferNotAvailable),
		errors.Is(err, entity.ErrAlreadyCancelled),
		errors.Is(err, entity.ErrNotApproved):
		status = http.StatusConflict
	case errors.Is(err, entity.ErrInsufficientAllowance),
		errors.Is(err, entity.ErrInsufficientAmount):
		status = http.StatusPaymentRequired
	case errors.Is(err, entity.ErrNotSeller), errors.Is(err, entity.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, entity.ErrUnsupportedAsset):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		h.respondError(w, status, "internal error")
		return
	}
	h.respondError(w, status, err.Error())
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
