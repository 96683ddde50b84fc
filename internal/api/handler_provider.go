package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/satspin/satspin/internal/lightning"
	"github.com/satspin/satspin/internal/repos/deposits"
	"github.com/satspin/satspin/internal/repos/spins"
	"github.com/satspin/satspin/internal/repos/users"
	"github.com/satspin/satspin/internal/services/auth"
	"github.com/satspin/satspin/internal/services/deposit"
	"github.com/satspin/satspin/internal/services/ledger"
	"github.com/satspin/satspin/internal/slots"
)

// Service contracts the handlers depend on. Handler tests stub these;
// production wires the concrete services.
type (
	AuthService interface {
		Login(ctx context.Context, username string) (users.User, string, error)
		Verify(token string) (userID int64, username string, err error)
	}

	LedgerService interface {
		SettleSpin(ctx context.Context, userID, betCredits, satsPerCredit int64) (ledger.SpinResult, error)
		GetBalance(ctx context.Context, userID int64) (int64, error)
	}

	DepositService interface {
		RequestDeposit(ctx context.Context, userID, amountSats int64) (deposits.Deposit, error)
		CheckAndSettle(ctx context.Context, userID int64, paymentHash string) (deposit.Status, error)
	}

	SpinHistory interface {
		ListRecent(ctx context.Context, userID int64, limit int) ([]spins.Spin, error)
	}
)

// HandlerProvider wraps the services and exposes HTTP handlers.
type HandlerProvider struct {
	auth     AuthService
	ledger   LedgerService
	deposits DepositService
	history  SpinHistory
}

func NewHandler(authSvc AuthService, ledgerSvc LedgerService, depositSvc DepositService, history SpinHistory) *HandlerProvider {
	return &HandlerProvider{
		auth:     authSvc,
		ledger:   ledgerSvc,
		deposits: depositSvc,
		history:  history,
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// domainStatus maps service-level sentinels onto HTTP statuses. The
// websocket transport reuses the same mapping as error codes.
func domainStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidParameters),
		errors.Is(err, deposit.ErrInvalidAmount),
		errors.Is(err, auth.ErrInvalidUsername):
		return http.StatusBadRequest, "invalid parameters"
	case errors.Is(err, users.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient balance"
	case errors.Is(err, users.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, deposits.ErrDepositNotFound):
		return http.StatusNotFound, "deposit not found"
	case errors.Is(err, lightning.ErrProviderTimeout),
		errors.Is(err, lightning.ErrProvider):
		return http.StatusBadGateway, "payment provider unavailable"
	default:
		slog.Error("internal error", "error", err)
		return http.StatusInternalServerError, "internal error"
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, msg := domainStatus(err)
	writeError(w, status, msg)
}

// decodeBody reads a capped JSON body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}

		return errors.New("invalid JSON")
	}

	return nil
}

// --- Handlers ---

type loginRequest struct {
	Username string `json:"username"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	Token    string `json:"token,omitempty"`
}

// LoginHandler handles POST /auth/login.
func (h *HandlerProvider) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidUsername) {
			writeError(w, http.StatusBadRequest, "invalid username")
			return
		}

		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:       user.ID,
		Username: user.Username,
		Balance:  user.Balance,
		Token:    token,
	})
}

// MeHandler handles GET /api/me.
func (h *HandlerProvider) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, username := identityFromContext(r.Context())

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:       userID,
		Username: username,
		Balance:  balance,
	})
}

// GetBalanceHandler handles GET /api/balance.
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := identityFromContext(r.Context())

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

type createDepositRequest struct {
	AmountSats int64 `json:"amount_sats"`
}

type depositResponse struct {
	PaymentRequest string `json:"payment_request"`
	PaymentHash    string `json:"payment_hash"`
	AmountSats     int64  `json:"amount_sats"`
}

// CreateDepositHandler handles POST /api/deposits.
func (h *HandlerProvider) CreateDepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := identityFromContext(r.Context())

	var req createDepositRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dep, err := h.deposits.RequestDeposit(r.Context(), userID, req.AmountSats)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, depositResponse{
		PaymentRequest: dep.PaymentRequest,
		PaymentHash:    dep.PaymentHash,
		AmountSats:     dep.AmountSats,
	})
}

type depositStatusResponse struct {
	PaymentHash  string `json:"payment_hash"`
	Paid         bool   `json:"paid"`
	CreditedSats int64  `json:"credited_sats,omitempty"`
	Balance      int64  `json:"balance"`
}

// DepositStatusHandler handles GET /api/deposits/{paymentHash}.
func (h *HandlerProvider) DepositStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := identityFromContext(r.Context())

	paymentHash := chi.URLParam(r, "paymentHash")
	if paymentHash == "" {
		writeError(w, http.StatusBadRequest, "missing payment hash")
		return
	}

	st, err := h.deposits.CheckAndSettle(r.Context(), userID, paymentHash)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, depositStatusResponse{
		PaymentHash:  st.PaymentHash,
		Paid:         st.Paid,
		CreditedSats: st.CreditedSats,
		Balance:      st.Balance,
	})
}

type spinRequest struct {
	BetCredits    int64 `json:"bet_credits"`
	SatsPerCredit int64 `json:"sats_per_credit"`
}

type spinResponse struct {
	Grid      slots.Grid    `json:"grid"`
	Wins      []lineWinBody `json:"wins"`
	BetSats   int64         `json:"bet_sats"`
	PrizeSats int64         `json:"prize_sats"`
	Balance   int64         `json:"balance"`
	Nonce     int64         `json:"nonce"`
}

type lineWinBody struct {
	Line    int    `json:"line"`
	Key     string `json:"key"`
	Credits int64  `json:"credits"`
}

// SpinHandler handles POST /api/spin.
func (h *HandlerProvider) SpinHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := identityFromContext(r.Context())

	var req spinRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.ledger.SettleSpin(r.Context(), userID, req.BetCredits, req.SatsPerCredit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, spinResultBody(res))
}

func spinResultBody(res ledger.SpinResult) spinResponse {
	body := spinResponse{
		Grid:      res.Outcome.Grid,
		Wins:      []lineWinBody{},
		BetSats:   res.CostSats,
		PrizeSats: res.PrizeSats,
		Balance:   res.NewBalance,
		Nonce:     res.Nonce,
	}

	for _, win := range res.Outcome.Wins {
		body.Wins = append(body.Wins, lineWinBody{
			Line:    win.Line,
			Key:     win.Key,
			Credits: win.Credits,
		})
	}

	return body
}

type spinHistoryItem struct {
	ID        int64           `json:"id"`
	Nonce     int64           `json:"nonce"`
	Outcome   json.RawMessage `json:"outcome"`
	BetSats   int64           `json:"bet_sats"`
	PrizeSats int64           `json:"prize_sats"`
	CreatedAt string          `json:"created_at"`
}

// ListSpinsHandler handles GET /api/spins.
func (h *HandlerProvider) ListSpinsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := identityFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.history.ListRecent(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]spinHistoryItem, 0, len(records))
	for _, rec := range records {
		items = append(items, spinHistoryItem{
			ID:        rec.ID,
			Nonce:     rec.Nonce,
			Outcome:   rec.Outcome,
			BetSats:   rec.BetSats,
			PrizeSats: rec.PrizeSats,
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"spins": items})
}
