// Package httpapi is a thin transport over the sale-commit service: decode,
// authenticate, dispatch, encode. No business rules live here.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/service"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, logger *zap.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        logger,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, "cashier", "admin"))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/receipts/", a.requireAuth(a.handleReceipt, "cashier", "admin"))

	mux.HandleFunc("/api/v1/shifts/open", a.requireAuth(a.handleShiftOpen, "cashier", "admin"))
	mux.HandleFunc("/api/v1/shifts/close", a.requireAuth(a.handleShiftClose, "cashier", "admin"))
	mux.HandleFunc("/api/v1/shifts/active", a.requireAuth(a.handleShiftActive, "cashier", "admin"))

	mux.HandleFunc("/api/v1/ar/accounts/", a.requireAuth(a.handleARAccountActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/ar/payments", a.requireAuth(a.handleARPayment, "cashier", "admin"))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/stock/receive", a.requireAuth(a.handleStockReceive, "admin"))
	mux.HandleFunc("/api/v1/stock/adjust", a.requireAuth(a.handleStockAdjust, "admin"))
	mux.HandleFunc("/api/v1/stock/movements", a.requireAuth(a.handleStockMovements, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.CashierID == "" {
		req.CashierID = service.ActorFromContext(r.Context()).Username
	}

	result, err := a.service.CommitSale(r.Context(), req)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// handleSaleActions routes /api/v1/sales/{number} and
// /api/v1/sales/{id}/void.
func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/sales/"), "/")
	if tail == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("sale number required"))
		return
	}

	if strings.HasSuffix(tail, "/void") {
		if r.Method != http.MethodPost {
			a.writeMethodNotAllowed(w)
			return
		}
		saleID := strings.Trim(strings.TrimSuffix(tail, "/void"), "/")
		a.handleVoid(w, r, saleID)
		return
	}

	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	sale, err := a.service.FindSaleByNumber(r.Context(), tail)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

type voidRequestBody struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin,omitempty"`
}

func (a *API) handleVoid(w http.ResponseWriter, r *http.Request, saleID string) {
	var body voidRequestBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	// Cashiers need manager approval; admins void directly.
	actor := service.ActorFromContext(r.Context())
	if actor.Role != "admin" {
		if !a.auth.ManagerPINEnabled() || !a.auth.ValidateManagerPIN(body.ManagerPIN) {
			a.writeError(w, http.StatusForbidden, errors.New("manager approval required"))
			return
		}
	}

	sale, err := a.service.VoidSale(r.Context(), domain.VoidSaleRequest{SaleID: saleID, Reason: body.Reason})
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	number := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/receipts/"), "/")
	if number == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("sale number required"))
		return
	}
	receipt, err := a.service.GetReceipt(r.Context(), number)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	var req domain.ShiftOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.CashierID == "" {
		req.CashierID = service.ActorFromContext(r.Context()).Username
	}
	shift, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shift": shift})
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	var req domain.ShiftCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.CashierID == "" {
		req.CashierID = service.ActorFromContext(r.Context()).Username
	}
	shift, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	cashierID := strings.TrimSpace(r.URL.Query().Get("cashier_id"))
	if cashierID == "" {
		cashierID = service.ActorFromContext(r.Context()).Username
	}
	shift, err := a.service.GetActiveShift(r.Context(), cashierID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
}

// handleARAccountActions routes /api/v1/ar/accounts/{id} and
// /api/v1/ar/accounts/{id}/transactions.
func (a *API) handleARAccountActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/ar/accounts/"), "/")
	if tail == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("account id required"))
		return
	}

	if strings.HasSuffix(tail, "/transactions") {
		accountID := strings.Trim(strings.TrimSuffix(tail, "/transactions"), "/")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
		entries, err := a.service.ListARTransactions(r.Context(), accountID, limit)
		if err != nil {
			a.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": entries})
		return
	}

	account, err := a.service.GetCustomerAccount(r.Context(), tail)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account})
}

func (a *API) handleARPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	var req domain.ARPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := a.service.PostARPayment(r.Context(), req)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": entry})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleStockReceive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	var req domain.StockReceiveRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.ReceiveStock(r.Context(), req); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleStockAdjust(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	var req domain.StockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.AdjustStock(r.Context(), req); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleStockMovements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	productID := strings.TrimSpace(r.URL.Query().Get("product_id"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	movements, err := a.service.ListStockMovements(r.Context(), productID, limit)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(startedAt)))
	})
}

// writeDomainError maps service and store errors onto HTTP statuses and a
// machine-readable code.
func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	var mismatch *domain.PaymentMismatchError
	var insufficient *domain.InsufficientStockError
	var exceeded *domain.CreditLimitExceededError

	switch {
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    mismatch.Error(),
			"code":     "payment_mismatch",
			"expected": mismatch.Expected,
			"actual":   mismatch.Actual,
		})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      insufficient.Error(),
			"code":       "insufficient_stock",
			"product_id": insufficient.ProductID,
			"available":  insufficient.Available,
			"requested":  insufficient.Requested,
		})
	case errors.As(err, &exceeded):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      exceeded.Error(),
			"code":       "credit_limit_exceeded",
			"account_id": exceeded.AccountID,
			"balance":    exceeded.Current,
			"limit":      exceeded.Limit,
			"attempted":  exceeded.Attempted,
		})
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidRequest):
		a.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrProductInactive):
		a.writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, store.ErrDuplicate):
		a.writeError(w, http.StatusConflict, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// 5xx responses get a generic message; the original error goes to the log.
func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
