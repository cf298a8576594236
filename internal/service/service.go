// Package service orchestrates the sale-commit pipeline: validate, price,
// reconcile, persist, then the best-effort receipt cache write. All financial
// writes happen inside the store; this layer never mutates state on its own.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/cache"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/pricing"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/store"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/xid"
)

const defaultReceiptTTL = 24 * time.Hour

type actorKey struct{}

// WithActor stamps the authenticated actor onto the context. The HTTP layer
// calls this after token verification.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) domain.Actor {
	if actor, ok := ctx.Value(actorKey{}).(domain.Actor); ok {
		return actor
	}
	return domain.Actor{}
}

type Service struct {
	repo       store.Repository
	receipts   cache.ReceiptCache
	logger     *zap.Logger
	receiptTTL time.Duration
}

func New(repo store.Repository, receipts cache.ReceiptCache, logger *zap.Logger) *Service {
	if receipts == nil {
		receipts = cache.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		receipts:   receipts,
		logger:     logger,
		receiptTTL: defaultReceiptTTL,
	}
}

// SetReceiptTTL overrides how long reprint receipts stay cached.
func (s *Service) SetReceiptTTL(ttl time.Duration) {
	if ttl > 0 {
		s.receiptTTL = ttl
	}
}

// CommitSale runs the full pipeline for one sale. On success the sale, its
// stock movements, and any AR charge are durable; shift aggregation and the
// customer directory update are best-effort inside the same transaction.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (*domain.SaleResult, error) {
	if err := validateSaleRequest(req); err != nil {
		return nil, err
	}

	// Replay check before any work. The store's unique index backstops the
	// race where two requests with the same key arrive together.
	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey)
		if err == nil {
			s.logger.Info("idempotent replay",
				zap.String("sale_number", existing.Number),
				zap.String("idempotency_key", req.IdempotencyKey))
			return s.resultFor(existing, true), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.SaleLine, 0, len(req.Items))
	lineInputs := make([]pricing.LineInput, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if !product.Active {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrProductInactive)
		}
		unitPrice := item.UnitPrice
		if unitPrice.IsZero() {
			unitPrice = product.UnitPrice
		}
		lines = append(lines, domain.SaleLine{
			ProductID:    product.ID,
			SKU:          product.SKU,
			Name:         product.Name,
			Qty:          item.Qty,
			UnitPrice:    unitPrice,
			LineDiscount: item.LineDiscount,
		})
		lineInputs = append(lineInputs, pricing.LineInput{
			Qty:          item.Qty,
			UnitPrice:    unitPrice,
			LineDiscount: item.LineDiscount,
		})
	}

	rate := pricing.DefaultTaxRate
	if req.TaxRate != nil {
		rate = *req.TaxRate
	}
	totals := pricing.Calculate(lineInputs, req.Discount, rate)
	for i := range lines {
		lines[i].LineTotal = totals.LineTotals[i]
	}

	if err := pricing.ReconcileSplits(req.Splits, totals.Total); err != nil {
		return nil, err
	}

	arCharge := decimal.Zero
	splits := make([]domain.PaymentSplit, 0, len(req.Splits))
	for _, split := range req.Splits {
		instrument := strings.ToLower(strings.TrimSpace(split.Instrument))
		if pricing.BucketFor(instrument) == pricing.BucketAR {
			arCharge = arCharge.Add(split.Amount)
		}
		splits = append(splits, domain.PaymentSplit{
			Instrument: instrument,
			Amount:     split.Amount,
			Reference:  split.Reference,
		})
	}
	if arCharge.IsPositive() && req.ARAccountID == "" {
		return nil, fmt.Errorf("ar split requires an account id: %w", store.ErrInvalidRequest)
	}

	sale := domain.Sale{
		ID:             uuid.NewString(),
		Number:         xid.SaleNumber(),
		SubtotalExTax:  totals.TaxableBase,
		TaxAmount:      totals.TaxAmount,
		Discount:       req.Discount,
		Total:          totals.Total,
		PaymentMethod:  pricing.PrimaryInstrument(splits),
		CashierID:      req.CashierID,
		ShiftID:        req.ShiftID,
		Status:         domain.SaleStatusCompleted,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
		Lines:          lines,
		Splits:         splits,
	}

	commit := store.SaleCommit{
		Sale:          sale,
		Location:      req.Location,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Actor:         ActorFromContext(ctx).Username,
	}
	if arCharge.IsPositive() {
		commit.ARAccountID = req.ARAccountID
		commit.ARChargeTotal = arCharge
	}

	persisted, err := s.repo.CreateSale(ctx, commit)
	if err != nil {
		return nil, err
	}
	// The store returns the earlier sale when the idempotency key raced a
	// concurrent commit.
	duplicate := persisted.ID != sale.ID

	result := s.resultFor(persisted, duplicate)
	if !duplicate {
		s.cacheReceipt(ctx, result.Receipt)
		s.logger.Info("sale committed",
			zap.String("sale_number", persisted.Number),
			zap.String("cashier_id", persisted.CashierID),
			zap.String("payment_method", persisted.PaymentMethod),
			zap.String("total", persisted.Total.StringFixed(2)))
	}
	return result, nil
}

func validateSaleRequest(req domain.SaleRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("sale needs at least one item: %w", store.ErrInvalidRequest)
	}
	if len(req.Splits) == 0 {
		return fmt.Errorf("sale needs at least one payment split: %w", store.ErrInvalidRequest)
	}
	if req.CashierID == "" {
		return fmt.Errorf("cashier id required: %w", store.ErrInvalidRequest)
	}
	for _, item := range req.Items {
		if item.Qty < 1 {
			return fmt.Errorf("item qty must be positive: %w", store.ErrInvalidRequest)
		}
		if item.UnitPrice.IsNegative() || item.LineDiscount.IsNegative() {
			return fmt.Errorf("negative amounts rejected: %w", store.ErrInvalidRequest)
		}
	}
	if req.Discount.IsNegative() {
		return fmt.Errorf("negative discount rejected: %w", store.ErrInvalidRequest)
	}
	if req.TaxRate != nil && req.TaxRate.IsNegative() {
		return fmt.Errorf("negative tax rate rejected: %w", store.ErrInvalidRequest)
	}
	arSplits := 0
	for _, split := range req.Splits {
		if strings.TrimSpace(split.Instrument) == "" {
			return fmt.Errorf("split instrument required: %w", store.ErrInvalidRequest)
		}
		if !split.Amount.IsPositive() {
			return fmt.Errorf("split amount must be positive: %w", store.ErrInvalidRequest)
		}
		if pricing.BucketFor(split.Instrument) == pricing.BucketAR {
			arSplits++
		}
	}
	if arSplits > 1 {
		return fmt.Errorf("at most one ar split per sale: %w", store.ErrInvalidRequest)
	}
	return nil
}

func (s *Service) resultFor(sale *domain.Sale, duplicate bool) *domain.SaleResult {
	return &domain.SaleResult{
		SaleID:     sale.ID,
		SaleNumber: sale.Number,
		Total:      sale.Total,
		Duplicate:  duplicate,
		Receipt:    buildReceipt(sale),
	}
}

func buildReceipt(sale *domain.Sale) domain.Receipt {
	lines := make([]domain.ReceiptLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		lines = append(lines, domain.ReceiptLine{
			SKU:       line.SKU,
			Name:      line.Name,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return domain.Receipt{
		SaleNumber:  sale.Number,
		Lines:       lines,
		SubtotalEx:  sale.SubtotalExTax,
		TaxAmount:   sale.TaxAmount,
		Discount:    sale.Discount,
		Total:       sale.Total,
		Splits:      sale.Splits,
		IssuedAt:    sale.CreatedAt,
		CashierID:   sale.CashierID,
		CustomerRef: sale.CustomerID,
	}
}

func (s *Service) cacheReceipt(ctx context.Context, receipt domain.Receipt) {
	if err := s.receipts.PutReceipt(ctx, receipt, s.receiptTTL); err != nil {
		s.logger.Warn("receipt cache write failed",
			zap.String("sale_number", receipt.SaleNumber),
			zap.Error(err))
	}
}

// GetReceipt serves reprints: cache first, then a rebuild from the store.
func (s *Service) GetReceipt(ctx context.Context, saleNumber string) (*domain.Receipt, error) {
	if cached, err := s.receipts.GetReceipt(ctx, saleNumber); err == nil {
		return cached, nil
	}
	sale, err := s.repo.FindSaleByNumber(ctx, saleNumber)
	if err != nil {
		return nil, err
	}
	receipt := buildReceipt(sale)
	s.cacheReceipt(ctx, receipt)
	return &receipt, nil
}

func (s *Service) FindSaleByNumber(ctx context.Context, number string) (*domain.Sale, error) {
	return s.repo.FindSaleByNumber(ctx, number)
}

// VoidSale reverses a completed sale: stock returns, AR reversal if the sale
// carried a charge, and a terminal status flip. Shift totals are not
// retro-adjusted; the void shows up in end-of-day reconciliation instead.
func (s *Service) VoidSale(ctx context.Context, req domain.VoidSaleRequest) (*domain.Sale, error) {
	if req.SaleID == "" || strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("sale id and reason required: %w", store.ErrInvalidRequest)
	}
	actor := ActorFromContext(ctx)
	sale, err := s.repo.VoidSale(ctx, req.SaleID, req.Reason, actor.Username, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("sale voided",
		zap.String("sale_number", sale.Number),
		zap.String("reason", req.Reason),
		zap.String("actor", actor.Username))
	return sale, nil
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (*domain.Shift, error) {
	if req.CashierID == "" {
		return nil, fmt.Errorf("cashier id required: %w", store.ErrInvalidRequest)
	}
	if req.StartingCash.IsNegative() {
		return nil, fmt.Errorf("starting cash cannot be negative: %w", store.ErrInvalidRequest)
	}
	shift := domain.Shift{
		ID:           xid.New("SHIFT"),
		CashierID:    req.CashierID,
		StartingCash: req.StartingCash,
		Status:       domain.ShiftStatusOpen,
		StartedAt:    time.Now().UTC(),
	}
	created, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		return nil, err
	}
	s.logger.Info("shift opened", zap.String("shift_id", created.ID), zap.String("cashier_id", created.CashierID))
	return created, nil
}

func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (*domain.Shift, error) {
	if req.CashierID == "" {
		return nil, fmt.Errorf("cashier id required: %w", store.ErrInvalidRequest)
	}
	closed, err := s.repo.CloseActiveShift(ctx, req.CashierID, req.ClosingCash, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("shift closed",
		zap.String("shift_id", closed.ID),
		zap.String("cashier_id", closed.CashierID),
		zap.Int("transaction_count", closed.TransactionCount),
		zap.String("total_sales", closed.TotalSales.StringFixed(2)))
	return closed, nil
}

func (s *Service) GetActiveShift(ctx context.Context, cashierID string) (*domain.Shift, error) {
	if cashierID == "" {
		return nil, fmt.Errorf("cashier id required: %w", store.ErrInvalidRequest)
	}
	return s.repo.GetActiveShift(ctx, cashierID)
}

func (s *Service) GetCustomerAccount(ctx context.Context, accountID string) (*domain.CustomerAccount, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id required: %w", store.ErrInvalidRequest)
	}
	return s.repo.GetCustomerAccount(ctx, accountID)
}

func (s *Service) PostARPayment(ctx context.Context, req domain.ARPaymentRequest) (*domain.ARTransaction, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("account id required: %w", store.ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive: %w", store.ErrInvalidRequest)
	}
	entry, err := s.repo.PostARPayment(ctx, req.AccountID, req.Amount, req.Reference)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ar payment posted",
		zap.String("account_id", req.AccountID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("balance_after", entry.BalanceAfter.StringFixed(2)))
	return entry, nil
}

func (s *Service) ListARTransactions(ctx context.Context, accountID string, limit int) ([]domain.ARTransaction, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id required: %w", store.ErrInvalidRequest)
	}
	return s.repo.ListARTransactions(ctx, accountID, limit)
}

func (s *Service) ReceiveStock(ctx context.Context, req domain.StockReceiveRequest) error {
	if req.ProductID == "" || req.Qty < 1 {
		return fmt.Errorf("product id and positive qty required: %w", store.ErrInvalidRequest)
	}
	actor := ActorFromContext(ctx)
	if err := s.repo.ReceiveStock(ctx, req, actor.Username); err != nil {
		return err
	}
	s.logger.Info("stock received",
		zap.String("product_id", req.ProductID),
		zap.Int("qty", req.Qty),
		zap.String("reference", req.Reference))
	return nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) error {
	if req.ProductID == "" || req.Delta == 0 {
		return fmt.Errorf("product id and non-zero delta required: %w", store.ErrInvalidRequest)
	}
	actor := ActorFromContext(ctx)
	if err := s.repo.AdjustStock(ctx, req, actor.Username); err != nil {
		return err
	}
	s.logger.Info("stock adjusted",
		zap.String("product_id", req.ProductID),
		zap.Int("delta", req.Delta),
		zap.String("reason", req.Reason))
	return nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListStockMovements(ctx, productID, limit)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}
