// Package postgres implements the Repository against PostgreSQL. The
// sale-commit transaction lives in CreateSale: hard steps run directly in the
// transaction, soft steps run under savepoints so their failure never rolls
// back the financial write.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/pricing"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/store"
)

const defaultLocation = "main"

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, unit_cost, unit_price, active
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.UnitCost, &p.UnitPrice, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, unit_cost, unit_price, active
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.UnitCost, &p.UnitPrice, &p.Active); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || !product.UnitPrice.IsPositive() {
		return nil, store.ErrInvalidRequest
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, unit_cost, unit_price, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, product.ID, product.SKU, product.Name, product.UnitCost, product.UnitPrice, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetStockMap(ctx context.Context, location string, productIDs []string) (map[string]int, error) {
	location = normalizeLocation(location)
	if len(productIDs) == 0 {
		return map[string]int{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, current_qty
		FROM stock_records
		WHERE location = $1 AND product_id = ANY($2)
	`, location, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int, len(productIDs))
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}

// ReserveStock bumps the reservation counter without touching on-hand
// quantity. The conditional UPDATE makes the availability check and the
// reservation a single statement.
func (s *Store) ReserveStock(ctx context.Context, productID string, qty int, location string) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}
	location = normalizeLocation(location)

	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_records
		SET reserved_qty = reserved_qty + $1, updated_at = now()
		WHERE product_id = $2 AND location = $3 AND current_qty - reserved_qty >= $1
	`, qty, productID, location)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		available, lookupErr := s.availableQty(ctx, productID, location)
		if lookupErr != nil {
			available = 0
		}
		return &domain.InsufficientStockError{ProductID: productID, Available: available, Requested: qty}
	}
	return nil
}

func (s *Store) ReleaseStock(ctx context.Context, productID string, qty int, location string) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}
	location = normalizeLocation(location)

	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_records
		SET reserved_qty = GREATEST(reserved_qty - $1, 0), updated_at = now()
		WHERE product_id = $2 AND location = $3
	`, qty, productID, location)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) availableQty(ctx context.Context, productID string, location string) (int, error) {
	var current, reserved int
	err := s.db.QueryRowContext(ctx, `
		SELECT current_qty, reserved_qty FROM stock_records
		WHERE product_id = $1 AND location = $2
	`, productID, location).Scan(&current, &reserved)
	if err != nil {
		return 0, err
	}
	return current - reserved, nil
}

func (s *Store) ReceiveStock(ctx context.Context, req domain.StockReceiveRequest, actor string) error {
	if req.ProductID == "" || req.Qty < 1 {
		return store.ErrInvalidRequest
	}
	location := normalizeLocation(req.Location)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Stock records are created lazily on first movement.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_records (product_id, location, current_qty, reserved_qty, updated_at)
		VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (product_id, location)
		DO UPDATE SET current_qty = stock_records.current_qty + $3, updated_at = now()
	`, req.ProductID, location, req.Qty)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}

	if err := insertMovement(ctx, tx, req.ProductID, location, req.Qty, domain.MovementKindPurchase, req.Reference, actor); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AdjustStock(ctx context.Context, req domain.StockAdjustRequest, actor string) error {
	if req.ProductID == "" || req.Delta == 0 {
		return store.ErrInvalidRequest
	}
	location := normalizeLocation(req.Location)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if req.Delta > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_records (product_id, location, current_qty, reserved_qty, updated_at)
			VALUES ($1, $2, $3, 0, now())
			ON CONFLICT (product_id, location)
			DO UPDATE SET current_qty = stock_records.current_qty + $3, updated_at = now()
		`, req.ProductID, location, req.Delta)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}
	} else {
		res, execErr := tx.ExecContext(ctx, `
			UPDATE stock_records
			SET current_qty = current_qty + $1, updated_at = now()
			WHERE product_id = $2 AND location = $3 AND current_qty + $1 >= 0
		`, req.Delta, req.ProductID, location)
		if execErr != nil {
			return execErr
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			return raErr
		}
		if affected == 0 {
			available, lookupErr := s.availableQty(ctx, req.ProductID, location)
			if lookupErr != nil {
				available = 0
			}
			return &domain.InsufficientStockError{ProductID: req.ProductID, Available: available, Requested: -req.Delta}
		}
	}

	if err := insertMovement(ctx, tx, req.ProductID, location, req.Delta, domain.MovementKindAdjustment, req.Reason, actor); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, product_id, location, delta, kind, COALESCE(reference, ''), COALESCE(actor, ''), created_at
		FROM stock_movements`
	args := []any{}
	if productID != "" {
		query += ` WHERE product_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, productID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Location, &m.Delta, &m.Kind, &m.Reference, &m.Actor, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func insertMovement(ctx context.Context, tx *sql.Tx, productID string, location string, delta int, kind string, reference string, actor string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, location, delta, kind, reference, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, uuid.NewString(), productID, location, delta, kind, nullIfEmpty(reference), nullIfEmpty(actor))
	return err
}

// CreateSale persists one sale atomically. Hard steps: stock decrement plus
// movement per line, sale header, lines, splits, AR charge. Soft steps run
// under savepoints: shift aggregation and the customer directory update are
// logged on failure but never abort the sale.
func (s *Store) CreateSale(ctx context.Context, commit store.SaleCommit) (*domain.Sale, error) {
	sale := commit.Sale
	if len(sale.Lines) == 0 || len(sale.Splits) == 0 || sale.Number == "" {
		return nil, store.ErrInvalidRequest
	}
	location := normalizeLocation(commit.Location)
	sale.Location = location

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Re-verify products inside the transaction.
	ids := make([]string, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		ids = append(ids, line.ProductID)
	}
	productRows, err := tx.QueryContext(ctx, `
		SELECT id, active FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	activeByID := make(map[string]bool, len(ids))
	for productRows.Next() {
		var id string
		var active bool
		if err := productRows.Scan(&id, &active); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		activeByID[id] = active
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	for _, line := range sale.Lines {
		active, exists := activeByID[line.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if !active {
			return nil, store.ErrProductInactive
		}

		// Check-and-decrement as one conditional statement; no read-then-write
		// gap for concurrent commits against the same product.
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_records
			SET current_qty = current_qty - $1, updated_at = now()
			WHERE product_id = $2 AND location = $3 AND current_qty >= $1
		`, line.Qty, line.ProductID, location)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var available int
			lookupErr := tx.QueryRowContext(ctx, `
				SELECT current_qty FROM stock_records WHERE product_id = $1 AND location = $2
			`, line.ProductID, location).Scan(&available)
			if lookupErr != nil {
				available = 0
			}
			return nil, &domain.InsufficientStockError{ProductID: line.ProductID, Available: available, Requested: line.Qty}
		}

		if err := insertMovement(ctx, tx, line.ProductID, location, -line.Qty, domain.MovementKindSale, sale.Number, commit.Actor); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, number, idempotency_key, customer_id, location, subtotal_ex_tax, tax_amount,
			discount, total, payment_method, cashier_id, shift_id, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.Number, nullIfEmpty(sale.IdempotencyKey), nullIfEmpty(sale.CustomerID),
		sale.Location, sale.SubtotalExTax, sale.TaxAmount, sale.Discount, sale.Total, sale.PaymentMethod,
		sale.CashierID, nullIfEmpty(sale.ShiftID), sale.Status, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			_ = tx.Rollback()
			existing, lookupErr := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	for _, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, product_id, sku, name, qty, unit_price, line_discount, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, sale.ID, line.ProductID, line.SKU, line.Name, line.Qty, line.UnitPrice, line.LineDiscount, line.LineTotal)
		if err != nil {
			return nil, err
		}
	}

	for _, split := range sale.Splits {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payment_splits (sale_id, instrument, amount, reference)
			VALUES ($1,$2,$3,$4)
		`, sale.ID, split.Instrument, split.Amount, nullIfEmpty(split.Reference))
		if err != nil {
			return nil, err
		}
	}

	if commit.ARAccountID != "" {
		if err := postChargeTx(ctx, tx, commit.ARAccountID, commit.ARChargeTotal, sale.Number); err != nil {
			return nil, err
		}
	}

	s.softStep(ctx, tx, "shift_agg", func() error {
		return applyShiftTx(ctx, tx, &sale)
	})
	s.softStep(ctx, tx, "customer_dir", func() error {
		return applyCustomerTx(ctx, tx, &sale, commit)
	})

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

// postChargeTx applies an AR charge with the balance and limit check folded
// into one conditional UPDATE, then appends the ledger snapshot.
func postChargeTx(ctx context.Context, tx *sql.Tx, accountID string, amount decimal.Decimal, reference string) error {
	var newBalance decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		UPDATE customer_accounts
		SET balance = balance + $1, updated_at = now()
		WHERE id = $2 AND balance + $1 <= credit_limit
		RETURNING balance
	`, amount, accountID).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var current, limit decimal.Decimal
			lookupErr := tx.QueryRowContext(ctx, `
				SELECT balance, credit_limit FROM customer_accounts WHERE id = $1
			`, accountID).Scan(&current, &limit)
			if lookupErr != nil {
				return store.ErrNotFound
			}
			return &domain.CreditLimitExceededError{
				AccountID: accountID,
				Current:   current,
				Limit:     limit,
				Attempted: amount,
			}
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ar_transactions (id, account_id, type, amount, balance_after, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, uuid.NewString(), accountID, domain.ARTypeCharge, amount, newBalance, nullIfEmpty(reference))
	return err
}

func applyShiftTx(ctx context.Context, tx *sql.Tx, sale *domain.Sale) error {
	var shiftID string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM shifts WHERE cashier_id = $1 AND status = 'open' FOR UPDATE
	`, sale.CashierID).Scan(&shiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A sale may complete without an open shift.
			return nil
		}
		return err
	}

	buckets := map[string]decimal.Decimal{}
	for _, split := range sale.Splits {
		bucket := pricing.BucketFor(split.Instrument)
		if bucket == pricing.BucketAR {
			continue
		}
		buckets[bucket] = buckets[bucket].Add(split.Amount)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE shifts
		SET total_sales = total_sales + $1,
		    transaction_count = transaction_count + 1,
		    cash_total = cash_total + $2,
		    card_total = card_total + $3,
		    digital_total = digital_total + $4,
		    check_total = check_total + $5
		WHERE id = $6
	`, sale.Total, buckets[pricing.BucketCash], buckets[pricing.BucketCard],
		buckets[pricing.BucketDigital], buckets[pricing.BucketCheck], shiftID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sales SET shift_id = $1 WHERE id = $2`, shiftID, sale.ID); err != nil {
		return err
	}
	sale.ShiftID = shiftID
	return nil
}

func applyCustomerTx(ctx context.Context, tx *sql.Tx, sale *domain.Sale, commit store.SaleCommit) error {
	name := strings.TrimSpace(commit.CustomerName)
	if name == "" {
		return nil
	}

	var customerID string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM customers WHERE lower(name) = lower($1)
	`, name).Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		customerID = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO customers (id, name, phone, email, lifetime_total, created_at)
			VALUES ($1,$2,$3,$4,0,now())
		`, customerID, name, nullIfEmpty(commit.CustomerPhone), nullIfEmpty(commit.CustomerEmail))
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE customers
		SET lifetime_total = lifetime_total + $1, last_purchase_at = now()
		WHERE id = $2
	`, sale.Total, customerID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sales SET customer_id = $1 WHERE id = $2`, customerID, sale.ID); err != nil {
		return err
	}
	sale.CustomerID = customerID
	return nil
}

// softStep runs fn under a savepoint. Failure rolls back only the savepoint
// and logs a warning; the enclosing sale transaction continues.
func (s *Store) softStep(ctx context.Context, tx *sql.Tx, name string, fn func() error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		s.logger.Warn("savepoint failed, skipping soft step", zap.String("step", name), zap.Error(err))
		return
	}
	if err := fn(); err != nil {
		s.logger.Warn("soft step failed, continuing sale", zap.String("step", name), zap.Error(err))
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			s.logger.Warn("savepoint rollback failed", zap.String("step", name), zap.Error(rbErr))
		}
		return
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		s.logger.Warn("savepoint release failed", zap.String("step", name), zap.Error(err))
	}
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, `WHERE s.id = $1`, id)
}

func (s *Store) FindSaleByNumber(ctx context.Context, number string) (*domain.Sale, error) {
	return s.findSale(ctx, `WHERE s.number = $1`, number)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, `WHERE s.idempotency_key = $1`, key)
}

func (s *Store) findSale(ctx context.Context, where string, arg any) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID, shiftID, voidReason, idemKey sql.NullString
	var voidedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.number, s.idempotency_key, s.customer_id, s.location, s.subtotal_ex_tax, s.tax_amount,
		       s.discount, s.total, s.payment_method, s.cashier_id, s.shift_id, s.status,
		       s.void_reason, s.voided_at, s.created_at
		FROM sales s `+where,
		arg).Scan(&sale.ID, &sale.Number, &idemKey, &customerID, &sale.Location, &sale.SubtotalExTax, &sale.TaxAmount,
		&sale.Discount, &sale.Total, &sale.PaymentMethod, &sale.CashierID, &shiftID, &sale.Status,
		&voidReason, &voidedAt, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.IdempotencyKey = idemKey.String
	sale.CustomerID = customerID.String
	sale.ShiftID = shiftID.String
	sale.VoidReason = voidReason.String
	if voidedAt.Valid {
		t := voidedAt.Time
		sale.VoidedAt = &t
	}

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT product_id, sku, name, qty, unit_price, line_discount, line_total
		FROM sale_lines WHERE sale_id = $1
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var line domain.SaleLine
		if err := lineRows.Scan(&line.ProductID, &line.SKU, &line.Name, &line.Qty, &line.UnitPrice, &line.LineDiscount, &line.LineTotal); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	splitRows, err := s.db.QueryContext(ctx, `
		SELECT instrument, amount, COALESCE(reference, '')
		FROM payment_splits WHERE sale_id = $1
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer splitRows.Close()
	for splitRows.Next() {
		var split domain.PaymentSplit
		if err := splitRows.Scan(&split.Instrument, &split.Amount, &split.Reference); err != nil {
			return nil, err
		}
		sale.Splits = append(sale.Splits, split)
	}
	if err := splitRows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) VoidSale(ctx context.Context, id string, reason string, actor string, at time.Time) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var number, status, location string
	err = tx.QueryRowContext(ctx, `
		SELECT number, status, location FROM sales WHERE id = $1 FOR UPDATE
	`, id).Scan(&number, &status, &location)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	// completed -> voided is terminal; a voided sale stays voided.
	if status == domain.SaleStatusVoided {
		return nil, store.ErrInvalidRequest
	}

	lineRows, err := tx.QueryContext(ctx, `
		SELECT product_id, qty FROM sale_lines WHERE sale_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	type restock struct {
		productID string
		qty       int
	}
	restocks := make([]restock, 0, 8)
	for lineRows.Next() {
		var r restock
		if err := lineRows.Scan(&r.productID, &r.qty); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		restocks = append(restocks, r)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return nil, err
	}
	_ = lineRows.Close()

	// Restock at the location the sale was committed against, not the
	// default one.
	for _, r := range restocks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_records (product_id, location, current_qty, reserved_qty, updated_at)
			VALUES ($1, $2, $3, 0, now())
			ON CONFLICT (product_id, location)
			DO UPDATE SET current_qty = stock_records.current_qty + $3, updated_at = now()
		`, r.productID, location, r.qty)
		if err != nil {
			return nil, err
		}
		if err := insertMovement(ctx, tx, r.productID, location, r.qty, domain.MovementKindReturn, number, actor); err != nil {
			return nil, err
		}
	}

	// Reverse an AR charge, if one backed this sale.
	var accountID string
	var chargeAmount decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT account_id, amount FROM ar_transactions
		WHERE reference = $1 AND type = $2
	`, number, domain.ARTypeCharge).Scan(&accountID, &chargeAmount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		var newBalance decimal.Decimal
		if err := tx.QueryRowContext(ctx, `
			UPDATE customer_accounts
			SET balance = balance - $1, updated_at = now()
			WHERE id = $2
			RETURNING balance
		`, chargeAmount, accountID).Scan(&newBalance); err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ar_transactions (id, account_id, type, amount, balance_after, reference, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,now())
		`, uuid.NewString(), accountID, domain.ARTypeAdjustment, chargeAmount.Neg(), newBalance, number+":void")
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales SET status = $1, void_reason = $2, voided_at = $3 WHERE id = $4
	`, domain.SaleStatusVoided, reason, at, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.FindSaleByID(ctx, id)
}

func (s *Store) GetCustomerAccount(ctx context.Context, accountID string) (*domain.CustomerAccount, error) {
	var account domain.CustomerAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, credit_limit, balance, updated_at
		FROM customer_accounts WHERE id = $1
	`, accountID).Scan(&account.ID, &account.CustomerID, &account.CreditLimit, &account.Balance, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *Store) PostARPayment(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*domain.ARTransaction, error) {
	if !amount.IsPositive() {
		return nil, store.ErrInvalidRequest
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var newBalance decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		UPDATE customer_accounts
		SET balance = balance - $1, updated_at = now()
		WHERE id = $2
		RETURNING balance
	`, amount, accountID).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	entry := domain.ARTransaction{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Type:         domain.ARTypePayment,
		Amount:       amount.Neg(),
		BalanceAfter: newBalance,
		Reference:    reference,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ar_transactions (id, account_id, type, amount, balance_after, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.AccountID, entry.Type, entry.Amount, entry.BalanceAfter, nullIfEmpty(entry.Reference), entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) PostARAdjustment(ctx context.Context, accountID string, newBalance decimal.Decimal, reference string) (*domain.ARTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var oldBalance decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM customer_accounts WHERE id = $1 FOR UPDATE
	`, accountID).Scan(&oldBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE customer_accounts SET balance = $1, updated_at = now() WHERE id = $2
	`, newBalance, accountID)
	if err != nil {
		return nil, err
	}

	entry := domain.ARTransaction{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Type:         domain.ARTypeAdjustment,
		Amount:       newBalance.Sub(oldBalance),
		BalanceAfter: newBalance,
		Reference:    reference,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ar_transactions (id, account_id, type, amount, balance_after, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.AccountID, entry.Type, entry.Amount, entry.BalanceAfter, nullIfEmpty(entry.Reference), entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListARTransactions(ctx context.Context, accountID string, limit int) ([]domain.ARTransaction, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount, balance_after, COALESCE(reference, ''), created_at
		FROM ar_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ARTransaction, 0, limit)
	for rows.Next() {
		var e domain.ARTransaction
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &e.Amount, &e.BalanceAfter, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.CashierID == "" {
		return nil, store.ErrInvalidRequest
	}
	shift.Status = domain.ShiftStatusOpen
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, cashier_id, starting_cash, total_sales, transaction_count,
			cash_total, card_total, digital_total, check_total, status, started_at)
		VALUES ($1,$2,$3,0,0,0,0,0,0,$4,$5)
	`, shift.ID, shift.CashierID, shift.StartingCash, shift.Status, shift.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := shift
	return &created, nil
}

func (s *Store) CloseActiveShift(ctx context.Context, cashierID string, closingCash decimal.Decimal, at time.Time) (*domain.Shift, error) {
	var shiftID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET status = 'closed', closing_cash = $1, ended_at = $2
		WHERE cashier_id = $3 AND status = 'open'
		RETURNING id
	`, closingCash, at, cashierID).Scan(&shiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.getShiftByID(ctx, shiftID)
}

func (s *Store) GetActiveShift(ctx context.Context, cashierID string) (*domain.Shift, error) {
	var shiftID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM shifts WHERE cashier_id = $1 AND status = 'open'
	`, cashierID).Scan(&shiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.getShiftByID(ctx, shiftID)
}

func (s *Store) getShiftByID(ctx context.Context, id string) (*domain.Shift, error) {
	var shift domain.Shift
	var closingCash decimal.NullDecimal
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cashier_id, starting_cash, closing_cash, total_sales, transaction_count,
		       cash_total, card_total, digital_total, check_total, status, started_at, ended_at
		FROM shifts WHERE id = $1
	`, id).Scan(&shift.ID, &shift.CashierID, &shift.StartingCash, &closingCash, &shift.TotalSales,
		&shift.TransactionCount, &shift.CashTotal, &shift.CardTotal, &shift.DigitalTotal,
		&shift.CheckTotal, &shift.Status, &shift.StartedAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if closingCash.Valid {
		shift.ClosingCash = closingCash.Decimal
	}
	if endedAt.Valid {
		t := endedAt.Time
		shift.EndedAt = &t
	}
	return &shift, nil
}

func (s *Store) FindOrCreateCustomer(ctx context.Context, name string, phone string, email string) (*domain.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidRequest
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM customers WHERE lower(name) = lower($1)
	`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.NewString()
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO customers (id, name, phone, email, lifetime_total, created_at)
			VALUES ($1,$2,$3,$4,0,now())
			ON CONFLICT (lower(name)) DO NOTHING
		`, id, name, nullIfEmpty(phone), nullIfEmpty(email))
		if err == nil {
			// Re-read in case a concurrent insert won the conflict.
			err = s.db.QueryRowContext(ctx, `
				SELECT id FROM customers WHERE lower(name) = lower($1)
			`, name).Scan(&id)
		}
	}
	if err != nil {
		return nil, err
	}
	return s.GetCustomerByID(ctx, id)
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	var phone, email sql.NullString
	var lastPurchase sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, lifetime_total, last_purchase_at, created_at
		FROM customers WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &phone, &email, &customer.LifetimeTotal, &lastPurchase, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.Phone = phone.String
	customer.Email = email.String
	if lastPurchase.Valid {
		t := lastPurchase.Time
		customer.LastPurchaseAt = &t
	}
	return &customer, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidRequest
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $1 WHERE username = $2
	`, password, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func normalizeLocation(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return defaultLocation
	}
	return location
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// Healthcheck pings the database with a short deadline.
func (s *Store) Healthcheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(pingCtx)
}
