package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrProductInactive = errors.New("product inactive")
	ErrDuplicate       = errors.New("duplicate")
)

// SaleCommit carries everything the store needs to persist one sale inside a
// single transaction: the computed sale aggregate, the optional AR account to
// charge, and the optional customer identity for the best-effort directory
// update.
type SaleCommit struct {
	Sale          domain.Sale
	Location      string
	ARAccountID   string
	ARChargeTotal decimal.Decimal
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Actor         string
}

// Repository is the persistence boundary. CreateSale owns the atomic
// transaction described by the sale-commit pipeline: stock decrement plus
// movement rows, sale/lines/splits, AR charge, then the best-effort shift and
// customer updates. Everything before the soft steps rolls back wholesale on
// failure.
type Repository interface {
	// Catalog (read-mostly; create exists for seeding and admin tooling).
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	// Stock ledger.
	GetStockMap(ctx context.Context, location string, productIDs []string) (map[string]int, error)
	ReserveStock(ctx context.Context, productID string, qty int, location string) error
	ReleaseStock(ctx context.Context, productID string, qty int, location string) error
	ReceiveStock(ctx context.Context, req domain.StockReceiveRequest, actor string) error
	AdjustStock(ctx context.Context, req domain.StockAdjustRequest, actor string) error
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	// Sales.
	CreateSale(ctx context.Context, commit SaleCommit) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByNumber(ctx context.Context, number string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	VoidSale(ctx context.Context, id string, reason string, actor string, at time.Time) (*domain.Sale, error)

	// AR subledger.
	GetCustomerAccount(ctx context.Context, accountID string) (*domain.CustomerAccount, error)
	PostARPayment(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*domain.ARTransaction, error)
	PostARAdjustment(ctx context.Context, accountID string, newBalance decimal.Decimal, reference string) (*domain.ARTransaction, error)
	ListARTransactions(ctx context.Context, accountID string, limit int) ([]domain.ARTransaction, error)

	// Shifts.
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	CloseActiveShift(ctx context.Context, cashierID string, closingCash decimal.Decimal, at time.Time) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, cashierID string) (*domain.Shift, error)

	// Customer directory.
	FindOrCreateCustomer(ctx context.Context, name string, phone string, email string) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)

	// Auth credentials.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
