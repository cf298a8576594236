package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is owned by the catalog; the sale-commit engine reads it only.
type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Active    bool            `json:"active"`
}

// StockRecord tracks on-hand quantity per (product, location). Created
// lazily on first movement, never deleted.
type StockRecord struct {
	ProductID   string    `json:"product_id"`
	Location    string    `json:"location"`
	CurrentQty  int       `json:"current_qty"`
	ReservedQty int       `json:"reserved_qty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	MovementKindSale       = "sale"
	MovementKindPurchase   = "purchase"
	MovementKindAdjustment = "adjustment"
	MovementKindReturn     = "return"
)

// StockMovement is the append-only audit trail of every quantity change.
// Rows are never mutated or deleted.
type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Location  string    `json:"location"`
	Delta     int       `json:"delta"`
	Kind      string    `json:"kind"`
	Reference string    `json:"reference"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	SaleStatusCompleted = "completed"
	SaleStatusVoided    = "voided"
)

type Sale struct {
	ID             string          `json:"id"`
	Number         string          `json:"number"`
	CustomerID     string          `json:"customer_id,omitempty"`
	Location       string          `json:"location"`
	SubtotalExTax  decimal.Decimal `json:"subtotal_ex_tax"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  string          `json:"payment_method"`
	CashierID      string          `json:"cashier_id"`
	ShiftID        string          `json:"shift_id,omitempty"`
	Status         string          `json:"status"`
	IdempotencyKey string          `json:"-"`
	VoidReason     string          `json:"void_reason,omitempty"`
	VoidedAt       *time.Time      `json:"voided_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Lines          []SaleLine      `json:"lines"`
	Splits         []PaymentSplit  `json:"splits"`
}

// SaleLine is immutable once the sale commits.
type SaleLine struct {
	ProductID    string          `json:"product_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Qty          int             `json:"qty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// PaymentSplit records one tendered instrument. The set's sum must equal
// Sale.Total at creation time; the store enforces this as a persisted
// invariant, not only at validation time.
type PaymentSplit struct {
	Instrument string          `json:"instrument"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
}

// CustomerAccount is the AR credit account. Balance changes only through
// ARTransaction entries.
type CustomerAccount struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Balance     decimal.Decimal `json:"balance"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

const (
	ARTypeCharge     = "charge"
	ARTypePayment    = "payment"
	ARTypeAdjustment = "adjustment"
)

// ARTransaction is an immutable ledger snapshot; BalanceAfter equals the
// account balance immediately after applying the entry.
type ARTransaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reference    string          `json:"reference,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

// Shift aggregates a cashier's working session. At most one open shift per
// cashier; the sale-commit engine only updates totals, never the lifecycle.
type Shift struct {
	ID               string          `json:"id"`
	CashierID        string          `json:"cashier_id"`
	StartingCash     decimal.Decimal `json:"starting_cash"`
	ClosingCash      decimal.Decimal `json:"closing_cash"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	TransactionCount int             `json:"transaction_count"`
	CashTotal        decimal.Decimal `json:"cash_total"`
	CardTotal        decimal.Decimal `json:"card_total"`
	DigitalTotal     decimal.Decimal `json:"digital_total"`
	CheckTotal       decimal.Decimal `json:"check_total"`
	Status           string          `json:"status"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
}

// Customer is a denormalized convenience record, not a financial one.
// Soft-unique by case-insensitive name.
type Customer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	Email          string          `json:"email,omitempty"`
	LifetimeTotal  decimal.Decimal `json:"lifetime_total"`
	LastPurchaseAt *time.Time      `json:"last_purchase_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type SaleItemRequest struct {
	ProductID    string          `json:"product_id"`
	Qty          int             `json:"qty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
}

type PaymentSplitRequest struct {
	Instrument string          `json:"instrument"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
}

// SaleRequest is the single input to CommitSale.
type SaleRequest struct {
	CustomerName   string                `json:"customer_name,omitempty"`
	CustomerPhone  string                `json:"customer_phone,omitempty"`
	CustomerEmail  string                `json:"customer_email,omitempty"`
	ARAccountID    string                `json:"ar_account_id,omitempty"`
	Items          []SaleItemRequest     `json:"items"`
	Splits         []PaymentSplitRequest `json:"splits"`
	Discount       decimal.Decimal       `json:"discount"`
	TaxRate        *decimal.Decimal      `json:"tax_rate,omitempty"`
	ShiftID        string                `json:"shift_id,omitempty"`
	CashierID      string                `json:"cashier_id"`
	Location       string                `json:"location,omitempty"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
}

type ReceiptLine struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Receipt struct {
	SaleNumber  string          `json:"sale_number"`
	Lines       []ReceiptLine   `json:"lines"`
	SubtotalEx  decimal.Decimal `json:"subtotal_ex_tax"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
	Splits      []PaymentSplit  `json:"splits"`
	IssuedAt    time.Time       `json:"issued_at"`
	CashierID   string          `json:"cashier_id"`
	CustomerRef string          `json:"customer_ref,omitempty"`
}

// SaleResult is what CommitSale hands back to the HTTP layer.
type SaleResult struct {
	SaleID     string          `json:"sale_id"`
	SaleNumber string          `json:"sale_number"`
	Total      decimal.Decimal `json:"total"`
	Duplicate  bool            `json:"duplicate"`
	Receipt    Receipt         `json:"receipt"`
}

type ShiftOpenRequest struct {
	CashierID    string          `json:"cashier_id"`
	StartingCash decimal.Decimal `json:"starting_cash"`
}

type ShiftCloseRequest struct {
	CashierID   string          `json:"cashier_id"`
	ClosingCash decimal.Decimal `json:"closing_cash"`
}

type VoidSaleRequest struct {
	SaleID string `json:"sale_id"`
	Reason string `json:"reason"`
}

type ARPaymentRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

type StockReceiveRequest struct {
	ProductID string `json:"product_id"`
	Location  string `json:"location,omitempty"`
	Qty       int    `json:"qty"`
	Reference string `json:"reference,omitempty"`
}

type StockAdjustRequest struct {
	ProductID string `json:"product_id"`
	Location  string `json:"location,omitempty"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
