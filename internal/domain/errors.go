package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InsufficientStockError means a sale line asked for more than is on hand.
// The whole commit rolls back; no partial decrement is ever visible.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// PaymentMismatchError carries both sides of a failed reconciliation between
// the computed sale total and the tendered sum.
type PaymentMismatchError struct {
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment splits total %s does not match sale total %s",
		e.Actual.StringFixed(2), e.Expected.StringFixed(2))
}

// CreditLimitExceededError reports an AR charge that would push the account
// balance past its credit limit. The balance is left unchanged.
type CreditLimitExceededError struct {
	AccountID string
	Current   decimal.Decimal
	Limit     decimal.Decimal
	Attempted decimal.Decimal
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded for account %s: balance %s + charge %s > limit %s",
		e.AccountID, e.Current.StringFixed(2), e.Attempted.StringFixed(2), e.Limit.StringFixed(2))
}
