package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/store"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	return New(repo, nil, nil), repo
}

func stockOf(t *testing.T, repo *memory.Store, productID string) int {
	t.Helper()
	return stockAt(t, repo, "", productID)
}

func stockAt(t *testing.T, repo *memory.Store, location, productID string) int {
	t.Helper()
	stock, err := repo.GetStockMap(context.Background(), location, []string{productID})
	if err != nil {
		t.Fatalf("GetStockMap: %v", err)
	}
	return stock[productID]
}

// Two hammers and one bag of nails at seeded prices: 2*100 + 50 = 250.00
// inclusive, which breaks down to 223.21 base + 26.79 VAT at 12%.
func baseSaleRequest() domain.SaleRequest {
	return domain.SaleRequest{
		CashierID: "cashier-1",
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-hammer", Qty: 2},
			{ProductID: "prod-nails", Qty: 1},
		},
		Splits: []domain.PaymentSplitRequest{
			{Instrument: "cash", Amount: dec("200.00")},
			{Instrument: "card", Amount: dec("50.00")},
		},
	}
}

func TestCommitSaleHappyPath(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	result, err := svc.CommitSale(ctx, baseSaleRequest())
	if err != nil {
		t.Fatalf("CommitSale: %v", err)
	}
	if result.Duplicate {
		t.Fatal("fresh sale flagged as duplicate")
	}
	if !result.Total.Equal(dec("250.00")) {
		t.Fatalf("total = %s, want 250.00", result.Total)
	}

	sale, err := repo.FindSaleByID(ctx, result.SaleID)
	if err != nil {
		t.Fatalf("FindSaleByID: %v", err)
	}
	if !sale.SubtotalExTax.Equal(dec("223.21")) {
		t.Fatalf("subtotal ex tax = %s, want 223.21", sale.SubtotalExTax)
	}
	if !sale.TaxAmount.Equal(dec("26.79")) {
		t.Fatalf("tax = %s, want 26.79", sale.TaxAmount)
	}
	if !sale.SubtotalExTax.Add(sale.TaxAmount).Equal(sale.Total) {
		t.Fatalf("base %s + tax %s != total %s", sale.SubtotalExTax, sale.TaxAmount, sale.Total)
	}
	if sale.PaymentMethod != "cash" {
		t.Fatalf("payment method = %q, want cash", sale.PaymentMethod)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("status = %q, want completed", sale.Status)
	}

	if got := stockOf(t, repo, "prod-hammer"); got != 3 {
		t.Fatalf("hammer stock = %d, want 3", got)
	}
	if got := stockOf(t, repo, "prod-nails"); got != 9 {
		t.Fatalf("nails stock = %d, want 9", got)
	}

	movements, err := repo.ListStockMovements(ctx, "prod-hammer", 10)
	if err != nil {
		t.Fatalf("ListStockMovements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("hammer movements = %d, want 1", len(movements))
	}
	if movements[0].Delta != -2 || movements[0].Kind != domain.MovementKindSale {
		t.Fatalf("movement = %+v, want delta -2 kind sale", movements[0])
	}
	if movements[0].Reference != sale.Number {
		t.Fatalf("movement reference = %q, want %q", movements[0].Reference, sale.Number)
	}
}

func TestCommitSalePaymentMismatch(t *testing.T) {
	svc, repo := newTestService(t)

	req := baseSaleRequest()
	req.Splits = []domain.PaymentSplitRequest{
		{Instrument: "cash", Amount: dec("200.00")},
		{Instrument: "card", Amount: dec("49.00")},
	}

	_, err := svc.CommitSale(context.Background(), req)
	var mismatch *domain.PaymentMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want PaymentMismatchError", err)
	}
	if !mismatch.Expected.Equal(dec("250.00")) || !mismatch.Actual.Equal(dec("249.00")) {
		t.Fatalf("mismatch = expected %s actual %s, want 250.00/249.00", mismatch.Expected, mismatch.Actual)
	}

	if got := stockOf(t, repo, "prod-hammer"); got != 5 {
		t.Fatalf("hammer stock after rejected sale = %d, want 5", got)
	}
	if got := stockOf(t, repo, "prod-nails"); got != 10 {
		t.Fatalf("nails stock after rejected sale = %d, want 10", got)
	}
}

func TestCommitSaleSplitWithinEpsilon(t *testing.T) {
	svc, _ := newTestService(t)

	req := baseSaleRequest()
	req.Splits = []domain.PaymentSplitRequest{
		{Instrument: "cash", Amount: dec("200.00")},
		{Instrument: "card", Amount: dec("50.01")},
	}

	if _, err := svc.CommitSale(context.Background(), req); err != nil {
		t.Fatalf("split within tolerance rejected: %v", err)
	}
}

func TestCommitSaleInsufficientStock(t *testing.T) {
	svc, repo := newTestService(t)

	req := domain.SaleRequest{
		CashierID: "cashier-1",
		Items:     []domain.SaleItemRequest{{ProductID: "prod-hammer", Qty: 6}},
		Splits:    []domain.PaymentSplitRequest{{Instrument: "cash", Amount: dec("600.00")}},
	}

	_, err := svc.CommitSale(context.Background(), req)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if insufficient.Available != 5 || insufficient.Requested != 6 {
		t.Fatalf("insufficient = available %d requested %d, want 5/6", insufficient.Available, insufficient.Requested)
	}

	if got := stockOf(t, repo, "prod-hammer"); got != 5 {
		t.Fatalf("hammer stock = %d, want 5", got)
	}
}

func TestCommitSaleInactiveProduct(t *testing.T) {
	svc, _ := newTestService(t)

	req := domain.SaleRequest{
		CashierID: "cashier-1",
		Items:     []domain.SaleItemRequest{{ProductID: "prod-retired", Qty: 1}},
		Splits:    []domain.PaymentSplitRequest{{Instrument: "cash", Amount: dec("10.00")}},
	}
	if _, err := svc.CommitSale(context.Background(), req); !errors.Is(err, store.ErrProductInactive) {
		t.Fatalf("err = %v, want ErrProductInactive", err)
	}
}

// A credit-limit breach on the AR step must leave zero state changes behind:
// the stock decremented earlier in the pipeline comes back with the rollback.
func TestCommitSaleAtomicOnCreditLimitBreach(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	// Seeded account: balance 900, limit 1000. A 150 charge would land at
	// 1050 and must be rejected.
	req := domain.SaleRequest{
		CashierID:   "cashier-1",
		ARAccountID: "acct-1",
		Items: []domain.SaleItemRequest{
			{ProductID: "prod-hammer", Qty: 1},
			{ProductID: "prod-nails", Qty: 1},
		},
		Splits: []domain.PaymentSplitRequest{{Instrument: "ar", Amount: dec("150.00")}},
	}

	_, err := svc.CommitSale(ctx, req)
	var exceeded *domain.CreditLimitExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("err = %v, want CreditLimitExceededError", err)
	}
	if !exceeded.Current.Equal(dec("900.00")) || !exceeded.Limit.Equal(dec("1000.00")) {
		t.Fatalf("exceeded = current %s limit %s, want 900.00/1000.00", exceeded.Current, exceeded.Limit)
	}

	if got := stockOf(t, repo, "prod-hammer"); got != 5 {
		t.Fatalf("hammer stock after aborted sale = %d, want 5", got)
	}
	if got := stockOf(t, repo, "prod-nails"); got != 10 {
		t.Fatalf("nails stock after aborted sale = %d, want 10", got)
	}

	account, err := repo.GetCustomerAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetCustomerAccount: %v", err)
	}
	if !account.Balance.Equal(dec("900.00")) {
		t.Fatalf("balance after aborted sale = %s, want 900.00", account.Balance)
	}
}

func TestCommitSaleARChargeWithinLimit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	req := domain.SaleRequest{
		CashierID:   "cashier-1",
		ARAccountID: "acct-1",
		Items:       []domain.SaleItemRequest{{ProductID: "prod-hammer", Qty: 1}},
		Splits:      []domain.PaymentSplitRequest{{Instrument: "ar", Amount: dec("100.00")}},
	}

	result, err := svc.CommitSale(ctx, req)
	if err != nil {
		t.Fatalf("CommitSale: %v", err)
	}

	account, err := repo.GetCustomerAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetCustomerAccount: %v", err)
	}
	if !account.Balance.Equal(dec("1000.00")) {
		t.Fatalf("balance = %s, want 1000.00 (charge up to the limit is allowed)", account.Balance)
	}

	entries, err := repo.ListARTransactions(ctx, "acct-1", 10)
	if err != nil {
		t.Fatalf("ListARTransactions: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no AR ledger entry written")
	}
	charge := entries[0]
	if charge.Type != domain.ARTypeCharge {
		t.Fatalf("entry type = %q, want charge", charge.Type)
	}
	if !charge.Amount.Equal(dec("100.00")) || !charge.BalanceAfter.Equal(dec("1000.00")) {
		t.Fatalf("entry = amount %s balance_after %s, want 100.00/1000.00", charge.Amount, charge.BalanceAfter)
	}
	if charge.Reference != result.SaleNumber {
		t.Fatalf("entry reference = %q, want %q", charge.Reference, result.SaleNumber)
	}
}

func TestCommitSaleARSplitRequiresAccount(t *testing.T) {
	svc, _ := newTestService(t)

	req := domain.SaleRequest{
		CashierID: "cashier-1",
		Items:     []domain.SaleItemRequest{{ProductID: "prod-hammer", Qty: 1}},
		Splits:    []domain.PaymentSplitRequest{{Instrument: "ar", Amount: dec("100.00")}},
	}
	if _, err := svc.CommitSale(context.Background(), req); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestCommitSaleShiftAggregation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{CashierID: "cashier-1", StartingCash: dec("500.00")}); err != nil {
		t.Fatalf("OpenShift: %v", err)
	}

	req := baseSaleRequest()
	req.Splits = []domain.PaymentSplitRequest{
		{Instrument: "cash", Amount: dec("200.00")},
		{Instrument: "gcash", Amount: dec("50.00")},
	}
	if _, err := svc.CommitSale(ctx, req); err != nil {
		t.Fatalf("CommitSale: %v", err)
	}

	shift, err := svc.GetActiveShift(ctx, "cashier-1")
	if err != nil {
		t.Fatalf("GetActiveShift: %v", err)
	}
	if shift.TransactionCount != 1 {
		t.Fatalf("transaction count = %d, want 1", shift.TransactionCount)
	}
	if !shift.TotalSales.Equal(dec("250.00")) {
		t.Fatalf("total sales = %s, want 250.00", shift.TotalSales)
	}
	if !shift.CashTotal.Equal(dec("200.00")) {
		t.Fatalf("cash total = %s, want 200.00", shift.CashTotal)
	}
	if !shift.DigitalTotal.Equal(dec("50.00")) {
		t.Fatalf("digital total = %s, want 50.00", shift.DigitalTotal)
	}
	if !shift.CardTotal.IsZero() || !shift.CheckTotal.IsZero() {
		t.Fatalf("card/check totals = %s/%s, want zero", shift.CardTotal, shift.CheckTotal)
	}
}

// A sale with no open shift still commits; shift aggregation is best-effort.
func TestCommitSaleWithoutOpenShift(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	result, err := svc.CommitSale(ctx, baseSaleRequest())
	if err != nil {
		t.Fatalf("CommitSale without shift: %v", err)
	}
	sale, err := repo.FindSaleByID(ctx, result.SaleID)
	if err != nil {
		t.Fatalf("FindSaleByID: %v", err)
	}
	if sale.ShiftID != "" {
		t.Fatalf("shift id = %q, want empty", sale.ShiftID)
	}
}

func TestCommitSaleIdempotentReplay(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	req := baseSaleRequest()
	req.IdempotencyKey = "pos1-20260901-0001"

	first, err := svc.CommitSale(ctx, req)
	if err != nil {
		t.Fatalf("first CommitSale: %v", err)
	}
	if first.Duplicate {
		t.Fatal("first commit flagged as duplicate")
	}

	second, err := svc.CommitSale(ctx, req)
	if err != nil {
		t.Fatalf("replay CommitSale: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("replay not flagged as duplicate")
	}
	if second.SaleNumber != first.SaleNumber {
		t.Fatalf("replay sale number = %q, want %q", second.SaleNumber, first.SaleNumber)
	}

	// Stock decremented exactly once.
	if got := stockOf(t, repo, "prod-hammer"); got != 3 {
		t.Fatalf("hammer stock after replay = %d, want 3", got)
	}
}

func TestVoidSaleRestoresStockAndReversesAR(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	req := domain.SaleRequest{
		CashierID:   "cashier-1",
		ARAccountID: "acct-1",
		Items:       []domain.SaleItemRequest{{ProductID: "prod-hammer", Qty: 2}},
		Splits: []domain.PaymentSplitRequest{
			{Instrument: "cash", Amount: dec("150.00")},
			{Instrument: "ar", Amount: dec("50.00")},
		},
	}
	result, err := svc.CommitSale(ctx, req)
	if err != nil {
		t.Fatalf("CommitSale: %v", err)
	}
	if got := stockOf(t, repo, "prod-hammer"); got != 3 {
		t.Fatalf("hammer stock after sale = %d, want 3", got)
	}

	voided, err := svc.VoidSale(ctx, domain.VoidSaleRequest{SaleID: result.SaleID, Reason: "wrong items rung up"})
	if err != nil {
		t.Fatalf("VoidSale: %v", err)
	}
	if voided.Status != domain.SaleStatusVoided {
		t.Fatalf("status = %q, want voided", voided.Status)
	}
	if voided.VoidedAt == nil {
		t.Fatal("voided_at not set")
	}

	if got := stockOf(t, repo, "prod-hammer"); got != 5 {
		t.Fatalf("hammer stock after void = %d, want 5", got)
	}

	account, err := repo.GetCustomerAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetCustomerAccount: %v", err)
	}
	if !account.Balance.Equal(dec("900.00")) {
		t.Fatalf("balance after void = %s, want 900.00", account.Balance)
	}

	// Voiding twice is rejected.
	if _, err := svc.VoidSale(ctx, domain.VoidSaleRequest{SaleID: result.SaleID, Reason: "again"}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("second void err = %v, want ErrInvalidRequest", err)
	}
}

func TestVoidSaleRestoresStockAtSaleLocation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if err := svc.ReceiveStock(ctx, domain.StockReceiveRequest{
		ProductID: "prod-hammer",
		Location:  "annex",
		Qty:       4,
		Reference: "PO-88",
	}); err != nil {
		t.Fatalf("ReceiveStock: %v", err)
	}

	req := domain.SaleRequest{
		CashierID: "cashier-1",
		Location:  "annex",
		Items:     []domain.SaleItemRequest{{ProductID: "prod-hammer", Qty: 2}},
		Splits:    []domain.PaymentSplitRequest{{Instrument: "cash", Amount: dec("200.00")}},
	}
	result, err := svc.CommitSale(ctx, req)
	if err != nil {
		t.Fatalf("CommitSale: %v", err)
	}
	if got := stockAt(t, repo, "annex", "prod-hammer"); got != 2 {
		t.Fatalf("annex stock after sale = %d, want 2", got)
	}
	if got := stockOf(t, repo, "prod-hammer"); got != 5 {
		t.Fatalf("main stock after sale = %d, want 5", got)
	}
	sale, err := repo.FindSaleByID(ctx, result.SaleID)
	if err != nil {
		t.Fatalf("FindSaleByID: %v", err)
	}
	if sale.Location != "annex" {
		t.Fatalf("sale location = %q, want annex", sale.Location)
	}

	if _, err := svc.VoidSale(ctx, domain.VoidSaleRequest{SaleID: result.SaleID, Reason: "keyed at wrong branch"}); err != nil {
		t.Fatalf("VoidSale: %v", err)
	}
	if got := stockAt(t, repo, "annex", "prod-hammer"); got != 4 {
		t.Fatalf("annex stock after void = %d, want 4", got)
	}
	if got := stockOf(t, repo, "prod-hammer"); got != 5 {
		t.Fatalf("main stock after void = %d, want 5", got)
	}
}

func TestCommitSaleCustomerDirectory(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	req := baseSaleRequest()
	req.CustomerName = "Maria Santos"
	req.CustomerPhone = "0917-555-0101"

	result, err := svc.CommitSale(ctx, req)
	if err != nil {
		t.Fatalf("CommitSale: %v", err)
	}
	sale, err := repo.FindSaleByID(ctx, result.SaleID)
	if err != nil {
		t.Fatalf("FindSaleByID: %v", err)
	}
	if sale.CustomerID == "" {
		t.Fatal("customer not linked to sale")
	}
	customer, err := repo.GetCustomerByID(ctx, sale.CustomerID)
	if err != nil {
		t.Fatalf("GetCustomerByID: %v", err)
	}
	if !customer.LifetimeTotal.Equal(dec("250.00")) {
		t.Fatalf("lifetime total = %s, want 250.00", customer.LifetimeTotal)
	}
	if customer.LastPurchaseAt == nil {
		t.Fatal("last purchase not stamped")
	}

	// Same name, different casing: matched, not duplicated.
	req2 := domain.SaleRequest{
		CashierID:    "cashier-1",
		CustomerName: "maria santos",
		Items:        []domain.SaleItemRequest{{ProductID: "prod-nails", Qty: 1}},
		Splits:       []domain.PaymentSplitRequest{{Instrument: "cash", Amount: dec("50.00")}},
	}
	result2, err := svc.CommitSale(ctx, req2)
	if err != nil {
		t.Fatalf("second CommitSale: %v", err)
	}
	sale2, err := repo.FindSaleByID(ctx, result2.SaleID)
	if err != nil {
		t.Fatalf("FindSaleByID: %v", err)
	}
	if sale2.CustomerID != sale.CustomerID {
		t.Fatalf("customer id = %q, want %q (case-insensitive match)", sale2.CustomerID, sale.CustomerID)
	}
	customer, err = repo.GetCustomerByID(ctx, sale.CustomerID)
	if err != nil {
		t.Fatalf("GetCustomerByID: %v", err)
	}
	if !customer.LifetimeTotal.Equal(dec("300.00")) {
		t.Fatalf("lifetime total = %s, want 300.00", customer.LifetimeTotal)
	}
}

func TestCommitSaleValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		mut  func(*domain.SaleRequest)
	}{
		{"no items", func(r *domain.SaleRequest) { r.Items = nil }},
		{"no splits", func(r *domain.SaleRequest) { r.Splits = nil }},
		{"no cashier", func(r *domain.SaleRequest) { r.CashierID = "" }},
		{"zero qty", func(r *domain.SaleRequest) { r.Items[0].Qty = 0 }},
		{"negative discount", func(r *domain.SaleRequest) { r.Discount = dec("-5.00") }},
		{"blank instrument", func(r *domain.SaleRequest) { r.Splits[0].Instrument = " " }},
		{"zero split amount", func(r *domain.SaleRequest) { r.Splits[0].Amount = dec("0") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := baseSaleRequest()
			tc.mut(&req)
			if _, err := svc.CommitSale(ctx, req); !errors.Is(err, store.ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestOpenShiftRejectsSecondOpen(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{CashierID: "cashier-1", StartingCash: dec("500.00")}); err != nil {
		t.Fatalf("OpenShift: %v", err)
	}
	if _, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{CashierID: "cashier-1"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("second open err = %v, want ErrDuplicate", err)
	}
}

func TestCloseShiftLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{CashierID: "cashier-1", StartingCash: dec("500.00")}); err != nil {
		t.Fatalf("OpenShift: %v", err)
	}
	if _, err := svc.CommitSale(ctx, baseSaleRequest()); err != nil {
		t.Fatalf("CommitSale: %v", err)
	}

	closed, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{CashierID: "cashier-1", ClosingCash: dec("700.00")})
	if err != nil {
		t.Fatalf("CloseShift: %v", err)
	}
	if closed.Status != domain.ShiftStatusClosed {
		t.Fatalf("status = %q, want closed", closed.Status)
	}
	if closed.EndedAt == nil {
		t.Fatal("ended_at not set")
	}
	if !closed.TotalSales.Equal(dec("250.00")) {
		t.Fatalf("total sales = %s, want 250.00", closed.TotalSales)
	}

	if _, err := svc.GetActiveShift(ctx, "cashier-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("active shift after close err = %v, want ErrNotFound", err)
	}

	// A fresh shift can open once the previous one closed.
	if _, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{CashierID: "cashier-1", StartingCash: dec("700.00")}); err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
}

func TestARPaymentReducesBalance(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	entry, err := svc.PostARPayment(ctx, domain.ARPaymentRequest{AccountID: "acct-1", Amount: dec("400.00"), Reference: "OR-1001"})
	if err != nil {
		t.Fatalf("PostARPayment: %v", err)
	}
	if entry.Type != domain.ARTypePayment {
		t.Fatalf("entry type = %q, want payment", entry.Type)
	}
	if !entry.Amount.Equal(dec("-400.00")) {
		t.Fatalf("entry amount = %s, want -400.00", entry.Amount)
	}
	if !entry.BalanceAfter.Equal(dec("500.00")) {
		t.Fatalf("balance after = %s, want 500.00", entry.BalanceAfter)
	}

	account, err := repo.GetCustomerAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetCustomerAccount: %v", err)
	}
	if !account.Balance.Equal(dec("500.00")) {
		t.Fatalf("account balance = %s, want 500.00", account.Balance)
	}
}

func TestGetReceiptRebuildsFromStore(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.CommitSale(ctx, baseSaleRequest())
	if err != nil {
		t.Fatalf("CommitSale: %v", err)
	}

	receipt, err := svc.GetReceipt(ctx, result.SaleNumber)
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if receipt.SaleNumber != result.SaleNumber {
		t.Fatalf("receipt sale number = %q, want %q", receipt.SaleNumber, result.SaleNumber)
	}
	if len(receipt.Lines) != 2 {
		t.Fatalf("receipt lines = %d, want 2", len(receipt.Lines))
	}
	if !receipt.Total.Equal(dec("250.00")) {
		t.Fatalf("receipt total = %s, want 250.00", receipt.Total)
	}
}

func TestStockReceiveAndAdjust(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if err := svc.ReceiveStock(ctx, domain.StockReceiveRequest{ProductID: "prod-hammer", Qty: 20, Reference: "PO-2026-014"}); err != nil {
		t.Fatalf("ReceiveStock: %v", err)
	}
	if got := stockOf(t, repo, "prod-hammer"); got != 25 {
		t.Fatalf("stock after receive = %d, want 25", got)
	}

	if err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: "prod-hammer", Delta: -3, Reason: "shelf count"}); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if got := stockOf(t, repo, "prod-hammer"); got != 22 {
		t.Fatalf("stock after adjust = %d, want 22", got)
	}

	// An adjustment below zero is rejected, not clamped.
	err := svc.AdjustStock(ctx, domain.StockAdjustRequest{ProductID: "prod-hammer", Delta: -100, Reason: "bad count"})
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if got := stockOf(t, repo, "prod-hammer"); got != 22 {
		t.Fatalf("stock after rejected adjust = %d, want 22", got)
	}
}
