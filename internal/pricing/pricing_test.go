package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateInclusiveVAT(t *testing.T) {
	// 2 x 100 + 1 x 50 at 12% inclusive.
	totals := Calculate([]LineInput{
		{Qty: 2, UnitPrice: dec("100")},
		{Qty: 1, UnitPrice: dec("50")},
	}, decimal.Zero, DefaultTaxRate)

	if !totals.Total.Equal(dec("250.00")) {
		t.Fatalf("expected total 250.00, got %s", totals.Total)
	}
	if !totals.TaxableBase.Equal(dec("223.21")) {
		t.Fatalf("expected taxable base 223.21, got %s", totals.TaxableBase)
	}
	if !totals.TaxAmount.Equal(dec("26.79")) {
		t.Fatalf("expected tax 26.79, got %s", totals.TaxAmount)
	}
	if !totals.TaxableBase.Add(totals.TaxAmount).Equal(totals.Total) {
		t.Fatalf("base + tax must reconstruct the total exactly")
	}
}

func TestCalculateWithDiscounts(t *testing.T) {
	totals := Calculate([]LineInput{
		{Qty: 3, UnitPrice: dec("40"), LineDiscount: dec("5")},
	}, dec("15"), DefaultTaxRate)

	if !totals.SubtotalBeforeDiscount.Equal(dec("115.00")) {
		t.Fatalf("expected subtotal 115.00, got %s", totals.SubtotalBeforeDiscount)
	}
	if !totals.NetOfDiscount.Equal(dec("100.00")) {
		t.Fatalf("expected net 100.00, got %s", totals.NetOfDiscount)
	}
	if !totals.Total.Equal(totals.NetOfDiscount) {
		t.Fatalf("inclusive pricing: total must equal net of discount")
	}
}

func TestCalculateZeroRate(t *testing.T) {
	totals := Calculate([]LineInput{{Qty: 1, UnitPrice: dec("99.99")}}, decimal.Zero, decimal.Zero)
	if !totals.TaxAmount.IsZero() {
		t.Fatalf("expected zero tax, got %s", totals.TaxAmount)
	}
	if !totals.TaxableBase.Equal(dec("99.99")) {
		t.Fatalf("expected base 99.99, got %s", totals.TaxableBase)
	}
}

func TestReconcileSplitsExact(t *testing.T) {
	err := ReconcileSplits([]domain.PaymentSplitRequest{
		{Instrument: "cash", Amount: dec("200")},
		{Instrument: "card", Amount: dec("50")},
	}, dec("250"))
	if err != nil {
		t.Fatalf("expected splits to reconcile: %v", err)
	}
}

func TestReconcileSplitsWithinEpsilon(t *testing.T) {
	err := ReconcileSplits([]domain.PaymentSplitRequest{
		{Instrument: "cash", Amount: dec("249.99")},
	}, dec("250.00"))
	if err != nil {
		t.Fatalf("expected 0.01 tolerance to pass: %v", err)
	}
}

func TestReconcileSplitsMismatch(t *testing.T) {
	err := ReconcileSplits([]domain.PaymentSplitRequest{
		{Instrument: "cash", Amount: dec("200")},
		{Instrument: "card", Amount: dec("49")},
	}, dec("250"))
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
	var mismatch *domain.PaymentMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected PaymentMismatchError, got %T", err)
	}
	if !mismatch.Expected.Equal(dec("250")) || !mismatch.Actual.Equal(dec("249")) {
		t.Fatalf("mismatch should carry both values, got expected=%s actual=%s",
			mismatch.Expected, mismatch.Actual)
	}
}

func TestReconcileSplitsRejectsNonPositive(t *testing.T) {
	err := ReconcileSplits([]domain.PaymentSplitRequest{
		{Instrument: "cash", Amount: dec("250")},
		{Instrument: "card", Amount: decimal.Zero},
	}, dec("250"))
	if err == nil {
		t.Fatalf("expected zero-amount split to be rejected")
	}
	var mismatch *domain.PaymentMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected PaymentMismatchError, got %T", err)
	}
	// The reported actual is the full tendered sum, not where the scan
	// stopped.
	if !mismatch.Actual.Equal(dec("250")) {
		t.Fatalf("expected actual to be the full tendered sum 250, got %s", mismatch.Actual)
	}
}

func TestBucketFor(t *testing.T) {
	cases := map[string]string{
		"cash":    BucketCash,
		"CARD":    BucketCard,
		"debit":   BucketCard,
		"gcash":   BucketDigital,
		"maya":    BucketDigital,
		"cheque":  BucketCheck,
		"ar":      BucketAR,
		"unknown": BucketDigital,
	}
	for code, want := range cases {
		if got := BucketFor(code); got != want {
			t.Fatalf("bucket for %q: expected %s, got %s", code, want, got)
		}
	}
}

func TestPrimaryInstrument(t *testing.T) {
	primary := PrimaryInstrument([]domain.PaymentSplit{
		{Instrument: "cash", Amount: dec("200")},
		{Instrument: "card", Amount: dec("50")},
	})
	if primary != "cash" {
		t.Fatalf("expected cash to be primary, got %s", primary)
	}

	single := PrimaryInstrument([]domain.PaymentSplit{{Instrument: "GCash", Amount: dec("10")}})
	if single != "gcash" {
		t.Fatalf("expected gcash, got %s", single)
	}
}

func TestPrimaryInstrumentTie(t *testing.T) {
	tied := PrimaryInstrument([]domain.PaymentSplit{
		{Instrument: "cash", Amount: dec("125")},
		{Instrument: "card", Amount: dec("125")},
	})
	if tied != "split" {
		t.Fatalf("expected split on an even tie, got %s", tied)
	}

	// A later larger split clears an earlier tie.
	cleared := PrimaryInstrument([]domain.PaymentSplit{
		{Instrument: "cash", Amount: dec("100")},
		{Instrument: "card", Amount: dec("100")},
		{Instrument: "gcash", Amount: dec("150")},
	})
	if cleared != "gcash" {
		t.Fatalf("expected gcash to win outright, got %s", cleared)
	}

	// Same instrument twice is not a tie.
	same := PrimaryInstrument([]domain.PaymentSplit{
		{Instrument: "cash", Amount: dec("50")},
		{Instrument: "Cash", Amount: dec("50")},
	})
	if same != "cash" {
		t.Fatalf("expected cash for a same-instrument tie, got %s", same)
	}
}
