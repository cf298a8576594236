// Package pricing holds the pure pieces of the sale-commit pipeline: the
// inclusive-VAT calculator and the payment-split validator. Nothing here
// touches storage.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
)

// DefaultTaxRate is the inclusive VAT rate applied when a request does not
// carry one (12%).
var DefaultTaxRate = decimal.NewFromFloat(0.12)

// Epsilon is the reconciliation tolerance between a sale total and the sum
// of its payment splits (0.01 currency unit).
var Epsilon = decimal.NewFromFloat(0.01)

type LineInput struct {
	Qty          int
	UnitPrice    decimal.Decimal
	LineDiscount decimal.Decimal
}

// Totals is the inclusive-VAT breakdown of a sale. Prices already contain
// the tax, so Total == NetOfDiscount and the taxable base is divided out,
// not added on top.
type Totals struct {
	SubtotalBeforeDiscount decimal.Decimal
	NetOfDiscount          decimal.Decimal
	TaxableBase            decimal.Decimal
	TaxAmount              decimal.Decimal
	Total                  decimal.Decimal
	LineTotals             []decimal.Decimal
}

// Calculate computes the tax-inclusive breakdown for the given lines and the
// overall discount. Amounts are rounded half-up to 2 decimals; TaxAmount is
// derived as Total - TaxableBase so that base + tax reconstructs the total
// exactly. Callers reject negative prices/quantities before this stage.
func Calculate(lines []LineInput, overallDiscount decimal.Decimal, rate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	lineTotals := make([]decimal.Decimal, 0, len(lines))
	for _, line := range lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Qty))).Sub(line.LineDiscount).Round(2)
		lineTotals = append(lineTotals, lineTotal)
		subtotal = subtotal.Add(lineTotal)
	}

	net := subtotal.Sub(overallDiscount).Round(2)
	base := net.Div(decimal.NewFromInt(1).Add(rate)).Round(2)
	tax := net.Sub(base)

	return Totals{
		SubtotalBeforeDiscount: subtotal,
		NetOfDiscount:          net,
		TaxableBase:            base,
		TaxAmount:              tax,
		Total:                  net,
		LineTotals:             lineTotals,
	}
}

// ReconcileSplits checks that every split amount is strictly positive and
// that the tendered sum matches total within Epsilon. It never corrects a
// mismatch silently. The error always reports the full tendered sum, even
// when a non-positive amount is what tripped it.
func ReconcileSplits(splits []domain.PaymentSplitRequest, total decimal.Decimal) error {
	sum := decimal.Zero
	valid := true
	for _, split := range splits {
		if !split.Amount.IsPositive() {
			valid = false
		}
		sum = sum.Add(split.Amount)
	}
	if !valid || sum.Sub(total).Abs().GreaterThan(Epsilon) {
		return &domain.PaymentMismatchError{Expected: total, Actual: sum}
	}
	return nil
}

// Instrument buckets for shift aggregation. Multiple electronic-wallet codes
// collapse into one digital bucket.
const (
	BucketCash    = "cash"
	BucketCard    = "card"
	BucketDigital = "digital"
	BucketCheck   = "check"
	BucketAR      = "ar"
)

// InstrumentAR is the split instrument that routes a charge to the customer's
// AR subledger instead of immediate tender.
const InstrumentAR = "ar"

var instrumentBuckets = map[string]string{
	"cash":    BucketCash,
	"card":    BucketCard,
	"credit":  BucketCard,
	"debit":   BucketCard,
	"gcash":   BucketDigital,
	"maya":    BucketDigital,
	"grabpay": BucketDigital,
	"ewallet": BucketDigital,
	"check":   BucketCheck,
	"cheque":  BucketCheck,
	"ar":      BucketAR,
}

// BucketFor maps a split instrument code to its shift-aggregation bucket.
// Unknown codes fall into the digital bucket rather than being rejected;
// the split itself was already validated upstream.
func BucketFor(instrument string) string {
	if bucket, ok := instrumentBuckets[strings.ToLower(strings.TrimSpace(instrument))]; ok {
		return bucket
	}
	return BucketDigital
}

// KnownInstrument reports whether the code maps to a configured instrument.
func KnownInstrument(instrument string) bool {
	_, ok := instrumentBuckets[strings.ToLower(strings.TrimSpace(instrument))]
	return ok
}

// PrimaryInstrument derives the sale's headline payment method: the
// instrument carrying the largest amount, or "split" when two different
// instruments tie for the largest share.
func PrimaryInstrument(splits []domain.PaymentSplit) string {
	if len(splits) == 0 {
		return BucketCash
	}
	if len(splits) == 1 {
		return strings.ToLower(strings.TrimSpace(splits[0].Instrument))
	}
	largest := splits[0]
	tied := false
	for _, split := range splits[1:] {
		switch {
		case split.Amount.GreaterThan(largest.Amount):
			largest = split
			tied = false
		case split.Amount.Equal(largest.Amount) &&
			!strings.EqualFold(strings.TrimSpace(split.Instrument), strings.TrimSpace(largest.Instrument)):
			tied = true
		}
	}
	if tied {
		return "split"
	}
	return strings.ToLower(strings.TrimSpace(largest.Instrument))
}
