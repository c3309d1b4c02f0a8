package core

// pricing.go relates purchase price, sale price and margin percentage under
// the two VAT regimes.
//
//	normal: margin% = (HT - purchase) / purchase * 100
//	        HT      = purchase * (1 + margin%/100), TTC = HT * 1.20
//	margin: net     = (price - purchase) / 1.20   (price is TTC)
//	        margin% = net / purchase * 100
//	        price   = purchase + purchase*margin%/100 * 1.20
//
// MarginFromPrice and PriceFromMargin are exact inverses; only ResolveTier
// rounds, and only the values it returns for storage.

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// VATRate is the fixed VAT rate.
	VATRate = decimal.RequireFromString("0.20")
	// VATMultiplier converts HT to TTC.
	VATMultiplier = decimal.NewFromInt(1).Add(VATRate)

	hundred = decimal.NewFromInt(100)
)

// ErrPurchaseNotPositive is returned when a margin would be derived from a
// purchase price of zero or less.
var ErrPurchaseNotPositive = errors.New("purchase price must be greater than 0")

// Tier is a price tier. Both tiers run the same formulas.
type Tier string

const (
	TierRetail Tier = "retail"
	TierPro    Tier = "pro"
)

// PriceColumn returns the file column carrying the tier's sale price.
func (t Tier) PriceColumn() string {
	if t == TierPro {
		return "pro_price"
	}
	return "retail_price"
}

// MarginColumn returns the file column carrying the tier's margin percent.
func (t Tier) MarginColumn() string {
	if t == TierPro {
		return "pro_margin_percent"
	}
	return "margin_percent"
}

func (t Tier) label() string {
	if t == TierPro {
		return "prix pro"
	}
	return "prix public"
}

// TierInput is what a row supplies for one tier: a sale price or a margin
// percent, never both.
type TierInput struct {
	Price  decimal.NullDecimal
	Margin decimal.NullDecimal
}

// TierQuote is the stored outcome for one tier, rounded to 2 places.
type TierQuote struct {
	Price  decimal.Decimal
	Margin decimal.Decimal
}

// ToTTC converts a price excluding tax to a price including tax.
func ToTTC(ht decimal.Decimal) decimal.Decimal {
	return ht.Mul(VATMultiplier)
}

// ToHT converts a price including tax to a price excluding tax.
func ToHT(ttc decimal.Decimal) decimal.Decimal {
	return ttc.Div(VATMultiplier)
}

// NetMargin is the VAT-on-margin net margin of selling at price.
func NetMargin(purchase, price decimal.Decimal) decimal.Decimal {
	return price.Sub(purchase).Div(VATMultiplier)
}

// MarginFromPrice derives the margin percent earned by selling at price.
func MarginFromPrice(vat VatType, purchase, price decimal.Decimal) (decimal.Decimal, error) {
	if !purchase.IsPositive() {
		return decimal.Zero, ErrPurchaseNotPositive
	}
	if vat == VatMargin {
		return NetMargin(purchase, price).Div(purchase).Mul(hundred), nil
	}
	return price.Sub(purchase).Div(purchase).Mul(hundred), nil
}

// PriceFromMargin derives the sale price that yields margin percent.
func PriceFromMargin(vat VatType, purchase, margin decimal.Decimal) decimal.Decimal {
	if vat == VatMargin {
		net := purchase.Mul(margin).Div(hundred)
		return purchase.Add(net.Mul(VATMultiplier))
	}
	return purchase.Mul(hundred.Add(margin)).Div(hundred)
}

// ResolveTier validates a tier's input and derives the missing value.
// Supplying both a price and a margin, or neither, is a *ValidationError.
func ResolveTier(tier Tier, vat VatType, purchase decimal.Decimal, in TierInput) (TierQuote, error) {
	switch {
	case in.Price.Valid && in.Margin.Valid:
		return TierQuote{}, invalid(tier.PriceColumn(), msgChooseOne, tier.label())

	case in.Price.Valid:
		margin, err := MarginFromPrice(vat, purchase, in.Price.Decimal)
		if err != nil {
			return TierQuote{}, invalid(tier.PriceColumn(), msgPurchaseRequired, tier.label())
		}
		return TierQuote{Price: in.Price.Decimal.Round(2), Margin: margin.Round(2)}, nil

	case in.Margin.Valid:
		price := PriceFromMargin(vat, purchase, in.Margin.Decimal)
		return TierQuote{Price: price.Round(2), Margin: in.Margin.Decimal.Round(2)}, nil

	default:
		return TierQuote{}, invalid(tier.PriceColumn(), msgOneRequired, tier.label())
	}
}
