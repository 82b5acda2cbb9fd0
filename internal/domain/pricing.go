package domain

import "github.com/shopspring/decimal"

// ReferralPipAdjustment is the fixed rate bonus a valid referral or
// coupon code grants: added to the buy rate, subtracted from the sell
// rate, favouring the customer in both directions.
var ReferralPipAdjustment = decimal.RequireFromString("0.003")

// amountPlaces is the display precision of monetary amounts.
const amountPlaces = 2

// Quote is a non-authoritative price computation for display. The
// backend recomputes and owns the real numbers on operation creation.
type Quote struct {
	Direction     Direction       `json:"direction"`
	AmountIn      decimal.Decimal `json:"amountIn"`
	AmountOut     decimal.Decimal `json:"amountOut"`
	RateUsed      decimal.Decimal `json:"rateUsed"`
	DiscountPips  decimal.Decimal `json:"discountPips"`
	SourceCcy     string          `json:"sourceCurrency"`
	DestCcy       string          `json:"destinationCurrency"`
	RateTimestamp string          `json:"rateTimestamp"`
}

// EffectiveRate applies the discount to the quoted rate for the given
// direction. A zero discount returns the rate untouched.
func EffectiveRate(rate ExchangeRate, dir Direction, discount decimal.Decimal) decimal.Decimal {
	if dir == DirectionBuy {
		return rate.BuyRate.Add(discount)
	}
	return rate.SellRate.Sub(discount)
}

// ComputeQuote converts the entered amount at the effective rate.
// Buy: PEN received = USD entered x (buyRate + discount).
// Sell: USD received = PEN entered / (sellRate - discount).
// Deterministic: identical inputs always yield identical output.
func ComputeQuote(rate ExchangeRate, dir Direction, amountIn, discount decimal.Decimal) (Quote, error) {
	if !dir.Valid() {
		return Quote{}, &ErrValidation{Field: "direction", Message: "must be buy or sell"}
	}
	if amountIn.LessThanOrEqual(decimal.Zero) {
		return Quote{}, &ErrValidation{Field: "amount", Message: "amount must be greater than zero"}
	}

	effective := EffectiveRate(rate, dir, discount)
	if effective.LessThanOrEqual(decimal.Zero) {
		return Quote{}, &ErrRateUnavailable{}
	}

	var out decimal.Decimal
	if dir == DirectionBuy {
		out = amountIn.Mul(effective)
	} else {
		out = amountIn.DivRound(effective, amountPlaces+4)
	}

	return Quote{
		Direction:     dir,
		AmountIn:      amountIn.Round(amountPlaces),
		AmountOut:     out.Round(amountPlaces),
		RateUsed:      effective,
		DiscountPips:  discount,
		SourceCcy:     dir.SourceCurrency(),
		DestCcy:       dir.DestinationCurrency(),
		RateTimestamp: rate.AsOf.Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}
