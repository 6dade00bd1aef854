package domain

import (
	"math"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// MarketDescriptor is a market as reported by the exchange metadata source.
type MarketDescriptor struct {
	ID            int
	Symbol        string
	PriceDecimals int32
	SizeDecimals  int32
	MinBaseAmount decimal.Decimal
}

type Market struct {
	ID            int
	Symbol        MarketSymbol
	PriceDecimals int32
	SizeDecimals  int32
	MinBaseAmount decimal.Decimal
}

func NewMarket(d MarketDescriptor) (*Market, error) {
	symbol, err := NewMarketSymbolFromString(d.Symbol)
	if err != nil {
		// the metadata endpoint reports bare base assets, e.g. "ETH"
		symbol, err = NewMarketSymbol(d.Symbol, DefaultQuoteAsset)
		if err != nil {
			return nil, errors.Wrapf(err, "market %d", d.ID)
		}
	}
	if d.ID < 0 {
		return nil, errors.Errorf("market %s: negative id %d", symbol, d.ID)
	}
	if d.PriceDecimals < 0 || d.SizeDecimals < 0 {
		return nil, errors.Errorf("market %s: negative decimals", symbol)
	}

	return &Market{
		ID:            d.ID,
		Symbol:        *symbol,
		PriceDecimals: d.PriceDecimals,
		SizeDecimals:  d.SizeDecimals,
		MinBaseAmount: d.MinBaseAmount,
	}, nil
}

// PriceToFixed converts a human price into the exchange integer encoding.
func (m *Market) PriceToFixed(price decimal.Decimal) (int64, error) {
	v, err := ToFixedPoint(price, m.PriceDecimals)
	return v, errors.Wrap(err, "price")
}

// SizeToFixed converts a base amount into the exchange integer encoding.
func (m *Market) SizeToFixed(size decimal.Decimal) (int64, error) {
	v, err := ToFixedPoint(size, m.SizeDecimals)
	return v, errors.Wrap(err, "size")
}

func (m *Market) PriceFromFixed(v int64) decimal.Decimal {
	return decimal.New(v, -m.PriceDecimals)
}

func (m *Market) SizeFromFixed(v int64) decimal.Decimal {
	return decimal.New(v, -m.SizeDecimals)
}

var maxFixed = decimal.NewFromInt(math.MaxInt64)

// ToFixedPoint scales v by 10^decimals. Values that would need rounding are
// rejected with ErrPrecisionLoss.
func ToFixedPoint(v decimal.Decimal, decimals int32) (int64, error) {
	scaled := v.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, errors.Wrapf(ErrPrecisionLoss, "%s has more than %d decimals", v.String(), decimals)
	}
	if scaled.Abs().GreaterThan(maxFixed) {
		return 0, errors.Wrapf(ErrPrecisionLoss, "%s overflows the fixed point range", v.String())
	}
	return scaled.IntPart(), nil
}
