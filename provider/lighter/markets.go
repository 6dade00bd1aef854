package lighter

import (
	"github.com/shopspring/decimal"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

const (
	defaultPriceDecimals = 2
	defaultSizeDecimals  = 6
)

// Markets known at build time, indexed by exchange market id. Used when
// /api/v1/orderBooks is unreachable.
var fallbackBases = []string{
	"ETH", "BTC", "SOL", "DOGE", "1000PEPE", "WIF", "WLD", "XRP", "LINK", "AVAX",
	"NEAR", "DOT", "TON", "TAO", "POL", "TRUMP", "SUI", "1000SHIB", "1000BONK", "1000FLOKI",
	"BERA", "FARTCOIN", "AI16Z", "POPCAT", "HYPE", "BNB", "JUP", "AAVE", "MKR", "ENA",
	"UNI", "APT", "SEI", "KAITO", "IP", "LTC", "CRV", "PENDLE", "ONDO", "ADA",
	"S", "VIRTUAL", "SPX", "TRX", "SYRUP",
}

type precision struct {
	price, size int32
	minBase     string
}

var fallbackPrecision = map[string]precision{
	"ETH":      {2, 4, "0.005"},
	"BTC":      {1, 5, "0.0002"},
	"1000BONK": {6, 0, "500"},
	"BERA":     {5, 1, ""},
	"FARTCOIN": {5, 1, ""},
	"HYPE":     {4, 2, "0.50"},
}

// FallbackMarkets returns the built-in market table.
func FallbackMarkets() []domain.MarketDescriptor {
	out := make([]domain.MarketDescriptor, 0, len(fallbackBases))
	for id, base := range fallbackBases {
		d := domain.MarketDescriptor{
			ID:            id,
			Symbol:        base,
			PriceDecimals: defaultPriceDecimals,
			SizeDecimals:  defaultSizeDecimals,
		}
		if p, ok := fallbackPrecision[base]; ok {
			d.PriceDecimals = p.price
			d.SizeDecimals = p.size
			if p.minBase != "" {
				d.MinBaseAmount = decimal.RequireFromString(p.minBase)
			}
		}
		out = append(out, d)
	}
	return out
}
