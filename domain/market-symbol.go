package domain

import (
	"fmt"
	"strings"
)

const (
	DefaultQuoteAsset = "USDC"
	VenueName         = "LIGHTER"
)

type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base string, quote string) (*MarketSymbol, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return nil, fmt.Errorf("base and quote must not be empty")
	}
	if base == quote {
		return nil, fmt.Errorf("base and quote must be different")
	}
	return &MarketSymbol{
		BaseAsset:  base,
		QuoteAsset: quote,
	}, nil
}

// NewMarketSymbolFromString parses "BTC-USDC", "BTC_USDC", "BTC/USDC" and the
// venue form "BTC-USDC LIGHTER Perpetual/USDC Crypto".
func NewMarketSymbolFromString(s string) (*MarketSymbol, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}

	split := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == '/'
	})
	if len(split) != 2 {
		return nil, fmt.Errorf("invalid symbol string %q", s)
	}

	return NewMarketSymbol(split[0], split[1])
}

func (ms *MarketSymbol) Join(separator string) string {
	return fmt.Sprintf("%s%s%s", ms.BaseAsset, separator, ms.QuoteAsset)
}

// String returns the canonical form, e.g. BTC-USDC.
func (ms *MarketSymbol) String() string {
	return ms.Join("-")
}

// VenueSymbol is the symbol downstream consumers key books by.
func (ms *MarketSymbol) VenueSymbol() string {
	return fmt.Sprintf("%s %s Perpetual/%s Crypto", ms.String(), VenueName, ms.QuoteAsset)
}

func (ms *MarketSymbol) Equal(other *MarketSymbol) bool {
	return ms.BaseAsset == other.BaseAsset && ms.QuoteAsset == other.QuoteAsset
}
