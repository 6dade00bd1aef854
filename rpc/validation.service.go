package rpc

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

type ValidationServiceConfig struct {
	AvailableVenues []string
	MaxBookDepth    int
}

// ValidationService turns RPC requests into domain commands, rejecting
// malformed input before it reaches the engines.
type ValidationService struct {
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	if config.MaxBookDepth <= 0 {
		config.MaxBookDepth = 100
	}
	return &ValidationService{
		config: config,
	}
}

// IsSupportedVenue accepts an empty venue, meaning any.
func (s *ValidationService) IsSupportedVenue(venue string) bool {
	if venue == "" {
		return true
	}
	for _, v := range s.config.AvailableVenues {
		if strings.EqualFold(v, venue) {
			return true
		}
	}
	return false
}

func (s *ValidationService) PlaceOrderCommand(in *PlaceOrderRequest) (*domain.PlaceOrderCommand, error) {
	side, err := domain.ParseSide(in.Side)
	if err != nil {
		return nil, err
	}
	tif, err := domain.ParseTimeInForce(in.TimeInForce)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimal("price", in.Price)
	if err != nil {
		return nil, err
	}
	quantity, err := parseDecimal("quantity", in.Quantity)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Symbol) == "" {
		return nil, errors.Wrap(domain.ErrInvalidOrder, "symbol is empty")
	}

	cmd := &domain.PlaceOrderCommand{
		ClientOrderID: strings.TrimSpace(in.ClientOrderID),
		Symbol:        in.Symbol,
		Side:          side,
		Price:         price,
		Quantity:      quantity,
		TimeInForce:   tif,
		ReduceOnly:    in.ReduceOnly,
		PostOnly:      in.PostOnly,
		Account:       in.Account,
		Trader:        in.Trader,
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (s *ValidationService) Scope(in *OrderScope) (domain.CancelAllScope, error) {
	if !s.IsSupportedVenue(in.Venue) {
		return domain.CancelAllScope{}, errors.Wrapf(domain.ErrInvalidOrder, "venue %s is not supported", in.Venue)
	}
	return domain.CancelAllScope{Account: in.Account, Venue: in.Venue, Trader: in.Trader}, nil
}

func (s *ValidationService) ClientOrderID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.Wrap(domain.ErrInvalidOrder, "client order id is empty")
	}
	return id, nil
}

func (s *ValidationService) Depth(depth int) (int, error) {
	if depth < 0 || depth > s.config.MaxBookDepth {
		return 0, errors.Wrapf(domain.ErrInvalidOrder, "depth %d outside 0..%d", depth, s.config.MaxBookDepth)
	}
	return depth, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidOrder, "%s %q", field, value)
	}
	return d, nil
}
