package domain

import "github.com/pkg/errors"

var (
	// Bad symbol or market id. Rejected synchronously, never retried.
	ErrUnknownMarket = errors.New("unknown market")
	// Price or quantity cannot be represented at the market's decimal precision.
	ErrPrecisionLoss = errors.New("precision loss")
	// The exchange or the signing collaborator refused the transaction.
	ErrSubmissionFailure = errors.New("submission failure")
	// Book delta discontinuity. Triggers a resync, never reaches callers.
	ErrSequenceGap = errors.New("order book sequence gap")
	// Trade event that could not be associated with any tracked order.
	ErrUnmatchedTrade = errors.New("unmatched trade")

	ErrBookNotReady           = errors.New("order book is not initialized")
	ErrOrderNotFound          = errors.New("order not found")
	ErrDuplicateClientOrderID = errors.New("duplicate client order id")
	ErrInvalidOrder           = errors.New("invalid order")
)

// IsRejection reports whether err is a synchronous validation failure that a
// caller must fix before resubmitting.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnknownMarket) ||
		errors.Is(err, ErrPrecisionLoss) ||
		errors.Is(err, ErrInvalidOrder) ||
		errors.Is(err, ErrDuplicateClientOrderID)
}
