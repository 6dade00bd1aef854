package helpers

import (
	"strconv"
	"strings"
)

// IntToString converts int64 to string.
func IntToString(i int64) string {
	return strconv.FormatInt(i, 10)
}

// SplitChannel splits "order_book:0", "order_book/0" or
// "account_market/12/0" into its segments.
func SplitChannel(channel string) []string {
	return strings.FieldsFunc(channel, func(r rune) bool {
		return r == ':' || r == '/'
	})
}
