package ledger

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// OctasPerAPT is the number of base units in one APT.
const OctasPerAPT = 100_000_000

const aptDecimals = 8

// Octas returns amount as an exact decimal.
func Octas(amount uint64) decimal.Decimal {
	return decimal.RequireFromString(strconv.FormatUint(amount, 10))
}

// FormatAPT renders an octa amount in APT without trailing zeros, e.g. 1500000 as "0.015".
func FormatAPT(amount uint64) string {
	return Octas(amount).Shift(-aptDecimals).String()
}

// APTToOctas converts an APT quantity to octas, truncating sub-octa precision.
func APTToOctas(apt decimal.Decimal) decimal.Decimal {
	return apt.Shift(aptDecimals).Truncate(0)
}
