package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/geometry-infra/preptools/internal/errors"
)

// ICXDecimals is the number of decimal places between ICX and loop.
const ICXDecimals = 18

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// NormalizeAmount accepts exactly one of a base-unit (loop) amount or a
// decimal amount and returns the loop value. Base units may be decimal or
// 0x-prefixed hex.
func NormalizeAmount(baseUnits, decimal string, decimals int) (*big.Int, error) {
	baseUnits = strings.TrimSpace(baseUnits)
	decimal = strings.TrimSpace(decimal)
	if baseUnits != "" && decimal != "" {
		return nil, clierr.New(clierr.CodeUsage, "use either the base-unit or the decimal amount, not both")
	}
	if baseUnits == "" && decimal == "" {
		return nil, clierr.New(clierr.CodeUsage, "amount is required")
	}
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	if baseUnits != "" {
		return ParseQuantity(baseUnits)
	}
	if !decimalPattern.MatchString(decimal) {
		return nil, clierr.New(clierr.CodeUsage, "decimal amount must be in decimal form like 1.23")
	}
	return decimalToBaseUnits(decimal, decimals)
}

// ICX converts a whole number of ICX into loop.
func ICX(n int64) *big.Int {
	v := new(big.Int).Exp(big.NewInt(10), big.NewInt(ICXDecimals), nil)
	return v.Mul(v, big.NewInt(n))
}

// FormatICX renders a loop amount as a decimal ICX string.
func FormatICX(loop *big.Int) string {
	if loop == nil {
		return "0"
	}
	return formatDecimal(loop, ICXDecimals)
}

func formatDecimal(n *big.Int, decimals int) string {
	if decimals == 0 {
		return n.String()
	}
	neg := n.Sign() < 0
	s := new(big.Int).Abs(n).String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

func decimalToBaseUnits(decimal string, decimals int) (*big.Int, error) {
	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds %d places", decimals))
	}
	combined := strings.TrimLeft(intPart+fracPart+strings.Repeat("0", decimals-len(fracPart)), "0")
	if combined == "" {
		return new(big.Int), nil
	}
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, "invalid decimal amount")
	}
	return out, nil
}
