package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/geometry-infra/preptools/internal/errors"
)

// ParseQuantity parses a non-negative integer given either as decimal or as
// a 0x-prefixed hex string.
func ParseQuantity(raw string) (*big.Int, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return nil, clierr.New(clierr.CodeUsage, "empty numeric value")
	}
	var (
		out *big.Int
		ok  bool
	)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		out, ok = new(big.Int).SetString(clean[2:], 16)
	} else {
		out, ok = new(big.Int).SetString(clean, 10)
	}
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid numeric value %q", raw))
	}
	if out.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("value must be non-negative: %q", raw))
	}
	return out, nil
}

// ParseNID parses a network id in decimal or hex form.
func ParseNID(raw string) (int64, error) {
	v, err := ParseQuantity(raw)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() || v.Sign() == 0 {
		return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid network id %q", raw))
	}
	return v.Int64(), nil
}

// Hex encodes a quantity the way the JSON-RPC v3 API expects it.
func Hex(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(v)
}

// HexInt64 encodes an int64 quantity.
func HexInt64(v int64) string {
	return hexutil.EncodeBig(big.NewInt(v))
}
