package icon

import (
	"fmt"
	"regexp"
	"strings"

	clierr "github.com/geometry-infra/preptools/internal/errors"
)

const (
	// GovernanceAddress is the system score that handles every PRep call.
	GovernanceAddress = "cx0000000000000000000000000000000000000000"
	// EOAPlaceholder is the sender used for read-only calls.
	EOAPlaceholder = "hx0000000000000000000000000000000000000000"
)

var (
	addressPattern = regexp.MustCompile(`^(hx|cx)[0-9a-f]{40}$`)
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
)

// ValidateAddress checks an hx (account) or cx (contract) address.
func ValidateAddress(addr string) error {
	if !addressPattern.MatchString(addr) {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid address %q: expected hx or cx followed by 40 lowercase hex characters", addr))
	}
	return nil
}

// ValidateEOA checks an hx address.
func ValidateEOA(addr string) error {
	if err := ValidateAddress(addr); err != nil {
		return err
	}
	if !strings.HasPrefix(addr, "hx") {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid address %q: expected an hx account address", addr))
	}
	return nil
}

// NormalizeTxHash accepts a transaction hash with or without the 0x prefix.
func NormalizeTxHash(hash string) (string, error) {
	clean := strings.ToLower(strings.TrimSpace(hash))
	if !strings.HasPrefix(clean, "0x") {
		clean = "0x" + clean
	}
	if !txHashPattern.MatchString(clean) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid transaction hash %q", hash))
	}
	return clean, nil
}
