// Package policy restricts which commands an invocation may run.
package policy

import (
	"fmt"
	"strings"

	clierr "github.com/geometry-infra/preptools/internal/errors"
)

// Command classes usable in an allowlist in place of command names.
const (
	ClassRead  = "read"
	ClassWrite = "write"
)

// CheckCommandAllowed accepts the command when the allowlist is empty or
// names either the command itself or its class. Class is empty for local
// commands such as schema and version, which are always allowed.
func CheckCommandAllowed(allowlist []string, commandPath, class string) error {
	if len(allowlist) == 0 || class == "" {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		norm := normalize(allowed)
		if norm == normPath || norm == class {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("%s command %q blocked by --enable-commands policy", class, commandPath))
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
