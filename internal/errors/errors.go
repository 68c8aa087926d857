package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess  Code = 0
	CodeInternal Code = 1
	// CodeKeystore shares exit status 1 with internal failures; scripts that
	// wrap the CLI depend on a bad password exiting with 1.
	CodeKeystore Code = 1
	CodeUsage    Code = 2
	CodeConfig   Code = 3
	CodeRPC      Code = 12
	CodeSigner   Code = 13
	CodeBlocked  Code = 16
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Kind    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Kind: kindFor(code), Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Kind: kindFor(code), Message: message, Cause: cause}
}

// Keystore builds a keystore failure. Kept separate from Wrap because
// CodeKeystore and CodeInternal share a numeric value.
func Keystore(message string, cause error) *Error {
	return &Error{Code: CodeKeystore, Kind: KindKeystore, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind string) bool {
	cliErr, ok := As(err)
	return ok && cliErr.Kind == kind
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

const (
	KindInternal = "internal_error"
	KindKeystore = "keystore_error"
	KindUsage    = "usage_error"
	KindConfig   = "config_error"
	KindRPC      = "rpc_error"
	KindSigner   = "signer_error"
	KindBlocked  = "command_blocked"
)

func kindFor(code Code) string {
	switch code {
	case CodeUsage:
		return KindUsage
	case CodeConfig:
		return KindConfig
	case CodeRPC:
		return KindRPC
	case CodeSigner:
		return KindSigner
	case CodeBlocked:
		return KindBlocked
	default:
		return KindInternal
	}
}
