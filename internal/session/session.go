// Package session turns resolved settings into ready-to-use PRep readers
// and writers with their request printing and confirmation strategies.
package session

import (
	"io"
	"os"
	"strings"

	"github.com/geometry-infra/preptools/internal/config"
	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/httpx"
	"github.com/geometry-infra/preptools/internal/icon"
	"github.com/geometry-infra/preptools/internal/icon/wallet"
	"github.com/geometry-infra/preptools/internal/log"
	"github.com/geometry-infra/preptools/internal/prep"
)

// PasswordFunc obtains a keystore password interactively.
type PasswordFunc func(prompt string) (string, error)

// Options injects the process collaborators. Zero values fall back to
// stdin, stderr and the terminal password prompt.
type Options struct {
	Stdin      io.Reader
	Stderr     io.Writer
	HTTPClient *httpx.Client
	Password   PasswordFunc
	// Approver replaces the print or confirm strategy when set.
	Approver prep.Approver
}

func (o Options) withDefaults() Options {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Password == nil {
		o.Password = TerminalPassword(o.Stderr)
	}
	return o
}

// NewReader builds a reader that prints every request before sending it.
func NewReader(settings config.Settings, opts Options) (*prep.Reader, error) {
	opts = opts.withDefaults()
	client, err := newClient(settings, opts)
	if err != nil {
		return nil, err
	}
	approver := opts.Approver
	if approver == nil {
		approver = PrintApprover(opts.Stderr)
	}
	log.Session.Debug().Str("url", client.Endpoint()).Int64("nid", settings.NID).Msg("reader ready")
	return prep.NewReader(client, settings.NID, approver), nil
}

// NewWriter unlocks the keystore and builds a writer that asks for
// confirmation unless settings.Yes is set. Keystore failures are returned
// as keystore errors before any network traffic.
func NewWriter(settings config.Settings, opts Options) (*prep.Writer, error) {
	opts = opts.withDefaults()
	client, err := newClient(settings, opts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(settings.KeystorePath) == "" {
		return nil, clierr.New(clierr.CodeUsage, "keystore path is required (--keystore)")
	}
	password := settings.Password
	if password == "" {
		password, err = opts.Password("> Password: ")
		if err != nil {
			return nil, clierr.Keystore("read password", err)
		}
	}
	w, err := wallet.Load(settings.KeystorePath, password)
	if err != nil {
		return nil, err
	}
	approver := opts.Approver
	if approver == nil {
		approver = ConfirmApprover(opts.Stdin, opts.Stderr, settings.Yes)
	}
	log.Session.Debug().
		Str("url", client.Endpoint()).
		Int64("nid", settings.NID).
		Str("address", w.Address()).
		Msg("writer ready")
	return prep.NewWriter(client, w, settings.NID, approver, settings.StepLimit), nil
}

func newClient(settings config.Settings, opts Options) (*icon.Client, error) {
	endpoint, err := icon.ResolveURL(settings.URL)
	if err != nil {
		return nil, err
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpx.New(settings.Timeout)
	}
	return icon.NewClient(endpoint, hc), nil
}
