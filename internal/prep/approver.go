// Package prep dispatches PRep governance reads and writes.
//
// Every outbound envelope goes through exactly one Approver before it is
// sent. For reads the verdict is ignored; for writes a false verdict
// drops the transaction before it is signed.
package prep

import "github.com/geometry-infra/preptools/internal/icon"

// Approver observes or gates an outbound request.
type Approver interface {
	Approve(env icon.Envelope) bool
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(env icon.Envelope) bool

func (f ApproverFunc) Approve(env icon.Envelope) bool { return f(env) }

var (
	// AutoApprove lets every request through. Sessions built with a nil
	// approver use it.
	AutoApprove Approver = ApproverFunc(func(icon.Envelope) bool { return true })
	// Deny rejects every write. Reads still proceed.
	Deny Approver = ApproverFunc(func(icon.Envelope) bool { return false })
)

func resolveApprover(a Approver) Approver {
	if a == nil {
		return AutoApprove
	}
	return a
}
