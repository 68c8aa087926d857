package prep

import (
	"context"
	"math/big"
	"time"

	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/icon"
	"github.com/geometry-infra/preptools/internal/log"
)

// Step limits in steps.
var (
	DefaultStepLimit     = big.NewInt(0x10000000)
	DefaultCallStepLimit = big.NewInt(0x50000000)
)

// TxClient is the write half of the node API.
type TxClient interface {
	SendTransaction(ctx context.Context, tx *icon.SignedTransaction) (*icon.Response, error)
}

// Writer builds, confirms, signs and sends governance transactions.
type Writer struct {
	client    TxClient
	signer    icon.Signer
	nid       int64
	approver  Approver
	stepLimit *big.Int
	now       func() time.Time
}

// NewWriter binds a signer to a network. A nil approver is replaced by
// AutoApprove; a nil stepLimit by DefaultStepLimit.
func NewWriter(client TxClient, signer icon.Signer, nid int64, approver Approver, stepLimit *big.Int) *Writer {
	if stepLimit == nil {
		stepLimit = DefaultStepLimit
	}
	return &Writer{
		client:    client,
		signer:    signer,
		nid:       nid,
		approver:  resolveApprover(approver),
		stepLimit: new(big.Int).Set(stepLimit),
		now:       time.Now,
	}
}

// Address returns the sender address.
func (w *Writer) Address() string { return w.signer.Address() }

// RegisterPRep registers the sender with the registration stake attached.
func (w *Writer) RegisterPRep(ctx context.Context, fields PRepFields) (*icon.Response, error) {
	return w.Submit(ctx, RegisterPRep{PRepFields: fields})
}

// UnregisterPRep withdraws the sender's registration.
func (w *Writer) UnregisterPRep(ctx context.Context) (*icon.Response, error) {
	return w.Submit(ctx, UnregisterPRep{})
}

// SetPRep updates registration details.
func (w *Writer) SetPRep(ctx context.Context, fields PRepFields) (*icon.Response, error) {
	return w.Submit(ctx, SetPRep{PRepFields: fields})
}

// SetGovernanceVariables proposes a new irep.
func (w *Writer) SetGovernanceVariables(ctx context.Context, irep *big.Int) (*icon.Response, error) {
	return w.Submit(ctx, SetGovernanceVariables{IRep: irep})
}

// Submit sends op to the governance score with the writer's step limit.
// It returns (nil, nil) when the approver declines.
func (w *Writer) Submit(ctx context.Context, op Operation) (*icon.Response, error) {
	if op == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing operation")
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return w.send(ctx, op.Method(), op.Params(), w.stepLimit, op.Value())
}

type callConfig struct {
	stepLimit *big.Int
	value     *big.Int
}

// CallOption overrides a transaction field of Writer.Call.
type CallOption func(*callConfig)

// WithStepLimit sets the step limit of a raw call.
func WithStepLimit(limit *big.Int) CallOption {
	return func(c *callConfig) {
		if limit != nil {
			c.stepLimit = limit
		}
	}
}

// WithValue attaches loop to a raw call.
func WithValue(value *big.Int) CallOption {
	return func(c *callConfig) {
		if value != nil {
			c.value = value
		}
	}
}

// Call sends an arbitrary governance method. It defaults to
// DefaultCallStepLimit and zero value.
func (w *Writer) Call(ctx context.Context, method string, params map[string]any, opts ...CallOption) (*icon.Response, error) {
	cfg := callConfig{stepLimit: DefaultCallStepLimit, value: new(big.Int)}
	for _, opt := range opts {
		opt(&cfg)
	}
	return w.send(ctx, method, params, cfg.stepLimit, cfg.value)
}

func (w *Writer) send(ctx context.Context, method string, params map[string]any, stepLimit, value *big.Int) (*icon.Response, error) {
	tx := &icon.Transaction{
		From:      w.signer.Address(),
		To:        icon.GovernanceAddress,
		StepLimit: new(big.Int).Set(stepLimit),
		Value:     new(big.Int).Set(value),
		NID:       w.nid,
		Timestamp: w.now().UnixMicro(),
		Method:    method,
		Params:    params,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if !w.approver.Approve(tx) {
		log.PRep.Info().Str("method", method).Msg("transaction declined")
		return nil, nil
	}
	signed, err := icon.Sign(tx, w.signer)
	if err != nil {
		return nil, err
	}
	log.PRep.Debug().Str("method", method).Str("txHash", signed.TxHash()).Msg("sending transaction")
	return w.client.SendTransaction(ctx, signed)
}
