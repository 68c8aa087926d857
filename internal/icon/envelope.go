package icon

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/units"
)

const (
	MethodCall                 = "icx_call"
	MethodSendTransaction      = "icx_sendTransaction"
	MethodGetTransactionResult = "icx_getTransactionResult"
	MethodGetTransactionByHash = "icx_getTransactionByHash"

	TxVersion    = 3
	DataTypeCall = "call"
)

// Envelope is an outbound JSON-RPC request as the node will receive it.
type Envelope interface {
	// RPCMethod returns the JSON-RPC method, e.g. icx_call.
	RPCMethod() string
	// Fields returns a fresh copy of the JSON-RPC params object.
	Fields() map[string]any
}

// CallRequest is a read-only score call.
type CallRequest struct {
	From   string
	To     string
	Method string
	Params map[string]any
}

// NewCallRequest builds a governance query sent from the EOA placeholder.
func NewCallRequest(method string, params map[string]any) CallRequest {
	return CallRequest{
		From:   EOAPlaceholder,
		To:     GovernanceAddress,
		Method: method,
		Params: copyParams(params),
	}
}

func (c CallRequest) RPCMethod() string { return MethodCall }

func (c CallRequest) Fields() map[string]any {
	data := map[string]any{"method": c.Method}
	if c.Params != nil {
		data["params"] = copyParams(c.Params)
	}
	return map[string]any{
		"from":     c.From,
		"to":       c.To,
		"dataType": DataTypeCall,
		"data":     data,
	}
}

// LookupRequest is a by-hash chain lookup such as icx_getTransactionResult.
type LookupRequest struct {
	Method string
	TxHash string
}

func (l LookupRequest) RPCMethod() string { return l.Method }

func (l LookupRequest) Fields() map[string]any {
	return map[string]any{"txHash": l.TxHash}
}

// Transaction is an unsigned v3 score-call transaction.
type Transaction struct {
	From      string
	To        string
	StepLimit *big.Int
	Value     *big.Int
	NID       int64
	Nonce     *big.Int
	Timestamp int64
	Method    string
	Params    map[string]any
}

func (t *Transaction) RPCMethod() string { return MethodSendTransaction }

func (t *Transaction) Fields() map[string]any {
	data := map[string]any{"method": t.Method}
	if t.Params != nil {
		data["params"] = copyParams(t.Params)
	}
	fields := map[string]any{
		"version":   units.HexInt64(TxVersion),
		"from":      t.From,
		"to":        t.To,
		"stepLimit": units.Hex(t.StepLimit),
		"timestamp": units.HexInt64(t.Timestamp),
		"nid":       units.HexInt64(t.NID),
		"value":     units.Hex(t.Value),
		"dataType":  DataTypeCall,
		"data":      data,
	}
	if t.Nonce != nil {
		fields["nonce"] = units.Hex(t.Nonce)
	}
	return fields
}

// Validate checks the routing fields before the transaction is signed.
func (t *Transaction) Validate() error {
	if err := ValidateEOA(t.From); err != nil {
		return err
	}
	if err := ValidateAddress(t.To); err != nil {
		return err
	}
	if strings.TrimSpace(t.Method) == "" {
		return clierr.New(clierr.CodeUsage, "transaction method is required")
	}
	if t.StepLimit == nil || t.StepLimit.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "step limit must be positive")
	}
	if t.Value != nil && t.Value.Sign() < 0 {
		return clierr.New(clierr.CodeUsage, "value must be non-negative")
	}
	if t.NID <= 0 {
		return clierr.New(clierr.CodeUsage, "network id must be positive")
	}
	return nil
}

// Hash returns the SHA3-256 digest that the wallet signs.
func (t *Transaction) Hash() []byte {
	return TxHash(t.Fields())
}

// Signer produces a recoverable signature over a transaction hash.
type Signer interface {
	Address() string
	Sign(hash []byte) ([]byte, error)
}

// SignedTransaction is a transaction plus the sender's signature.
type SignedTransaction struct {
	tx        *Transaction
	hash      []byte
	signature string
}

// Sign validates tx and signs it with s. The signer must own tx.From.
func Sign(tx *Transaction, s Signer) (*SignedTransaction, error) {
	if tx == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing transaction")
	}
	if s == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing signer")
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if s.Address() != tx.From {
		return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("signer %s does not own sender %s", s.Address(), tx.From))
	}
	hash := tx.Hash()
	sig, err := s.Sign(hash)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	return &SignedTransaction{
		tx:        tx,
		hash:      hash,
		signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

func (s *SignedTransaction) RPCMethod() string { return MethodSendTransaction }

func (s *SignedTransaction) Fields() map[string]any {
	fields := s.tx.Fields()
	fields["signature"] = s.signature
	return fields
}

// TxHash returns the 0x-prefixed transaction hash.
func (s *SignedTransaction) TxHash() string {
	return fmt.Sprintf("0x%x", s.hash)
}

// Signature returns the base64 signature.
func (s *SignedTransaction) Signature() string { return s.signature }

// Transaction returns the unsigned transaction.
func (s *SignedTransaction) Transaction() *Transaction { return s.tx }

func copyParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyParams(nested)
			continue
		}
		out[k] = v
	}
	return out
}
