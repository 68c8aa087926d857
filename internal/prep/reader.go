package prep

import (
	"context"
	"encoding/json"

	"github.com/geometry-infra/preptools/internal/icon"
	"github.com/geometry-infra/preptools/internal/log"
	"github.com/geometry-infra/preptools/internal/units"
)

// QueryClient is the read half of the node API.
type QueryClient interface {
	Call(ctx context.Context, call icon.CallRequest) (json.RawMessage, error)
	GetTransactionResult(ctx context.Context, txHash string) (json.RawMessage, error)
	GetTransactionByHash(ctx context.Context, txHash string) (json.RawMessage, error)
}

// Reader issues free governance queries. It never holds a wallet.
type Reader struct {
	client   QueryClient
	nid      int64
	from     string
	approver Approver
}

// NewReader builds a reader that sends from the EOA placeholder. A nil
// approver is replaced by AutoApprove.
func NewReader(client QueryClient, nid int64, approver Approver) *Reader {
	return &Reader{
		client:   client,
		nid:      nid,
		from:     icon.EOAPlaceholder,
		approver: resolveApprover(approver),
	}
}

// GetPRep returns the registration and delegation state of one PRep.
func (r *Reader) GetPRep(ctx context.Context, address string) (json.RawMessage, error) {
	if err := icon.ValidateAddress(address); err != nil {
		return nil, err
	}
	return r.call(ctx, MethodGetPRep, map[string]any{"address": address})
}

// GetPRepsParams selects a ranking window. Zero values are omitted.
type GetPRepsParams struct {
	StartRanking int64
	EndRanking   int64
	BlockHeight  int64
}

func (p GetPRepsParams) fields() map[string]any {
	out := map[string]any{}
	if p.StartRanking > 0 {
		out["startRanking"] = units.HexInt64(p.StartRanking)
	}
	if p.EndRanking > 0 {
		out["endRanking"] = units.HexInt64(p.EndRanking)
	}
	if p.BlockHeight > 0 {
		out["blockHeight"] = units.HexInt64(p.BlockHeight)
	}
	return out
}

// GetPReps lists PReps ordered by delegation.
func (r *Reader) GetPReps(ctx context.Context, params GetPRepsParams) (json.RawMessage, error) {
	fields := params.fields()
	if len(fields) == 0 {
		fields = nil
	}
	return r.call(ctx, MethodGetPReps, fields)
}

// GetMainPReps lists the PReps producing blocks in the current term.
func (r *Reader) GetMainPReps(ctx context.Context) (json.RawMessage, error) {
	return r.call(ctx, MethodGetMainPReps, nil)
}

// GetSubPReps lists the backup PReps of the current term.
func (r *Reader) GetSubPReps(ctx context.Context) (json.RawMessage, error) {
	return r.call(ctx, MethodGetSubPReps, nil)
}

// GetPRepTerm returns the current term boundaries and irep.
func (r *Reader) GetPRepTerm(ctx context.Context) (json.RawMessage, error) {
	return r.call(ctx, MethodGetPRepTerm, nil)
}

// GetTransactionResult looks up a receipt.
func (r *Reader) GetTransactionResult(ctx context.Context, txHash string) (json.RawMessage, error) {
	hash, err := icon.NormalizeTxHash(txHash)
	if err != nil {
		return nil, err
	}
	r.approver.Approve(icon.LookupRequest{Method: icon.MethodGetTransactionResult, TxHash: hash})
	return r.client.GetTransactionResult(ctx, hash)
}

// GetTransaction looks up a transaction by hash.
func (r *Reader) GetTransaction(ctx context.Context, txHash string) (json.RawMessage, error) {
	hash, err := icon.NormalizeTxHash(txHash)
	if err != nil {
		return nil, err
	}
	r.approver.Approve(icon.LookupRequest{Method: icon.MethodGetTransactionByHash, TxHash: hash})
	return r.client.GetTransactionByHash(ctx, hash)
}

func (r *Reader) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	req := icon.NewCallRequest(method, params)
	req.From = r.from
	// Reads are never gated.
	r.approver.Approve(req)
	log.PRep.Debug().Str("method", method).Msg("governance query")
	return r.client.Call(ctx, req)
}
