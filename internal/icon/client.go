package icon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/httpx"
	"github.com/geometry-infra/preptools/internal/log"
)

// Client is a JSON-RPC 2.0 client for the v3 node API.
type Client struct {
	endpoint string
	http     *httpx.Client
	nextID   atomic.Int64
}

// NewClient targets endpoint, which must already be resolved.
func NewClient(endpoint string, hc *httpx.Client) *Client {
	if hc == nil {
		hc = httpx.New(0)
	}
	return &Client{endpoint: endpoint, http: hc}
}

// Endpoint returns the node URL.
func (c *Client) Endpoint() string { return c.endpoint }

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// Response is a complete JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call runs an icx_call and returns the raw result.
func (c *Client) Call(ctx context.Context, call CallRequest) (json.RawMessage, error) {
	resp, err := c.do(ctx, call)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// SendTransaction submits a signed transaction and returns the full
// response; its result is the transaction hash.
func (c *Client) SendTransaction(ctx context.Context, tx *SignedTransaction) (*Response, error) {
	return c.do(ctx, tx)
}

// GetTransactionResult looks up the receipt of a transaction.
func (c *Client) GetTransactionResult(ctx context.Context, txHash string) (json.RawMessage, error) {
	resp, err := c.do(ctx, LookupRequest{Method: MethodGetTransactionResult, TxHash: txHash})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// GetTransactionByHash looks up a transaction body.
func (c *Client) GetTransactionByHash(ctx context.Context, txHash string) (json.RawMessage, error) {
	resp, err := c.do(ctx, LookupRequest{Method: MethodGetTransactionByHash, TxHash: txHash})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) do(ctx context.Context, env Envelope) (*Response, error) {
	req := request{
		JSONRPC: "2.0",
		Method:  env.RPCMethod(),
		Params:  env.Fields(),
		ID:      c.nextID.Add(1),
	}
	start := time.Now()
	var resp Response
	err := c.http.PostJSON(ctx, c.endpoint, req, &resp)
	log.RPC.Debug().
		Str("method", req.Method).
		Int64("id", req.ID).
		Dur("latency", time.Since(start)).
		Err(err).
		Msg("json-rpc request")
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, clierr.Wrap(clierr.CodeRPC, req.Method, resp.Error)
	}
	if len(resp.Result) == 0 {
		return nil, clierr.New(clierr.CodeRPC, fmt.Sprintf("%s: response has neither result nor error", req.Method))
	}
	return &resp, nil
}
