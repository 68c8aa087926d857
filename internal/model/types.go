package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version string       `json:"version"`
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorBody   `json:"error"`
	Meta    EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string       `json:"request_id"`
	Timestamp time.Time    `json:"timestamp"`
	Command   string       `json:"command"`
	Network   *NetworkInfo `json:"network,omitempty"`
}

// NetworkInfo identifies the node a command talked to.
type NetworkInfo struct {
	URL string `json:"url"`
	NID int64  `json:"nid"`
}

// WriteResult is the outcome of a governance transaction.
type WriteResult struct {
	Method   string `json:"method"`
	From     string `json:"from"`
	ValueICX string `json:"value_icx"`
	Declined bool   `json:"declined"`
	TxHash   string `json:"tx_hash,omitempty"`
	Response any    `json:"response,omitempty"`
}

// KeystoreInfo describes a keystore written by the keystore command.
type KeystoreInfo struct {
	Address   string `json:"address"`
	Path      string `json:"path"`
	PublicKey string `json:"public_key"`
}
