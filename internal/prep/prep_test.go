package prep

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/icon"
)

const senderAddress = "hx1111111111111111111111111111111111111111"

type fakeClient struct {
	calls    []icon.CallRequest
	lookups  []string
	sent     []*icon.SignedTransaction
	response *icon.Response
	sendErr  error
}

func (f *fakeClient) Call(_ context.Context, call icon.CallRequest) (json.RawMessage, error) {
	f.calls = append(f.calls, call)
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeClient) GetTransactionResult(_ context.Context, hash string) (json.RawMessage, error) {
	f.lookups = append(f.lookups, "result:"+hash)
	return json.RawMessage(`{"status":"0x1"}`), nil
}

func (f *fakeClient) GetTransactionByHash(_ context.Context, hash string) (json.RawMessage, error) {
	f.lookups = append(f.lookups, "tx:"+hash)
	return json.RawMessage(`{"txHash":"` + hash + `"}`), nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *icon.SignedTransaction) (*icon.Response, error) {
	f.sent = append(f.sent, tx)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.response, nil
}

type fakeSigner struct {
	signs int
	err   error
}

func (f *fakeSigner) Address() string { return senderAddress }

func (f *fakeSigner) Sign(hash []byte) ([]byte, error) {
	f.signs++
	if f.err != nil {
		return nil, f.err
	}
	return make([]byte, 65), nil
}

type recordingApprover struct {
	verdict bool
	seen    []icon.Envelope
}

func (r *recordingApprover) Approve(env icon.Envelope) bool {
	r.seen = append(r.seen, env)
	return r.verdict
}

func testFields() PRepFields {
	return PRepFields{
		Name:        "node-a",
		Email:       "ops@node-a.io",
		Country:     "KOR",
		City:        "Seoul",
		Website:     "https://node-a.io",
		Details:     "https://node-a.io/details.json",
		P2PEndpoint: "node-a.io:7100",
	}
}

func allOperations() []Operation {
	return []Operation{
		RegisterPRep{PRepFields: testFields()},
		UnregisterPRep{},
		SetPRep{PRepFields: PRepFields{City: "Busan"}},
		SetGovernanceVariables{IRep: big.NewInt(1_000_000)},
	}
}

func newTestWriter(client *fakeClient, signer *fakeSigner, approver Approver) *Writer {
	w := NewWriter(client, signer, 7, approver, nil)
	w.now = func() time.Time { return time.UnixMicro(1_600_000_000_000_000) }
	return w
}

func TestWritesTargetGovernanceOnSessionNetwork(t *testing.T) {
	for _, op := range allOperations() {
		approver := &recordingApprover{verdict: true}
		client := &fakeClient{response: &icon.Response{Result: json.RawMessage(`"0x01"`)}}
		w := newTestWriter(client, &fakeSigner{}, approver)
		if _, err := w.Submit(context.Background(), op); err != nil {
			t.Fatalf("%s: submit failed: %v", op.Method(), err)
		}
		if len(approver.seen) != 1 {
			t.Fatalf("%s: expected one approval, got %d", op.Method(), len(approver.seen))
		}
		fields := approver.seen[0].Fields()
		if fields["to"] != icon.GovernanceAddress {
			t.Fatalf("%s: unexpected to %v", op.Method(), fields["to"])
		}
		if fields["nid"] != "0x7" {
			t.Fatalf("%s: unexpected nid %v", op.Method(), fields["nid"])
		}
		if fields["from"] != senderAddress || fields["stepLimit"] != "0x10000000" || fields["version"] != "0x3" {
			t.Fatalf("%s: unexpected routing fields %+v", op.Method(), fields)
		}
		if fields["timestamp"] != "0x5af3107a40000" {
			t.Fatalf("%s: unexpected timestamp %v", op.Method(), fields["timestamp"])
		}
	}
}

func TestOnlyRegistrationCarriesStake(t *testing.T) {
	for _, op := range allOperations() {
		approver := &recordingApprover{verdict: false}
		w := newTestWriter(&fakeClient{}, &fakeSigner{}, approver)
		if _, err := w.Submit(context.Background(), op); err != nil {
			t.Fatalf("%s: submit failed: %v", op.Method(), err)
		}
		got := approver.seen[0].Fields()["value"]
		want := "0x0"
		if op.Method() == MethodRegisterPRep {
			want = "0x6c6b935b8bbd400000"
		}
		if got != want {
			t.Fatalf("%s: value = %v, want %s", op.Method(), got, want)
		}
	}
}

func TestDeclinedWriteNeverSigns(t *testing.T) {
	for _, op := range allOperations() {
		client := &fakeClient{}
		signer := &fakeSigner{}
		resp, err := newTestWriter(client, signer, Deny).Submit(context.Background(), op)
		if err != nil {
			t.Fatalf("%s: expected silent abort, got %v", op.Method(), err)
		}
		if resp != nil {
			t.Fatalf("%s: expected nil response, got %+v", op.Method(), resp)
		}
		if len(client.sent) != 0 || signer.signs != 0 {
			t.Fatalf("%s: expected no sign/send, got %d/%d", op.Method(), signer.signs, len(client.sent))
		}
	}
}

func TestApprovedWriteSignsAndSendsOnce(t *testing.T) {
	want := &icon.Response{JSONRPC: "2.0", ID: 9, Result: json.RawMessage(`"0xfeed"`)}
	for _, op := range allOperations() {
		client := &fakeClient{response: want}
		signer := &fakeSigner{}
		got, err := newTestWriter(client, signer, AutoApprove).Submit(context.Background(), op)
		if err != nil {
			t.Fatalf("%s: submit failed: %v", op.Method(), err)
		}
		if got != want {
			t.Fatalf("%s: expected response to be returned unchanged", op.Method())
		}
		if signer.signs != 1 || len(client.sent) != 1 {
			t.Fatalf("%s: expected one sign and one send, got %d/%d", op.Method(), signer.signs, len(client.sent))
		}
		if client.sent[0].Transaction().Method != op.Method() {
			t.Fatalf("%s: sent wrong method %s", op.Method(), client.sent[0].Transaction().Method)
		}
	}
}

func TestNilApproverAutoApproves(t *testing.T) {
	client := &fakeClient{response: &icon.Response{Result: json.RawMessage(`"0x01"`)}}
	signer := &fakeSigner{}
	resp, err := newTestWriter(client, signer, nil).UnregisterPRep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || len(client.sent) != 1 {
		t.Fatal("expected nil approver to approve the write")
	}
	reader := NewReader(client, 7, nil)
	if _, err := reader.GetPRepTerm(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSignFailureAbortsBeforeSend(t *testing.T) {
	client := &fakeClient{}
	signer := &fakeSigner{err: errors.New("bad key material")}
	_, err := newTestWriter(client, signer, AutoApprove).UnregisterPRep(context.Background())
	if err == nil {
		t.Fatal("expected sign failure")
	}
	if code := clierr.ExitCode(err); code != int(clierr.CodeSigner) {
		t.Fatalf("expected signer exit code, got %d", code)
	}
	if len(client.sent) != 0 {
		t.Fatal("expected no send after sign failure")
	}
}

func TestSendFailurePropagates(t *testing.T) {
	rpcErr := clierr.New(clierr.CodeRPC, "connection refused")
	client := &fakeClient{sendErr: rpcErr}
	_, err := newTestWriter(client, &fakeSigner{}, AutoApprove).UnregisterPRep(context.Background())
	if !errors.Is(err, rpcErr) {
		t.Fatalf("expected rpc error to propagate unchanged, got %v", err)
	}
}

func TestInvalidOperationRejectedBeforeApproval(t *testing.T) {
	approver := &recordingApprover{verdict: true}
	w := newTestWriter(&fakeClient{}, &fakeSigner{}, approver)
	cases := []Operation{
		RegisterPRep{PRepFields: PRepFields{Name: "only-name"}},
		SetPRep{},
		SetPRep{PRepFields: PRepFields{NodeAddress: "cx0000000000000000000000000000000000000001"}},
		SetGovernanceVariables{},
		SetGovernanceVariables{IRep: big.NewInt(-1)},
	}
	for _, op := range cases {
		_, err := w.Submit(context.Background(), op)
		if code := clierr.ExitCode(err); code != int(clierr.CodeUsage) {
			t.Fatalf("%s: expected usage error, got %v", op.Method(), err)
		}
	}
	if len(approver.seen) != 0 {
		t.Fatalf("expected no approvals, got %d", len(approver.seen))
	}
}

func TestRegisterMissingFieldsAreNamed(t *testing.T) {
	err := RegisterPRep{PRepFields: PRepFields{Name: "n", Email: "a@b"}}.Validate()
	if err == nil || !strings.Contains(err.Error(), "country, city, website, details, p2pEndpoint") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestFieldFormatsUseTrimmedValues(t *testing.T) {
	blankEmail := SetPRep{PRepFields: PRepFields{City: "Busan", Email: "   "}}
	if err := blankEmail.Validate(); err != nil {
		t.Fatalf("blank email should be dropped, got %v", err)
	}
	if _, ok := blankEmail.Params()["email"]; ok {
		t.Fatalf("blank email should not be sent: %+v", blankEmail.Params())
	}
	padded := SetPRep{PRepFields: PRepFields{Email: " ops@node-a.io ", PublicKey: " 0x04abcdef "}}
	if err := padded.Validate(); err != nil {
		t.Fatalf("padded values should validate, got %v", err)
	}
	params := padded.Params()
	if params["email"] != "ops@node-a.io" || params["publicKey"] != "0x04abcdef" {
		t.Fatalf("expected trimmed params, got %+v", params)
	}
	bad := SetPRep{PRepFields: PRepFields{PublicKey: " 04abcdef"}}
	if code := clierr.ExitCode(bad.Validate()); code != int(clierr.CodeUsage) {
		t.Fatalf("expected usage error for unprefixed key, got %d", code)
	}
}

func TestOperationParams(t *testing.T) {
	set := SetPRep{PRepFields: PRepFields{City: "Busan", Website: " "}}.Params()
	if len(set) != 1 || set["city"] != "Busan" {
		t.Fatalf("expected only city, got %+v", set)
	}
	if got := (SetGovernanceVariables{IRep: big.NewInt(0x10)}).Params()["irep"]; got != "0x10" {
		t.Fatalf("unexpected irep %v", got)
	}
	if got := (UnregisterPRep{}).Params(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty params, got %+v", got)
	}
	reg := RegisterPRep{PRepFields: testFields()}.Params()
	if reg["p2pEndpoint"] != "node-a.io:7100" || reg["name"] != "node-a" {
		t.Fatalf("unexpected register params %+v", reg)
	}
}

func TestPRepFieldsMerge(t *testing.T) {
	base := testFields()
	merged := base.Merge(PRepFields{City: "Busan"})
	if merged.City != "Busan" || merged.Name != base.Name {
		t.Fatalf("unexpected merge %+v", merged)
	}
}

func TestCallDefaultsAndOptions(t *testing.T) {
	approver := &recordingApprover{verdict: false}
	w := newTestWriter(&fakeClient{}, &fakeSigner{}, approver)
	if _, err := w.Call(context.Background(), "setStake", map[string]any{"value": "0x1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Call(context.Background(), "setStake", nil, WithStepLimit(big.NewInt(0x100)), WithValue(big.NewInt(5))); err != nil {
		t.Fatal(err)
	}
	first := approver.seen[0].Fields()
	if first["stepLimit"] != "0x50000000" || first["value"] != "0x0" {
		t.Fatalf("unexpected defaults %+v", first)
	}
	second := approver.seen[1].Fields()
	if second["stepLimit"] != "0x100" || second["value"] != "0x5" {
		t.Fatalf("unexpected overrides %+v", second)
	}
}

func TestWriterStepLimitOverride(t *testing.T) {
	approver := &recordingApprover{verdict: false}
	w := NewWriter(&fakeClient{}, &fakeSigner{}, 1, approver, big.NewInt(0x2000))
	if _, err := w.UnregisterPRep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := approver.seen[0].Fields()["stepLimit"]; got != "0x2000" {
		t.Fatalf("unexpected step limit %v", got)
	}
}

func TestReadsNotifyApproverButIgnoreVerdict(t *testing.T) {
	client := &fakeClient{}
	approver := &recordingApprover{verdict: false}
	r := NewReader(client, 3, approver)
	ctx := context.Background()
	if _, err := r.GetPRep(ctx, senderAddress); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetPReps(ctx, GetPRepsParams{StartRanking: 1, EndRanking: 22}); err != nil {
		t.Fatal(err)
	}
	hash := "0x" + strings.Repeat("ab", 32)
	if _, err := r.GetTransactionResult(ctx, hash); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetTransaction(ctx, strings.TrimPrefix(hash, "0x")); err != nil {
		t.Fatal(err)
	}
	if len(approver.seen) != 4 {
		t.Fatalf("expected four notifications, got %d", len(approver.seen))
	}
	if len(client.calls) != 2 || len(client.lookups) != 2 {
		t.Fatalf("expected every read to be dispatched, got %d calls %d lookups", len(client.calls), len(client.lookups))
	}
	first := client.calls[0]
	if first.From != icon.EOAPlaceholder || first.To != icon.GovernanceAddress || first.Method != MethodGetPRep {
		t.Fatalf("unexpected call %+v", first)
	}
	if first.Params["address"] != senderAddress {
		t.Fatalf("unexpected params %+v", first.Params)
	}
	preps := client.calls[1].Params
	if preps["startRanking"] != "0x1" || preps["endRanking"] != "0x16" {
		t.Fatalf("unexpected getPReps params %+v", preps)
	}
	if client.lookups[1] != "tx:"+hash {
		t.Fatalf("expected normalized hash, got %s", client.lookups[1])
	}
}

func TestReadsValidateInput(t *testing.T) {
	client := &fakeClient{}
	r := NewReader(client, 3, nil)
	if _, err := r.GetPRep(context.Background(), "hxnothex"); err == nil {
		t.Fatal("expected invalid address to be rejected")
	}
	if _, err := r.GetTransactionResult(context.Background(), "0x12"); err == nil {
		t.Fatal("expected invalid hash to be rejected")
	}
	if len(client.calls)+len(client.lookups) != 0 {
		t.Fatal("expected no dispatch for invalid input")
	}
}
