package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geometry-infra/preptools/internal/icon/wallet"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

type rpcCall struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type fakeNode struct {
	srv   *httptest.Server
	mu    sync.Mutex
	calls []rpcCall
}

func newFakeNode(t *testing.T, status int, body string) *fakeNode {
	t.Helper()
	node := &fakeNode{}
	node.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		node.mu.Lock()
		node.calls = append(node.calls, call)
		node.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(node.srv.Close)
	return node
}

func (n *fakeNode) recorded() []rpcCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]rpcCall(nil), n.calls...)
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{
		"PREPTOOLS_URL", "PREPTOOLS_NID", "PREPTOOLS_KEYSTORE", "PREPTOOLS_PASSWORD",
		"PREPTOOLS_CONFIG", "PREPTOOLS_STEP_LIMIT", "PREPTOOLS_TIMEOUT",
		"PREPTOOLS_LOG_LEVEL", "PREPTOOLS_OUTPUT",
	} {
		t.Setenv(key, "")
	}
}

func writeTestKeystore(t *testing.T) (string, string) {
	t.Helper()
	w, err := wallet.FromHex(testPrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "operator.json")
	if err := w.Save(path, "secret", true); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	return path, w.Address()
}

func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithIO(strings.NewReader(stdin), &stdout, &stderr)
	code := r.Run(args)
	return code, stdout.String(), stderr.String()
}

func decodeEnvelope(t *testing.T, raw string) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("failed to parse envelope: %v output=%s", err, raw)
	}
	return env
}

// lastEnvelope extracts the JSON error envelope that follows any request
// printouts on stderr.
func lastEnvelope(t *testing.T, stderr string) map[string]any {
	t.Helper()
	idx := strings.LastIndex(stderr, "{\n  \"version\"")
	if idx < 0 {
		t.Fatalf("no envelope in stderr: %s", stderr)
	}
	return decodeEnvelope(t, stderr[idx:])
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("preptools getPRep"); got != "getPRep" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestRunnerGetPRep(t *testing.T) {
	isolateEnv(t)
	node := newFakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"name":"node-a","grade":"0x0"}}`)
	code, stdout, stderr := run(t, "", "getPRep", "hx1111111111111111111111111111111111111111", "--url", node.srv.URL, "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	data := decodeEnvelope(t, stdout)
	if data["name"] != "node-a" {
		t.Fatalf("unexpected output %s", stdout)
	}
	calls := node.recorded()
	if len(calls) != 1 || calls[0].Method != "icx_call" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if calls[0].Params["from"] != "hx0000000000000000000000000000000000000000" || calls[0].Params["to"] != "cx0000000000000000000000000000000000000000" {
		t.Fatalf("unexpected routing %+v", calls[0].Params)
	}
	if !strings.Contains(stderr, "[Request] icx_call") {
		t.Fatalf("expected request to be printed on stderr, got %s", stderr)
	}
}

func TestRunnerConfigPrecedence(t *testing.T) {
	isolateEnv(t)
	node := newFakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"startBlockHeight":"0x1"}}`)
	cfg := filepath.Join(t.TempDir(), "preptools.json")
	if err := os.WriteFile(cfg, []byte(`{"url": "`+node.srv.URL+`", "nid": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	code, stdout, stderr := run(t, "", "getPRepTerm", "-c", cfg, "-n", "2")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	meta := decodeEnvelope(t, stdout)["meta"].(map[string]any)
	network := meta["network"].(map[string]any)
	if network["url"] != node.srv.URL+"/api/v3" || network["nid"].(float64) != 2 {
		t.Fatalf("unexpected network meta %+v", network)
	}
}

func TestRunnerMissingConfigFile(t *testing.T) {
	isolateEnv(t)
	code, _, stderr := run(t, "", "getPRepTerm", "--config", filepath.Join(t.TempDir(), "absent.json"))
	if code != 3 {
		t.Fatalf("expected exit 3, got %d stderr=%s", code, stderr)
	}
	if lastEnvelope(t, stderr)["error"].(map[string]any)["type"] != "config_error" {
		t.Fatalf("unexpected error envelope %s", stderr)
	}
}

func TestRunnerRPCErrorExitCode(t *testing.T) {
	isolateEnv(t)
	node := newFakeNode(t, http.StatusBadRequest, `{"jsonrpc":"2.0","id":1,"error":{"code":-32032,"message":"PRep not found"}}`)
	code, _, stderr := run(t, "", "getPRep", "hx1111111111111111111111111111111111111111", "--url", node.srv.URL)
	if code != 12 {
		t.Fatalf("expected exit 12, got %d stderr=%s", code, stderr)
	}
	errBody := lastEnvelope(t, stderr)["error"].(map[string]any)
	if errBody["type"] != "rpc_error" || !strings.Contains(errBody["message"].(string), "PRep not found") {
		t.Fatalf("unexpected error envelope %+v", errBody)
	}
	if len(node.recorded()) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(node.recorded()))
	}
}

func TestRunnerUnregisterWithYes(t *testing.T) {
	isolateEnv(t)
	keystore, address := writeTestKeystore(t)
	node := newFakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0xabc123"}`)
	code, stdout, stderr := run(t, "", "unregisterPRep", "-u", node.srv.URL, "-n", "0x50", "-k", keystore, "-p", "secret", "-y", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	data := decodeEnvelope(t, stdout)
	if data["tx_hash"] != "0xabc123" || data["declined"] != false || data["from"] != address {
		t.Fatalf("unexpected output %s", stdout)
	}
	calls := node.recorded()
	if len(calls) != 1 || calls[0].Method != "icx_sendTransaction" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	params := calls[0].Params
	if params["nid"] != "0x50" || params["value"] != "0x0" || params["stepLimit"] != "0x10000000" || params["signature"] == nil {
		t.Fatalf("unexpected transaction %+v", params)
	}
	if strings.Contains(stderr, "Continue?") {
		t.Fatal("did not expect a confirmation prompt with --yes")
	}
}

func TestRunnerDeclinedWriteExitsZero(t *testing.T) {
	isolateEnv(t)
	keystore, _ := writeTestKeystore(t)
	node := newFakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0xabc"}`)
	code, stdout, stderr := run(t, "n\n", "unregisterPRep", "-u", node.srv.URL, "-k", keystore, "-p", "secret", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	if decodeEnvelope(t, stdout)["declined"] != true {
		t.Fatalf("expected declined result, got %s", stdout)
	}
	if len(node.recorded()) != 0 {
		t.Fatalf("expected no send, got %+v", node.recorded())
	}
	if !strings.Contains(stderr, "> Continue? [Y/n]") {
		t.Fatalf("expected confirmation prompt, got %s", stderr)
	}
}

func TestRunnerInterruptDuringPromptDoesNotCancelSend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("interrupt cannot be sent to the own process on windows")
	}
	isolateEnv(t)
	keystore, _ := writeTestKeystore(t)
	node := newFakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0xabc"}`)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	var stdout, stderr bytes.Buffer
	r := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr)
	r.SetPasswordPrompt(func(string) (string, error) {
		self, err := os.FindProcess(os.Getpid())
		if err != nil {
			return "", err
		}
		if err := self.Signal(os.Interrupt); err != nil {
			return "", err
		}
		select {
		case <-interrupts:
		case <-time.After(5 * time.Second):
			t.Error("interrupt was not delivered")
		}
		return "secret", nil
	})
	code := r.Run([]string{"unregisterPRep", "-u", node.srv.URL, "-k", keystore, "-y"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if len(node.recorded()) != 1 {
		t.Fatalf("expected one send, got %+v", node.recorded())
	}
}

func TestRunnerWrongPasswordExitsOne(t *testing.T) {
	isolateEnv(t)
	keystore, _ := writeTestKeystore(t)
	node := newFakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0xabc"}`)
	code, _, stderr := run(t, "", "unregisterPRep", "-u", node.srv.URL, "-k", keystore, "-p", "wrong", "-y")
	if code != 1 {
		t.Fatalf("expected exit 1, got %d stderr=%s", code, stderr)
	}
	errBody := lastEnvelope(t, stderr)["error"].(map[string]any)
	if errBody["type"] != "keystore_error" {
		t.Fatalf("unexpected error envelope %+v", errBody)
	}
	if len(node.recorded()) != 0 {
		t.Fatal("expected no network call")
	}
}

func TestRunnerRegisterFromPRepJSON(t *testing.T) {
	isolateEnv(t)
	keystore, _ := writeTestKeystore(t)
	node := newFakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0xabc"}`)
	fields := filepath.Join(t.TempDir(), "prep.json")
	body := `{"name":"node-a","email":"ops@node-a.io","country":"KOR","city":"Seoul","website":"https://node-a.io","details":"https://node-a.io/details.json","p2pEndpoint":"node-a.io:7100"}`
	if err := os.WriteFile(fields, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	code, stdout, stderr := run(t, "", "registerPRep", "--prep-json", fields, "--city", "Busan", "-u", node.srv.URL, "-k", keystore, "-p", "secret", "-y", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	if got := decodeEnvelope(t, stdout)["value_icx"]; got != "2000" {
		t.Fatalf("expected 2000 ICX attached, got %v", got)
	}
	params := node.recorded()[0].Params
	if params["value"] != "0x6c6b935b8bbd400000" {
		t.Fatalf("expected registration stake, got %v", params["value"])
	}
	data := params["data"].(map[string]any)
	inner := data["params"].(map[string]any)
	if data["method"] != "registerPRep" || inner["city"] != "Busan" || inner["name"] != "node-a" {
		t.Fatalf("unexpected register data %+v", data)
	}
}

func TestRunnerRegisterMissingFieldsIsUsageError(t *testing.T) {
	isolateEnv(t)
	node := newFakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0xabc"}`)
	code, _, stderr := run(t, "", "registerPRep", "--name", "node-a", "-u", node.srv.URL, "-k", "/nonexistent.json", "-y")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, stderr)
	}
	if len(node.recorded()) != 0 {
		t.Fatal("expected no network call")
	}
}

func TestRunnerSetGovernanceVariablesInICX(t *testing.T) {
	isolateEnv(t)
	keystore, _ := writeTestKeystore(t)
	node := newFakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0xabc"}`)
	code, _, stderr := run(t, "", "setGovernanceVariables", "--irep-icx", "1.5", "-u", node.srv.URL, "-k", keystore, "-p", "secret", "-y", "--step-limit", "0x20000000")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	params := node.recorded()[0].Params
	inner := params["data"].(map[string]any)["params"].(map[string]any)
	if inner["irep"] != "0x14d1120d7b160000" || params["stepLimit"] != "0x20000000" {
		t.Fatalf("unexpected transaction %+v", params)
	}
}

func TestRunnerEnableCommandsBlocksWrites(t *testing.T) {
	isolateEnv(t)
	code, _, stderr := run(t, "", "unregisterPRep", "--enable-commands", "read", "-k", "/nonexistent.json")
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, stderr)
	}
	env := lastEnvelope(t, stderr)
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
}

func TestRunnerSchemaAnnotatesClasses(t *testing.T) {
	isolateEnv(t)
	code, stdout, stderr := run(t, "", "schema", "setPRep", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	out := decodeEnvelope(t, stdout)
	if out["class"] != "write" || out["path"] != "preptools setPRep" {
		t.Fatalf("unexpected schema %s", stdout)
	}
}

func TestRunnerKeystoreCreatesLoadableFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "new.json")
	code, stdout, stderr := run(t, "", "keystore", path, "-p", "correct horse", "--light", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	info := decodeEnvelope(t, stdout)
	w, err := wallet.Load(path, "correct horse")
	if err != nil {
		t.Fatalf("load created keystore: %v", err)
	}
	if info["address"] != w.Address() {
		t.Fatalf("address mismatch: %v vs %s", info["address"], w.Address())
	}
}

func TestRunnerUnknownFlagIsUsageError(t *testing.T) {
	isolateEnv(t)
	code, _, _ := run(t, "", "getPRepTerm", "--bogus")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}
