package node

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	delays    []time.Duration
	calls     int32
	methods   []string
}

func (f *fakeTransport) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	n := atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.methods = append(f.methods, method)
	var delay time.Duration
	if int(n) <= len(f.delays) {
		delay = f.delays[n-1]
	}
	resp, err := f.responses[method], f.errs[method]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	*(result.(*json.RawMessage)) = json.RawMessage(resp)
	return nil
}

func (f *fakeTransport) Close() {}

type rpcError struct {
	code int
}

func (e *rpcError) Error() string  { return "rpc error" }
func (e *rpcError) ErrorCode() int { return e.code }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQuickTimeoutResendsOnce(t *testing.T) {
	ft := &fakeTransport{
		responses: map[string]string{"eth_blockNumber": `"0x2a"`},
		delays:    []time.Duration{time.Second},
	}
	c := NewClient(ft, Options{QuickTimeout: 20 * time.Millisecond}, discard())

	start := time.Now()
	n, err := c.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("block number: %v", err)
	}
	if n != 42 {
		t.Fatalf("block number = %d", n)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("slow call was not abandoned")
	}
	if got := atomic.LoadInt32(&ft.calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestFastCallIsNotResent(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{"eth_blockNumber": `"0x1"`}}
	c := NewClient(ft, Options{QuickTimeout: time.Second}, discard())

	if _, err := c.BlockNumber(context.Background()); err != nil {
		t.Fatalf("block number: %v", err)
	}
	if got := atomic.LoadInt32(&ft.calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestNullBlockIsNil(t *testing.T) {
	ft := &fakeTransport{responses: map[string]string{"eth_getBlockByNumber": `null`}}
	c := NewClient(ft, Options{}, discard())

	b, err := c.BlockByNumber(context.Background(), 100)
	if err != nil {
		t.Fatalf("get block: %v", err)
	}
	if b != nil {
		t.Fatalf("expected nil block, got %+v", b)
	}
}

func TestDetailsMethodNotFound(t *testing.T) {
	ft := &fakeTransport{errs: map[string]error{
		"zks_getBlockDetails":       &rpcError{code: methodNotFound},
		"zks_getTransactionDetails": &rpcError{code: -32000},
	}}
	c := NewClient(ft, Options{}, discard())

	d, err := c.BlockDetails(context.Background(), 1)
	if err != nil || d != nil {
		t.Fatalf("expected nil details without error, got %v %v", d, err)
	}
	if _, err := c.TransactionDetails(context.Background(), common.Hash{}); err == nil {
		t.Fatalf("expected other rpc errors to surface")
	}
}

func TestTransportErrorPassesThrough(t *testing.T) {
	boom := errors.New("connection reset")
	ft := &fakeTransport{errs: map[string]error{"eth_getCode": boom}}
	c := NewClient(ft, Options{}, discard())

	if _, err := c.Code(context.Background(), common.Address{}); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestDialAgainstHTTPNode(t *testing.T) {
	headers := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case headers <- r.Header.Get("X-Api-Key"):
		default:
		}
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		result := `"0x0"`
		switch req.Method {
		case "eth_chainId":
			result = `"0x144"`
		case "eth_getTransactionReceipt":
			result = `{"transactionHash":"0x0000000000000000000000000000000000000000000000000000000000000001","transactionIndex":"0x0","blockNumber":"0x5","from":"0x0000000000000000000000000000000000000001","to":"0x0000000000000000000000000000000000000002","status":"0x1","logs":[]}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL, Options{Headers: map[string]string{"X-Api-Key": "k"}, RequestsPerSecond: 100}, discard())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	id, err := c.ChainID(context.Background())
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	if id.Int64() != 324 {
		t.Fatalf("chain id = %s", id)
	}
	if got := <-headers; got != "k" {
		t.Fatalf("header not forwarded: %q", got)
	}

	r, err := c.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if uint64(r.Status) != 1 || r.ToAddress() != common.HexToAddress("0x02") {
		t.Fatalf("unexpected receipt %+v", r)
	}
}
