package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/devblac/block-fetcher/internal/config"
)

func sampleBlock() *chain.BlockData {
	return &chain.BlockData{
		Block: &chain.Block{
			Number: 42,
			Hash:   common.HexToHash("0x2a"),
		},
		Transactions: []*chain.TransactionData{
			{Transfers: []*chain.Transfer{{}, {}}},
		},
		Transfers:       []*chain.Transfer{{}},
		ChangedBalances: []*chain.Balance{},
	}
}

func TestWebhookSendsBlockJSON(t *testing.T) {
	var (
		body   []byte
		header string
		method string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		header = r.Header.Get("X-Api-Key")
		method = r.Method
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender, err := NewWebhookSender(server.URL, "", map[string]string{"X-Api-Key": "k"})
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if err := sender.Send(context.Background(), sampleBlock()); err != nil {
		t.Fatalf("send: %v", err)
	}

	if method != http.MethodPost || header != "k" {
		t.Fatalf("unexpected request method=%s header=%q", method, header)
	}
	var got struct {
		Block struct {
			Number string `json:"number"`
		} `json:"block"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode body %s: %v", body, err)
	}
	if got.Block.Number != "0x2a" {
		t.Fatalf("unexpected block number %q", got.Block.Number)
	}
}

func TestWebhookStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender, err := NewWebhookSender(server.URL, http.MethodPost, nil)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if err := sender.Send(context.Background(), sampleBlock()); err == nil {
		t.Fatalf("expected error on 502")
	}
}

type fakePusher struct {
	key    string
	values []interface{}
	err    error
}

func (f *fakePusher) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.key = key
	f.values = append(f.values, values...)
	return redis.NewIntResult(int64(len(f.values)), f.err)
}

func TestRedisSenderPushesJSON(t *testing.T) {
	pusher := &fakePusher{}
	sender := &redisSender{client: pusher, key: "blocks"}

	if err := sender.Send(context.Background(), sampleBlock()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pusher.key != "blocks" || len(pusher.values) != 1 {
		t.Fatalf("unexpected push key=%s values=%d", pusher.key, len(pusher.values))
	}
	raw, ok := pusher.values[0].([]byte)
	if !ok || !json.Valid(raw) {
		t.Fatalf("expected JSON payload, got %T", pusher.values[0])
	}
}

func TestRedisSenderError(t *testing.T) {
	sender := &redisSender{client: &fakePusher{err: errors.New("READONLY")}, key: "blocks"}
	if err := sender.Send(context.Background(), sampleBlock()); err == nil {
		t.Fatalf("expected rpush error")
	}
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := sender.Send(context.Background(), sampleBlock()); err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"number":42`) || !strings.Contains(out, `"transfers":3`) {
		t.Fatalf("unexpected log line: %s", out)
	}
	if err := sender.Send(context.Background(), &chain.BlockData{}); err == nil {
		t.Fatalf("expected error for empty block data")
	}
}

func TestBuild(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	senders, err := Build(context.Background(), []config.Sink{
		{ID: "hook", Type: "webhook", URL: "http://localhost:1"},
		{ID: "stdout", Type: "LOG"},
	}, log)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(senders) != 2 || senders[0].ID != "hook" || senders[1].ID != "stdout" {
		t.Fatalf("unexpected senders %+v", senders)
	}

	if _, err := Build(context.Background(), []config.Sink{{ID: "x", Type: "smtp"}}, log); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}
