package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/devblac/block-fetcher/internal/config"
)

// Sender hands a fetched block to a downstream consumer.
type Sender interface {
	Send(ctx context.Context, data *chain.BlockData) error
}

// Named pairs a sender with its configured id.
type Named struct {
	ID     string
	Sender Sender
}

// Build creates senders for every configured sink.
func Build(ctx context.Context, sinks []config.Sink, log *slog.Logger) ([]Named, error) {
	out := make([]Named, 0, len(sinks))
	for _, s := range sinks {
		sender, err := build(ctx, s, log)
		if err != nil {
			closeAll(out)
			return nil, fmt.Errorf("sink %s: %w", s.ID, err)
		}
		out = append(out, Named{ID: s.ID, Sender: sender})
	}
	return out, nil
}

func build(ctx context.Context, s config.Sink, log *slog.Logger) (Sender, error) {
	switch strings.ToLower(s.Type) {
	case "webhook":
		return NewWebhookSender(s.URL, s.Method, s.Headers)
	case "redis":
		return NewRedisSender(ctx, s.RedisAddr, s.RedisKey, s.RedisDB)
	case "log":
		return NewLogSender(log.With("sink", s.ID)), nil
	default:
		return nil, fmt.Errorf("unsupported type %q", s.Type)
	}
}

// Close releases senders that hold connections.
func Close(senders []Named) { closeAll(senders) }

func closeAll(senders []Named) {
	for _, s := range senders {
		if c, ok := s.Sender.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

type httpSender struct {
	url     string
	method  string
	client  *http.Client
	headers map[string]string
}

// NewWebhookSender builds an HTTP sink that receives the block as a JSON body.
func NewWebhookSender(url, method string, headers map[string]string) (Sender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		client:  defaultClient(),
		headers: headers,
	}, nil
}

func (s *httpSender) Send(ctx context.Context, data *chain.BlockData) error {
	reqBody, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink http status %d", resp.StatusCode)
	}
	return nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}

type logSender struct {
	log *slog.Logger
}

// NewLogSender writes one summary line per block.
func NewLogSender(log *slog.Logger) Sender {
	return &logSender{log: log}
}

func (s *logSender) Send(_ context.Context, data *chain.BlockData) error {
	if data == nil || data.Block == nil {
		return fmt.Errorf("empty block data")
	}
	s.log.Info("block",
		"number", uint64(data.Block.Number),
		"hash", data.Block.Hash.Hex(),
		"transactions", len(data.Transactions),
		"transfers", countTransfers(data),
		"balances", len(data.ChangedBalances),
		"nft_items", len(data.NftItems),
	)
	return nil
}

func countTransfers(data *chain.BlockData) int {
	n := len(data.Transfers)
	for _, tx := range data.Transactions {
		n += len(tx.Transfers)
	}
	return n
}
