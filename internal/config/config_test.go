package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/common"
)

const baseYAML = `
version: 1
node:
  rpc_url: ${RPC_URL}
  headers:
    Authorization: Bearer ${RPC_TOKEN}
retry:
  default_timeout: 5s
chain:
  l2_erc20_bridge_address: "0x0000000000000000000000000000000000010003"
sinks:
  - id: hook
    type: webhook
    url: ${HOOK_URL}
  - id: queue
    type: redis
    redis_addr: localhost:6379
    redis_key: blocks
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadInterpolatesEnvAndValidates(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	t.Setenv("RPC_URL", "http://example-rpc")
	t.Setenv("RPC_TOKEN", "abc")
	t.Setenv("HOOK_URL", "https://hooks.test/blocks")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("expected load to succeed: %v", err)
	}

	if got := cfg.Node.RPCURL; got != "http://example-rpc" {
		t.Fatalf("rpc_url not interpolated, got %q", got)
	}
	if got := cfg.Node.Headers["Authorization"]; got != "Bearer abc" {
		t.Fatalf("header not interpolated, got %q", got)
	}
	if cfg.Sinks[0].Method != "POST" {
		t.Fatalf("webhook method default not applied, got %q", cfg.Sinks[0].Method)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	t.Setenv("RPC_URL", "http://example-rpc")
	t.Setenv("RPC_TOKEN", "abc")
	t.Setenv("HOOK_URL", "https://hooks.test/blocks")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := cfg.Retry.Policy()
	if p.DefaultTimeout != 5*time.Second {
		t.Fatalf("configured timeout lost, got %v", p.DefaultTimeout)
	}
	if p.QuickTimeout != 500*time.Millisecond || p.MaxTotalTimeout != 120*time.Second || p.ContractBackoff != time.Second {
		t.Fatalf("unexpected retry defaults %+v", p)
	}
	if cfg.Node.QuickTimeout != 10*time.Second || cfg.Global.DBPath == "" || cfg.Fetcher.MaxConcurrency == 0 {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Node, cfg.Global)
	}

	addrs, err := cfg.Chain.Addresses()
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	if addrs.L2ERC20Bridge != common.HexToAddress("0x0000000000000000000000000000000000010003") {
		t.Fatalf("bridge address not parsed: %s", addrs.L2ERC20Bridge.Hex())
	}
	if addrs.BaseToken != chain.BaseTokenAddress || addrs.FeeCollector != chain.BootloaderAddress {
		t.Fatalf("system defaults not applied: %+v", addrs)
	}
}

func TestLoadFailsOnMissingEnv(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected missing env to fail")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	env := "RPC_URL=http://dotenv-rpc\nRPC_TOKEN=x\nHOOK_URL=https://hooks.test\n"
	if err := os.WriteFile(filepath.Join(filepath.Dir(cfgPath), ".env"), []byte(env), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("RPC_URL")
		os.Unsetenv("RPC_TOKEN")
		os.Unsetenv("HOOK_URL")
	})

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.RPCURL != "http://dotenv-rpc" {
		t.Fatalf("rpc_url from .env not used, got %q", cfg.Node.RPCURL)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Version: 1,
			Node:    NodeConfig{RPCURL: "http://rpc"},
			Sinks:   []Sink{{ID: "log", Type: "log"}},
		}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no version", func(c *Config) { c.Version = 0 }, "version"},
		{"no rpc", func(c *Config) { c.Node.RPCURL = "" }, "rpc_url"},
		{"no sinks", func(c *Config) { c.Sinks = nil }, "sink"},
		{"duplicate sink", func(c *Config) { c.Sinks = append(c.Sinks, Sink{ID: "log", Type: "log"}) }, "duplicate"},
		{"bad sink type", func(c *Config) { c.Sinks[0].Type = "slack" }, "unsupported"},
		{"redis without key", func(c *Config) { c.Sinks[0] = Sink{ID: "r", Type: "redis", RedisAddr: "x"} }, "redis_key"},
		{"bad address", func(c *Config) { c.Chain.FeeCollectorAddress = "0x123" }, "fee_collector_address"},
		{"bad start block", func(c *Config) { c.Global.StartBlock = "latest-x" }, "start_block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseStartBlock(t *testing.T) {
	tests := []struct {
		in       string
		want     uint64
		relative bool
		wantErr  bool
	}{
		{"", 0, true, false},
		{"latest", 0, true, false},
		{"latest-10", 10, true, false},
		{"1234", 1234, false, false},
		{"abc", 0, false, true},
	}
	for _, tt := range tests {
		n, rel, err := ParseStartBlock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: unexpected error %v", tt.in, err)
		}
		if err == nil && (n != tt.want || rel != tt.relative) {
			t.Fatalf("%q: got %d/%v", tt.in, n, rel)
		}
	}
}
