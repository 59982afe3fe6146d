package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/devblac/block-fetcher/internal/gateway"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the YAML configuration.
type Config struct {
	Version int           `yaml:"version"`
	Global  GlobalConfig  `yaml:"global"`
	Node    NodeConfig    `yaml:"node"`
	Retry   RetryConfig   `yaml:"retry"`
	Chain   ChainConfig   `yaml:"chain"`
	Fetcher FetcherConfig `yaml:"fetcher"`
	Sinks   []Sink        `yaml:"sinks"`
}

type GlobalConfig struct {
	DBPath        string        `yaml:"db_path"`
	Confirmations uint64        `yaml:"confirmations"`
	StartBlock    string        `yaml:"start_block"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

type NodeConfig struct {
	RPCURL            string            `yaml:"rpc_url"`
	Headers           map[string]string `yaml:"headers"`
	QuickTimeout      time.Duration     `yaml:"quick_timeout"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Burst             int               `yaml:"burst"`
}

type RetryConfig struct {
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	QuickTimeout    time.Duration `yaml:"quick_timeout"`
	MaxTotalTimeout time.Duration `yaml:"max_total_timeout"`
	ContractBackoff time.Duration `yaml:"contract_backoff"`
}

// ChainConfig overrides the reserved system addresses. Empty fields keep the
// defaults.
type ChainConfig struct {
	BaseTokenAddress        string `yaml:"base_token_address"`
	FeeCollectorAddress     string `yaml:"fee_collector_address"`
	L2ERC20BridgeAddress    string `yaml:"l2_erc20_bridge_address"`
	NativeTokenVaultAddress string `yaml:"native_token_vault_address"`
	EthL1Address            string `yaml:"eth_l1_address"`
}

type FetcherConfig struct {
	MaxConcurrency  int           `yaml:"max_concurrency"`
	NFTMetadata     bool          `yaml:"nft_metadata"`
	IPFSGateway     string        `yaml:"ipfs_gateway"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
}

type Sink struct {
	ID        string            `yaml:"id"`
	Type      string            `yaml:"type"`
	URL       string            `yaml:"url"`
	Method    string            `yaml:"method"`
	Headers   map[string]string `yaml:"headers"`
	RedisAddr string            `yaml:"redis_addr"`
	RedisKey  string            `yaml:"redis_key"`
	RedisDB   int               `yaml:"redis_db"`
}

const (
	defaultDBPath          = "block-fetcher.db"
	defaultPollInterval    = 2 * time.Second
	defaultNodeQuick       = 10 * time.Second
	defaultMaxConcurrency  = 16
	defaultMetadataTimeout = 8 * time.Second
)

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, applies defaults and
// validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// ApplyDefaults fills every unset tunable.
func (c *Config) ApplyDefaults() {
	if c.Global.DBPath == "" {
		c.Global.DBPath = defaultDBPath
	}
	if c.Global.PollInterval <= 0 {
		c.Global.PollInterval = defaultPollInterval
	}
	if c.Node.QuickTimeout <= 0 {
		c.Node.QuickTimeout = defaultNodeQuick
	}
	d := gateway.DefaultPolicy()
	if c.Retry.DefaultTimeout <= 0 {
		c.Retry.DefaultTimeout = d.DefaultTimeout
	}
	if c.Retry.QuickTimeout <= 0 {
		c.Retry.QuickTimeout = d.QuickTimeout
	}
	if c.Retry.MaxTotalTimeout <= 0 {
		c.Retry.MaxTotalTimeout = d.MaxTotalTimeout
	}
	if c.Retry.ContractBackoff <= 0 {
		c.Retry.ContractBackoff = d.ContractBackoff
	}
	if c.Fetcher.MaxConcurrency <= 0 {
		c.Fetcher.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Fetcher.MetadataTimeout <= 0 {
		c.Fetcher.MetadataTimeout = defaultMetadataTimeout
	}
	for i := range c.Sinks {
		if strings.EqualFold(c.Sinks[i].Type, "webhook") && c.Sinks[i].Method == "" {
			c.Sinks[i].Method = "POST"
		}
	}
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if c.Node.RPCURL == "" {
		return errors.New("node.rpc_url is required")
	}
	if c.Node.RequestsPerSecond < 0 || c.Node.Burst < 0 {
		return errors.New("node.requests_per_second and node.burst must not be negative")
	}
	if _, _, err := ParseStartBlock(c.Global.StartBlock); err != nil {
		return fmt.Errorf("global.start_block: %w", err)
	}
	if _, err := c.Chain.Addresses(); err != nil {
		return fmt.Errorf("chain: %w", err)
	}
	if len(c.Sinks) == 0 {
		return errors.New("at least one sink is required")
	}

	sinkIDs := map[string]struct{}{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	return nil
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
	case "redis":
		if s.RedisAddr == "" || s.RedisKey == "" {
			return errors.New("redis_addr and redis_key are required for redis sink")
		}
	case "log":
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

// Policy returns the retry policy for the gateway.
func (r RetryConfig) Policy() gateway.Policy {
	return gateway.Policy{
		DefaultTimeout:  r.DefaultTimeout,
		QuickTimeout:    r.QuickTimeout,
		MaxTotalTimeout: r.MaxTotalTimeout,
		ContractBackoff: r.ContractBackoff,
	}
}

// Addresses returns the configured system addresses over the defaults.
func (c ChainConfig) Addresses() (chain.Addresses, error) {
	var a chain.Addresses
	for _, f := range []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"base_token_address", c.BaseTokenAddress, &a.BaseToken},
		{"fee_collector_address", c.FeeCollectorAddress, &a.FeeCollector},
		{"l2_erc20_bridge_address", c.L2ERC20BridgeAddress, &a.L2ERC20Bridge},
		{"native_token_vault_address", c.NativeTokenVaultAddress, &a.NativeTokenVault},
		{"eth_l1_address", c.EthL1Address, &a.EthL1},
	} {
		if f.value == "" {
			continue
		}
		if !common.IsHexAddress(f.value) {
			return chain.Addresses{}, fmt.Errorf("%s is not an address: %s", f.name, f.value)
		}
		*f.dst = common.HexToAddress(f.value)
	}
	return a.WithDefaults(), nil
}

// ParseStartBlock parses "", "latest", "latest-N" or a block number. The
// boolean reports whether the value is relative to the head.
func ParseStartBlock(v string) (uint64, bool, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	switch {
	case v == "" || v == "latest":
		return 0, true, nil
	case strings.HasPrefix(v, "latest-"):
		n, err := strconv.ParseUint(strings.TrimPrefix(v, "latest-"), 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid offset in %q", v)
		}
		return n, true, nil
	default:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid block %q", v)
		}
		return n, false, nil
	}
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
