package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all configuration for the FarmrSwap daemon
type Config struct {
	Network       string              `mapstructure:"network"` // name of the active network
	Networks      []NetworkConfig     `mapstructure:"networks"`
	Wallet        WalletConfig        `mapstructure:"wallet"`
	Contracts     ContractsConfig     `mapstructure:"contracts"`
	Tokens        []TokenConfig       `mapstructure:"tokens"`
	Pricing       PricingConfig       `mapstructure:"pricing"`
	Quote         QuoteConfig         `mapstructure:"quote"`
	Trade         TradeConfig         `mapstructure:"trade"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`

	registry *TokenRegistry
}

// NetworkConfig describes a chain the application accepts
type NetworkConfig struct {
	Name         string        `mapstructure:"name"`
	ChainID      int64         `mapstructure:"chain_id"`
	NativeSymbol string        `mapstructure:"native_symbol"`
	ExplorerURL  string        `mapstructure:"explorer_url"`
	RPCEndpoints []RPCEndpoint `mapstructure:"rpc_endpoints"`
}

// RPCEndpoint represents an Ethereum RPC endpoint
type RPCEndpoint struct {
	URL    string `mapstructure:"url"`
	Weight int    `mapstructure:"weight"`
}

// Wallet connector types
const (
	WalletPrivateKey = "private_key"
	WalletKeystore   = "keystore"
	WalletWatch      = "watch"
)

// WalletConfig selects the wallet connector used for signing
type WalletConfig struct {
	Type         string `mapstructure:"type"`
	Address      string `mapstructure:"address"`
	PrivateKey   string `mapstructure:"private_key"`
	KeystorePath string `mapstructure:"keystore_path"`
	Passphrase   string `mapstructure:"passphrase"`
}

// ContractsConfig holds the addresses of the external DEX contracts
type ContractsConfig struct {
	Router  string       `mapstructure:"router"`
	Factory string       `mapstructure:"factory"`
	WETH    string       `mapstructure:"weth"`
	NFT     string       `mapstructure:"nft"`
	Farms   []FarmConfig `mapstructure:"farms"`
}

// FarmConfig describes a StakingRewards farm
type FarmConfig struct {
	Name         string `mapstructure:"name"`
	Address      string `mapstructure:"address"`
	StakingToken string `mapstructure:"staking_token"` // LP token address
	RewardSymbol string `mapstructure:"reward_symbol"`
}

// TokenConfig overrides the built-in token list
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Address  string `mapstructure:"address"`
	Decimals int    `mapstructure:"decimals"`
	IconURL  string `mapstructure:"icon_url"`
	Color    string `mapstructure:"color"`
}

// PricingConfig holds the USD price API configuration
type PricingConfig struct {
	BaseURL   string          `mapstructure:"base_url"`
	Platform  string          `mapstructure:"platform"`  // asset platform for contract lookups
	NativeID  string          `mapstructure:"native_id"` // coin id of the native asset
	APIKey    string          `mapstructure:"api_key"`
	BatchSize int             `mapstructure:"batch_size"`
	Workers   int             `mapstructure:"workers"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	CacheTTL  time.Duration   `mapstructure:"cache_ttl"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// QuoteConfig holds mock quote settings
type QuoteConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	FeeBps   int64         `mapstructure:"fee_bps"`
	DepthUSD float64       `mapstructure:"depth_usd"`
	Pairs    []string      `mapstructure:"pairs"` // e.g. "WETH-USDC"
}

// TradeConfig holds transaction settings
type TradeConfig struct {
	SlippageBps         int64         `mapstructure:"slippage_bps"`
	Deadline            time.Duration `mapstructure:"deadline"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AWSConfig holds AWS service configuration
type AWSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	SNSTopicARN   string `mapstructure:"sns_topic_arn"`
	ActivityTable string `mapstructure:"activity_table"` // DynamoDB table written by the persistence lambda
}

// CacheConfig holds caching configuration
type CacheConfig struct {
	L1MaxSize int           `mapstructure:"l1_max_size"`
	L2TTL     time.Duration `mapstructure:"l2_ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Environment string        `mapstructure:"environment"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// Load loads configuration from file and environment variables.
// Environment variables use the FARMRSWAP_ prefix, e.g. FARMRSWAP_WALLET_PRIVATE_KEY.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FARMRSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.parse(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("network", "sepolia")
	v.SetDefault("wallet.type", WalletWatch)

	// Pricing defaults
	v.SetDefault("pricing.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricing.platform", "ethereum")
	v.SetDefault("pricing.native_id", "ethereum")
	v.SetDefault("pricing.batch_size", 30)
	v.SetDefault("pricing.workers", 4)
	v.SetDefault("pricing.timeout", "10s")
	v.SetDefault("pricing.cache_ttl", "60s")
	v.SetDefault("pricing.rate_limit.requests_per_minute", 30)
	v.SetDefault("pricing.rate_limit.burst", 5)

	// Quote defaults
	v.SetDefault("quote.debounce", "500ms")
	v.SetDefault("quote.fee_bps", 30)
	v.SetDefault("quote.depth_usd", 1_000_000)
	v.SetDefault("quote.pairs", []string{"WETH-USDC", "WETH-LINK", "WETH-UNI", "ETH-WETH"})

	// Trade defaults
	v.SetDefault("trade.slippage_bps", 50)
	v.SetDefault("trade.deadline", "20m")
	v.SetDefault("trade.receipt_poll_interval", "2s")
	v.SetDefault("trade.receipt_timeout", "10m")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// AWS defaults
	v.SetDefault("aws.enabled", false)
	v.SetDefault("aws.endpoint", "http://localhost:4566")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.sns_topic_arn", "arn:aws:sns:us-east-1:000000000000:farmrswap-notifications")
	v.SetDefault("aws.activity_table", "farmrswap-activity")

	// Cache defaults
	v.SetDefault("cache.l1_max_size", 1000)
	v.SetDefault("cache.l2_ttl", "60s")

	// Observability defaults
	v.SetDefault("observability.service_name", "farmrswapd")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
}

// parse fills derived values: built-in networks and the token registry
func (c *Config) parse() error {
	if len(c.Networks) == 0 {
		c.Networks = DefaultNetworks()
	}

	active, err := c.ActiveNetwork()
	if err != nil {
		return err
	}

	tokens := DefaultTokens(active.NativeSymbol)
	if len(c.Tokens) > 0 {
		tokens = make([]Token, 0, len(c.Tokens))
		for _, tc := range c.Tokens {
			tok, err := tc.toToken()
			if err != nil {
				return err
			}
			tokens = append(tokens, tok)
		}
	}

	registry, err := NewTokenRegistry(tokens)
	if err != nil {
		return fmt.Errorf("failed to build token registry: %w", err)
	}
	c.registry = registry

	return nil
}

// Registry returns the token registry built at load time
func (c *Config) Registry() *TokenRegistry {
	return c.registry
}

// ActiveNetwork returns the configured network entry
func (c *Config) ActiveNetwork() (NetworkConfig, error) {
	for _, n := range c.Networks {
		if strings.EqualFold(n.Name, c.Network) {
			return n, nil
		}
	}
	return NetworkConfig{}, fmt.Errorf("network %q is not configured", c.Network)
}

// DefaultNetworks returns the built-in network list
func DefaultNetworks() []NetworkConfig {
	return []NetworkConfig{
		{
			Name:         "sepolia",
			ChainID:      11155111,
			NativeSymbol: "ETH",
			ExplorerURL:  "https://sepolia.etherscan.io",
			RPCEndpoints: []RPCEndpoint{{URL: "https://ethereum-sepolia-rpc.publicnode.com", Weight: 1}},
		},
		{
			Name:         "localhost",
			ChainID:      31337,
			NativeSymbol: "ETH",
			RPCEndpoints: []RPCEndpoint{{URL: "http://127.0.0.1:8545", Weight: 1}},
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	active, err := c.ActiveNetwork()
	if err != nil {
		return err
	}
	if active.ChainID <= 0 {
		return fmt.Errorf("network %s: chain id must be positive", active.Name)
	}
	if len(active.RPCEndpoints) == 0 {
		return fmt.Errorf("network %s: at least one RPC endpoint is required", active.Name)
	}
	for _, ep := range active.RPCEndpoints {
		if ep.URL == "" {
			return fmt.Errorf("network %s: RPC endpoint URL is required", active.Name)
		}
	}

	if err := c.Wallet.validate(); err != nil {
		return err
	}

	for name, addr := range map[string]string{
		"contracts.router":  c.Contracts.Router,
		"contracts.factory": c.Contracts.Factory,
		"contracts.weth":    c.Contracts.WETH,
		"contracts.nft":     c.Contracts.NFT,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s: invalid address %q", name, addr)
		}
	}
	for _, farm := range c.Contracts.Farms {
		if !common.IsHexAddress(farm.Address) || !common.IsHexAddress(farm.StakingToken) {
			return fmt.Errorf("farm %s: address and staking_token must be hex addresses", farm.Name)
		}
	}

	if c.Pricing.BatchSize <= 0 {
		return fmt.Errorf("pricing batch size must be > 0")
	}
	if c.Pricing.BaseURL == "" {
		return fmt.Errorf("pricing base URL is required")
	}

	if c.Trade.SlippageBps < 0 || c.Trade.SlippageBps >= 10_000 {
		return fmt.Errorf("slippage_bps must be in [0, 10000), got %d", c.Trade.SlippageBps)
	}
	if c.Quote.FeeBps < 0 || c.Quote.FeeBps >= 10_000 {
		return fmt.Errorf("quote fee_bps must be in [0, 10000), got %d", c.Quote.FeeBps)
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.AWS.Enabled {
		if c.AWS.Region == "" {
			return fmt.Errorf("AWS region is required")
		}
		if c.AWS.SNSTopicARN == "" {
			return fmt.Errorf("SNS topic ARN is required")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}

func (w WalletConfig) validate() error {
	switch w.Type {
	case WalletPrivateKey:
		if w.PrivateKey == "" {
			return fmt.Errorf("wallet: private_key is required for type %s", w.Type)
		}
	case WalletKeystore:
		if w.KeystorePath == "" {
			return fmt.Errorf("wallet: keystore_path is required for type %s", w.Type)
		}
	case WalletWatch:
		if w.Address != "" && !common.IsHexAddress(w.Address) {
			return fmt.Errorf("wallet: invalid address %q", w.Address)
		}
	default:
		return fmt.Errorf("wallet: unknown connector type %q", w.Type)
	}
	return nil
}
