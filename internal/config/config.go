package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Sale     SaleConfig     `mapstructure:"sale"`
	Devnet   DevnetConfig   `mapstructure:"devnet"`
	Market   MarketConfig   `mapstructure:"market"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Callers  []CallerConfig `mapstructure:"callers"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	ReadOnly bool   `mapstructure:"read_only"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"` // optional rotated copy of stdout
	AuditDir string `mapstructure:"audit_dir"`
}

type AuthConfig struct {
	RequireAuth bool   `mapstructure:"require_auth"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer"`
	AdminKey    string `mapstructure:"admin_key"`
	// TrustCallerHeader lets the X-Caller-Address header name the caller when
	// no credential is required. Local development only.
	TrustCallerHeader bool `mapstructure:"trust_caller_header"`
}

type DatabaseConfig struct {
	DSN                       string `mapstructure:"dsn"`
	EventsDSN                 string `mapstructure:"events_dsn"` // postgres DSN or sqlite file for the event store
	IdempotencyRetentionHours int    `mapstructure:"idempotency_retention_hours"`
	AuditRetentionDays        int    `mapstructure:"audit_retention_days"`
	CleanupIntervalMinutes    int    `mapstructure:"cleanup_interval_minutes"`
	MaxOpenConns              int    `mapstructure:"max_open_conns"`
	MaxIdleConns              int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes    int    `mapstructure:"conn_max_lifetime_minutes"`
	ConnectTimeoutSeconds     int    `mapstructure:"connect_timeout_seconds"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
	ReplayPendingSeconds  int    `mapstructure:"replay_pending_seconds"`
	AuditListKey          string `mapstructure:"audit_list_key"`
	AuditListMax          int    `mapstructure:"audit_list_max"`
}

type ChainConfig struct {
	RPCURL              string `mapstructure:"rpc_url"`
	ChainID             int64  `mapstructure:"chain_id"`
	EngineAddress       string `mapstructure:"engine_address"`
	VaultAddress        string `mapstructure:"vault_address"`
	EIP1271CacheSeconds int    `mapstructure:"eip1271_cache_seconds"`
	EIP1271TimeoutMs    int    `mapstructure:"eip1271_timeout_ms"`
	EIP1271Retries      int    `mapstructure:"eip1271_retries"`
}

type SaleConfig struct {
	Owner              string `mapstructure:"owner"`
	Signer             string `mapstructure:"signer"`
	SignerKey          string `mapstructure:"signer_key"` // only read by cmd/ordersign
	UtilityAsset       string `mapstructure:"utility_asset"`
	WrappedReference   string `mapstructure:"wrapped_reference"`
	ItemRegistry       string `mapstructure:"item_registry"`
	PoolID             string `mapstructure:"pool_id"`
	LiquidityRecipient string `mapstructure:"liquidity_recipient"`
	RevenueRecipient   string `mapstructure:"revenue_recipient"`
	BasePricePerItem   string `mapstructure:"base_price_per_item"` // decimal integer, utility base units
	BurnRatioBps       uint64 `mapstructure:"burn_ratio_bps"`
	LiquidityRatioBps  uint64 `mapstructure:"liquidity_ratio_bps"`
	MaxBatchSize       int    `mapstructure:"max_batch_size"`
	ReplayBackend      string `mapstructure:"replay_backend"` // memory | redis | postgres
}

// DevnetConfig seeds the in-process ledger the server settles against.
type DevnetConfig struct {
	PoolReserveUtility   string            `mapstructure:"pool_reserve_utility"`
	PoolReserveReference string            `mapstructure:"pool_reserve_reference"`
	SwapFeeBps           uint64            `mapstructure:"swap_fee_bps"`
	Balances             map[string]string `mapstructure:"balances"` // address -> native amount
}

type MarketConfig struct {
	RefreshSeconds int   `mapstructure:"refresh_seconds"`
	StaleSeconds   int   `mapstructure:"stale_seconds"`
	ItemCounts     []int `mapstructure:"item_counts"`
	Decimals       int32 `mapstructure:"decimals"`
	SlippageBps    int64 `mapstructure:"slippage_bps"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CallerConfig binds an API key to a chain identity.
type CallerConfig struct {
	Name    string  `mapstructure:"name"`
	APIKey  string  `mapstructure:"api_key"`
	Address string  `mapstructure:"address"`
	QPS     float64 `mapstructure:"qps"`
	Burst   int     `mapstructure:"burst"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// e.g. ITEMSALE_SALE_SIGNER
	viper.SetEnvPrefix("itemsale")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.audit_dir", "./logs")
	v.SetDefault("auth.require_auth", true)
	v.SetDefault("auth.jwt_issuer", "itemsale")
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("redis.idempotency_ttl_seconds", 86400)
	v.SetDefault("redis.replay_pending_seconds", 60)
	v.SetDefault("redis.audit_list_key", "itemsale:audit_logs")
	v.SetDefault("redis.audit_list_max", 10000)
	v.SetDefault("chain.chain_id", 31337)
	v.SetDefault("chain.engine_address", "0x00000000000000000000000000000000000e5a1e")
	v.SetDefault("chain.vault_address", "0xBA12222222228d8Ba445958a75a0704d566BF2C8")
	v.SetDefault("chain.eip1271_cache_seconds", 60)
	v.SetDefault("chain.eip1271_timeout_ms", 5000)
	v.SetDefault("chain.eip1271_retries", 1)
	v.SetDefault("sale.base_price_per_item", "50000000000000000000")
	v.SetDefault("sale.burn_ratio_bps", 5000)
	v.SetDefault("sale.liquidity_ratio_bps", 4000)
	v.SetDefault("sale.max_batch_size", 20)
	v.SetDefault("sale.replay_backend", "memory")
	v.SetDefault("devnet.pool_reserve_utility", "1000000000000000000000000")
	v.SetDefault("devnet.pool_reserve_reference", "1000000000000000000000")
	v.SetDefault("devnet.swap_fee_bps", 30)
	v.SetDefault("market.refresh_seconds", 15)
	v.SetDefault("market.stale_seconds", 60)
	v.SetDefault("market.item_counts", []int{1, 5, 10, 20})
	v.SetDefault("market.decimals", 18)
	v.SetDefault("market.slippage_bps", 100)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("database.idempotency_retention_hours", 168)
	v.SetDefault("database.audit_retention_days", 30)
	v.SetDefault("database.cleanup_interval_minutes", 60)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_minutes", 30)
	v.SetDefault("database.connect_timeout_seconds", 5)
}
