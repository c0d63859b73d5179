package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Cron   CronConfig   `mapstructure:"cron"`

	Risk           RiskConfig           `mapstructure:"risk"`
	StrategyEngine StrategyEngineConfig `mapstructure:"strategy_engine"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Performance    PerformanceConfig    `mapstructure:"performance"`
	MarketData     MarketDataConfig     `mapstructure:"market_data"`
	Execution      ExecutionConfig      `mapstructure:"execution"`
	Notify         NotifyConfig         `mapstructure:"notify"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Settings       SettingsConfig       `mapstructure:"settings"`

	// StrategyDefaults overrides evaluator defaults per strategy type,
	// e.g. {"TREND_FOLLOWING": {"ma_short": 10}}.
	StrategyDefaults map[string]any `mapstructure:"strategy_defaults"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CacheConfig struct {
	// Driver is memory or redis.
	Driver         string        `mapstructure:"driver"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	MaxCostBytes   int64         `mapstructure:"max_cost_bytes"`
	AccountTTL     time.Duration `mapstructure:"account_ttl"`
	PerformanceTTL time.Duration `mapstructure:"performance_ttl"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	Issuer     string        `mapstructure:"issuer"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	DailySnapshot string `mapstructure:"daily_snapshot"`
}

type RiskConfig struct {
	MaxPositionSizePct     float64 `mapstructure:"max_position_size_pct"`
	RiskRewardRatio        float64 `mapstructure:"risk_reward_ratio"`
	MaxTradesPerDay        int     `mapstructure:"max_trades_per_day"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	// ContractSize converts volume*price into account currency.
	ContractSize float64 `mapstructure:"contract_size"`
	// Used when an account carries no limit of its own.
	DefaultDailyLossPct   float64 `mapstructure:"default_daily_loss_pct"`
	DefaultMaxDrawdownPct float64 `mapstructure:"default_max_drawdown_pct"`

	PipSize   float64 `mapstructure:"pip_size"`
	PipValue  float64 `mapstructure:"pip_value"`
	MinVolume float64 `mapstructure:"min_volume"`
	MaxVolume float64 `mapstructure:"max_volume"`
}

type StrategyEngineConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	FeedTimeout  time.Duration `mapstructure:"feed_timeout"`
	ExecTimeout  time.Duration `mapstructure:"exec_timeout"`
	// Symbols is the watch list given to strategies created without symbols.
	Symbols []string `mapstructure:"symbols"`
}

type MonitoringConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	PerformanceInterval time.Duration `mapstructure:"performance_interval"`
	RiskInterval        time.Duration `mapstructure:"risk_interval"`
	AlertsInterval      time.Duration `mapstructure:"alerts_interval"`
	CleanupInterval     time.Duration `mapstructure:"cleanup_interval"`
	CancelledRetention  time.Duration `mapstructure:"cancelled_retention"`
	SnapshotRetention   time.Duration `mapstructure:"snapshot_retention"`
	AutoFailOnDrawdown  bool          `mapstructure:"auto_fail_on_drawdown"`
}

type PerformanceConfig struct {
	MinWinRate      float64 `mapstructure:"min_win_rate"`
	MinProfitFactor float64 `mapstructure:"min_profit_factor"`
	MaxDrawdown     float64 `mapstructure:"max_drawdown"`
	MinSharpe       float64 `mapstructure:"min_sharpe"`
	// MinTrades is the sample size below which thresholds are not alerted.
	MinTrades int `mapstructure:"min_trades"`
}

type MarketDataConfig struct {
	// Source is simulated or http.
	Source        string        `mapstructure:"source"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Seed          int64         `mapstructure:"seed"`
}

type ExecutionConfig struct {
	// Gateway is paper or http.
	Gateway      string        `mapstructure:"gateway"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SlippagePips float64       `mapstructure:"slippage_pips"`
}

type NotifyConfig struct {
	WebhookURL       string        `mapstructure:"webhook_url"`
	TelegramBotToken string        `mapstructure:"telegram_bot_token"`
	TelegramChatID   string        `mapstructure:"telegram_chat_id"`
	TelegramBaseURL  string        `mapstructure:"telegram_base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type SettingsConfig struct {
	// EncryptionKey seals credential settings at rest (base64 or raw, 16/24/32 bytes).
	EncryptionKey         string `mapstructure:"encryption_key"`
	PreviousEncryptionKey string `mapstructure:"previous_encryption_key"`
}

// DefaultSymbols is the strategy watch list used when none is configured.
var DefaultSymbols = []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "GOLD"}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.StrategyEngine.Symbols) == 0 {
		cfg.StrategyEngine.Symbols = append([]string(nil), DefaultSymbols...)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:propdesk.db?_busy_timeout=5000")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "propdesk:")
	v.SetDefault("cache.max_cost_bytes", 64<<20)
	v.SetDefault("cache.account_ttl", "60s")
	v.SetDefault("cache.performance_ttl", "300s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.issuer", "propdesk")
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.daily_snapshot", "5 0 0 * * *")

	v.SetDefault("risk.max_position_size_pct", 2)
	v.SetDefault("risk.risk_reward_ratio", 1.5)
	v.SetDefault("risk.max_trades_per_day", 20)
	v.SetDefault("risk.max_concurrent_positions", 5)
	v.SetDefault("risk.contract_size", 1)
	v.SetDefault("risk.default_daily_loss_pct", 5)
	v.SetDefault("risk.default_max_drawdown_pct", 10)
	v.SetDefault("risk.pip_size", 0.0001)
	v.SetDefault("risk.pip_value", 10)
	v.SetDefault("risk.min_volume", 0.01)
	v.SetDefault("risk.max_volume", 10)

	v.SetDefault("strategy_engine.enabled", true)
	v.SetDefault("strategy_engine.tick_interval", "5s")
	v.SetDefault("strategy_engine.feed_timeout", "2s")
	v.SetDefault("strategy_engine.exec_timeout", "5s")

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.performance_interval", "10s")
	v.SetDefault("monitoring.risk_interval", "5s")
	v.SetDefault("monitoring.alerts_interval", "10s")
	v.SetDefault("monitoring.cleanup_interval", "300s")
	v.SetDefault("monitoring.cancelled_retention", "24h")
	v.SetDefault("monitoring.snapshot_retention", "2160h")
	v.SetDefault("monitoring.auto_fail_on_drawdown", true)

	v.SetDefault("performance.min_win_rate", 45)
	v.SetDefault("performance.min_profit_factor", 1.5)
	v.SetDefault("performance.max_drawdown", 10)
	v.SetDefault("performance.min_sharpe", 1.0)
	v.SetDefault("performance.min_trades", 10)

	v.SetDefault("market_data.source", "simulated")
	v.SetDefault("market_data.base_url", "http://127.0.0.1:8000")
	v.SetDefault("market_data.timeout", "2s")
	v.SetDefault("market_data.cache_ttl", "5s")
	v.SetDefault("market_data.rate_per_second", 10)
	v.SetDefault("market_data.burst", 20)
	v.SetDefault("market_data.seed", 42)

	v.SetDefault("execution.gateway", "paper")
	v.SetDefault("execution.base_url", "http://127.0.0.1:8000")
	v.SetDefault("execution.timeout", "5s")
	v.SetDefault("execution.slippage_pips", 0)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.telegram_bot_token", "")
	v.SetDefault("notify.telegram_chat_id", "")
	v.SetDefault("notify.telegram_base_url", "https://api.telegram.org")
	v.SetDefault("notify.timeout", "5s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic", "propdesk.events")

	v.SetDefault("settings.encryption_key", "")
	v.SetDefault("settings.previous_encryption_key", "")
}
