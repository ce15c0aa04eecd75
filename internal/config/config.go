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
	Cron   CronConfig   `mapstructure:"cron"`

	Venue       VenueConfig       `mapstructure:"venue"`
	Attestation AttestationConfig `mapstructure:"attestation"`
	Evaluation  EvaluationConfig  `mapstructure:"evaluation"`
	Funding     FundingConfig     `mapstructure:"funding"`
	Vault       VaultConfig       `mapstructure:"vault"`
	Challenges  ChallengesConfig  `mapstructure:"challenges"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
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
	// Driver selects the store: memory (authoritative in-process maps,
	// the default), postgres or sqlite (gorm-backed).
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	FundedSweep  string `mapstructure:"funded_sweep"`
	VaultRefresh string `mapstructure:"vault_refresh"`
}

type VenueConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AttestationConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type EvaluationConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`

	// SharpePeriodsPerYear is the annualization base for the Sharpe proxy
	// (sqrt is applied); the historic constant 8760 implies hourly periods.
	SharpePeriodsPerYear float64 `mapstructure:"sharpe_periods_per_year"`

	// EquitySanityBand rejects live equity reads deviating from starting
	// capital by more than this fraction; the fallback generator is used
	// instead.
	EquitySanityBand float64 `mapstructure:"equity_sanity_band"`
}

type FundingConfig struct {
	Multiplier     float64 `mapstructure:"multiplier"`
	ProtocolFeeBps int64   `mapstructure:"protocol_fee_bps"`
	MaxDailyLoss   float64 `mapstructure:"max_daily_loss"`
	MaxTotalLoss   float64 `mapstructure:"max_total_loss"`
}

type VaultConfig struct {
	DefaultProfitShareBps   int64   `mapstructure:"default_profit_share_bps"`
	ScaleUpPercent          float64 `mapstructure:"scale_up_percent"`
	ScaleUpRequiredMonths   int     `mapstructure:"scale_up_required_months"`
	ScaleUpMinProfitPercent float64 `mapstructure:"scale_up_min_profit_percent"`
}

type ChallengesConfig struct {
	Tiers          []TierConfig  `mapstructure:"tiers"`
	Phases         []PhaseConfig `mapstructure:"phases"`
	MaxDailyLoss   float64       `mapstructure:"max_daily_loss"`
	MaxTotalLoss   float64       `mapstructure:"max_total_loss"`
	MinTradingDays int           `mapstructure:"min_trading_days"`
}

type TierConfig struct {
	Capital float64 `mapstructure:"capital"`
	Fee     float64 `mapstructure:"fee"`
}

type PhaseConfig struct {
	Phase        int     `mapstructure:"phase"`
	Label        string  `mapstructure:"label"`
	ProfitTarget float64 `mapstructure:"profit_target"`
	DurationDays int     `mapstructure:"duration_days"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.funded_sweep", "@every 1m")
	v.SetDefault("cron.vault_refresh", "@every 5m")
	v.SetDefault("venue.base_url", "http://localhost:9010")
	v.SetDefault("venue.timeout", "10s")
	v.SetDefault("attestation.enabled", false)
	v.SetDefault("attestation.endpoint", "")
	v.SetDefault("attestation.timeout", "10s")
	v.SetDefault("evaluation.enabled", true)
	v.SetDefault("evaluation.interval", "5s")
	v.SetDefault("evaluation.sharpe_periods_per_year", 8760)
	v.SetDefault("evaluation.equity_sanity_band", 0.5)
	v.SetDefault("funding.multiplier", 5)
	v.SetDefault("funding.protocol_fee_bps", 1000)
	v.SetDefault("funding.max_daily_loss", 5)
	v.SetDefault("funding.max_total_loss", 10)
	v.SetDefault("vault.default_profit_share_bps", 9000)
	v.SetDefault("vault.scale_up_percent", 25)
	v.SetDefault("vault.scale_up_required_months", 2)
	v.SetDefault("vault.scale_up_min_profit_percent", 10)
	v.SetDefault("challenges.max_daily_loss", 5)
	v.SetDefault("challenges.max_total_loss", 10)
	v.SetDefault("challenges.min_trading_days", 10)
	v.SetDefault("challenges.tiers", []map[string]any{
		{"capital": 10000, "fee": 89},
		{"capital": 25000, "fee": 199},
		{"capital": 50000, "fee": 299},
		{"capital": 100000, "fee": 499},
		{"capital": 200000, "fee": 899},
	})
	v.SetDefault("challenges.phases", []map[string]any{
		{"phase": 1, "label": "Challenge", "profit_target": 8, "duration_days": 30},
		{"phase": 2, "label": "Verification", "profit_target": 5, "duration_days": 60},
	})

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
