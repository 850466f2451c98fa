package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"quote-drift-tracker/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Jupiter  JupiterConfig  `mapstructure:"jupiter"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
	Demo     DemoConfig     `mapstructure:"demo"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// TrackerConfig governs the sampling engine.
type TrackerConfig struct {
	Source            string        `mapstructure:"source"`
	Preset            string        `mapstructure:"preset"`
	InputMint         string        `mapstructure:"input_mint"`
	OutputMint        string        `mapstructure:"output_mint"`
	Amount            int64         `mapstructure:"amount"`
	Frequency         float64       `mapstructure:"frequency"`
	Workers           int           `mapstructure:"workers"`
	Duration          time.Duration `mapstructure:"duration"`
	SlippageBps       int           `mapstructure:"slippage_bps"`
	LatencyInjection  time.Duration `mapstructure:"latency_injection"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	FaultBackoff      time.Duration `mapstructure:"fault_backoff"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RetentionCap      int           `mapstructure:"retention_cap"`
}

// AnalysisConfig tunes statistics and opportunity detection.
type AnalysisConfig struct {
	DriftThreshold    float64       `mapstructure:"drift_threshold"`
	TimingThreshold   time.Duration `mapstructure:"timing_threshold"`
	AnomalyZThreshold float64       `mapstructure:"anomaly_z_threshold"`
	StatsInterval     time.Duration `mapstructure:"stats_interval"`
	ScanInterval      time.Duration `mapstructure:"scan_interval"`
	ScanWindow        int           `mapstructure:"scan_window"`
	ScanMinSamples    int           `mapstructure:"scan_min_samples"`
	ScanMinSuccessful int           `mapstructure:"scan_min_successful"`
	FlatCost          float64       `mapstructure:"flat_cost"`
	ProfitCost        float64       `mapstructure:"profit_cost"`
	Dedupe            bool          `mapstructure:"dedupe"`
}

// JupiterConfig captures the Jupiter quote API.
type JupiterConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// EthereumConfig covers on-chain vault quotes.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DemoConfig drives the simulated venue.
type DemoConfig struct {
	Seed        int64   `mapstructure:"seed"`
	BaseOutput  int64   `mapstructure:"base_output"`
	FailureRate float64 `mapstructure:"failure_rate"`
	SpikeRate   float64 `mapstructure:"spike_rate"`
}

// AlertingConfig defines opportunity alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BotToken    string        `mapstructure:"bot_token"`
	ChatID      string        `mapstructure:"chat_id"`
	APIBase     string        `mapstructure:"api_base"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// ExportConfig sets final export targets.
type ExportConfig struct {
	CSVPath string `mapstructure:"csv_path"`
	PNGPath string `mapstructure:"png_path"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUOTEDRIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ApplyPreset(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quotedrift")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("tracker.source", SourceJupiter)
	v.SetDefault("tracker.input_mint", TokenMints["SOL"])
	v.SetDefault("tracker.output_mint", TokenMints["USDC"])
	v.SetDefault("tracker.amount", 1_000_000)
	v.SetDefault("tracker.frequency", 5.0)
	v.SetDefault("tracker.workers", 10)
	v.SetDefault("tracker.duration", "60s")
	v.SetDefault("tracker.slippage_bps", 50)
	v.SetDefault("tracker.latency_injection", "0s")
	v.SetDefault("tracker.rate_limit_cooldown", "2s")
	v.SetDefault("tracker.fault_backoff", "1s")
	v.SetDefault("tracker.shutdown_timeout", "5s")
	v.SetDefault("tracker.retention_cap", 1000)

	v.SetDefault("analysis.drift_threshold", 0.01)
	v.SetDefault("analysis.timing_threshold", "50ms")
	v.SetDefault("analysis.anomaly_z_threshold", 2.0)
	v.SetDefault("analysis.stats_interval", "10s")
	v.SetDefault("analysis.scan_interval", "5s")
	v.SetDefault("analysis.scan_window", 20)
	v.SetDefault("analysis.scan_min_samples", 10)
	v.SetDefault("analysis.scan_min_successful", 5)
	v.SetDefault("analysis.flat_cost", 0.0)
	v.SetDefault("analysis.profit_cost", 0.01)
	v.SetDefault("analysis.dedupe", true)

	v.SetDefault("jupiter.base_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("jupiter.request_timeout", "10s")
	v.SetDefault("jupiter.user_agent", "quotedrift/1.0")

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("demo.seed", 0)
	v.SetDefault("demo.base_output", 240_000_000)
	v.SetDefault("demo.failure_rate", 0.02)
	v.SetDefault("demo.spike_rate", 0.05)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.min_interval", "3s")

	v.SetDefault("export.csv_path", fmt.Sprintf("quote_analysis_%s.csv", time.Now().Format("20060102_150405")))
	v.SetDefault("export.png_path", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks; every failure is a *ConfigError.
func (c *Config) Validate() error {
	if err := c.Tracker.Validate(); err != nil {
		return err
	}
	switch c.Tracker.Source {
	case SourceJupiter, SourceDemo:
	case SourceVault:
		if c.Ethereum.RPCURL == "" {
			return newConfigError("ethereum.rpc_url", "is required for the vault source")
		}
	default:
		return newConfigError("tracker.source", fmt.Sprintf("unknown source %q", c.Tracker.Source))
	}
	if c.Analysis.DriftThreshold < 0 {
		return newConfigError("analysis.drift_threshold", "cannot be negative")
	}
	if c.Analysis.TimingThreshold < 0 {
		return newConfigError("analysis.timing_threshold", "cannot be negative")
	}
	if c.Analysis.StatsInterval <= 0 {
		return newConfigError("analysis.stats_interval", "must be greater than zero")
	}
	if c.Analysis.ScanInterval <= 0 {
		return newConfigError("analysis.scan_interval", "must be greater than zero")
	}
	if c.Demo.FailureRate < 0 || c.Demo.FailureRate > 1 {
		return newConfigError("demo.failure_rate", "must be within [0, 1]")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return newConfigError("alerting.telegram.bot_token", "必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return newConfigError("alerting.telegram.chat_id", "必须配置")
		}
	}
	return nil
}

// Validate checks the sampling tunables.
func (t TrackerConfig) Validate() error {
	if t.Frequency <= 0 {
		return newConfigError("tracker.frequency", "must be greater than zero")
	}
	if t.Workers <= 0 {
		return newConfigError("tracker.workers", "must be greater than zero")
	}
	if t.Duration <= 0 {
		return newConfigError("tracker.duration", "must be greater than zero")
	}
	if t.Amount <= 0 {
		return newConfigError("tracker.amount", "must be greater than zero")
	}
	if t.SlippageBps < 0 {
		return newConfigError("tracker.slippage_bps", "cannot be negative")
	}
	if t.LatencyInjection < 0 {
		return newConfigError("tracker.latency_injection", "cannot be negative")
	}
	if t.InputMint == "" || t.OutputMint == "" {
		return newConfigError("tracker.input_mint/output_mint", "must both be set")
	}
	return nil
}

// WorkerInterval is the per-worker fire interval, workers / frequency seconds.
func (t TrackerConfig) WorkerInterval() time.Duration {
	if t.Frequency <= 0 {
		return 0
	}
	return time.Duration(float64(t.Workers) / t.Frequency * float64(time.Second))
}

// ExpectedRequests is frequency × duration.
func (t TrackerConfig) ExpectedRequests() int {
	return int(t.Frequency * t.Duration.Seconds())
}
