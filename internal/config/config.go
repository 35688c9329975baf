package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses yaml scalars like "30m" or "500ms", which yaml.v3 does not
// do for time.Duration on its own.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the single immutable configuration object for the engine. It is
// constructed once at startup, validated, and passed by reference into every
// component; nothing reads ambient global state after load.
type Config struct {
	Detection DetectionConfig `yaml:"detection"`
	Trading   TradingConfig   `yaml:"trading"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Retry     RetryConfig     `yaml:"retry"`
	Sources   SourcesConfig   `yaml:"sources"`
	Storage   StorageConfig   `yaml:"storage"`
	Notify    NotifyConfig    `yaml:"notify"`

	Credentials Credentials `yaml:"-"`
}

// DetectionConfig holds the signal-detection thresholds and score shape.
type DetectionConfig struct {
	PreAuctionWindowDays      int     `yaml:"pre_licitacion_window"`
	VolumeDropThreshold       float64 `yaml:"volume_drop_threshold"`
	SpreadIncreaseThreshold   float64 `yaml:"spread_increase_threshold"`
	SpreadPercentileThreshold float64 `yaml:"spread_percentile_threshold"`
	MEPSpreadThreshold        float64 `yaml:"mep_spread_threshold"`
	MinConfidenceScore        float64 `yaml:"min_confidence_score"`

	VolumeWindow    int `yaml:"volume_window"`
	MinObservations int `yaml:"min_observations"`

	// Saturation ceilings normalize the excess over each threshold into [0,1].
	VolumeSaturation     float64 `yaml:"volume_saturation"`
	SpreadSaturationPts  float64 `yaml:"spread_saturation_pts"`
	MEPSaturation        float64 `yaml:"mep_saturation"`
	VolumeWeight         float64 `yaml:"volume_weight"`
	SpreadWeight         float64 `yaml:"spread_weight"`
	MEPWeight            float64 `yaml:"mep_weight"`
	TemporalWeight       float64 `yaml:"temporal_weight"`

	// Fallback instrument lists used when a scraped event carries no codes.
	InstrumentsLecap  []string `yaml:"instrumentos_lecap"`
	InstrumentsCER    []string `yaml:"instrumentos_cer"`
	InstrumentsLinked []string `yaml:"instrumentos_linked"`
}

// TradingConfig holds position sizing and risk management parameters.
type TradingConfig struct {
	InitialCapital         float64 `yaml:"initial_capital"`
	PositionSizePct        float64 `yaml:"position_size_pct"`
	StopLossPct            float64 `yaml:"stop_loss_pct"`
	TakeProfitPct          float64 `yaml:"take_profit_pct"`
	MaxPositions           int     `yaml:"max_positions"`
	RolloverCloseThreshold float64 `yaml:"rollover_close_threshold"`
}

// ScheduleConfig drives the cooperative evaluation loop.
type ScheduleConfig struct {
	Interval    Duration `yaml:"interval"`
	MarketOpen  string   `yaml:"market_open"`  // "11:00" local
	MarketClose string   `yaml:"market_close"` // "18:00" local
	Timezone    string   `yaml:"timezone"`
}

// RetryConfig bounds every external call made during a cycle.
type RetryConfig struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	BaseBackoff    Duration `yaml:"base_backoff"`
	RequestTimeout Duration `yaml:"request_timeout"`
	RatePerSecond  float64  `yaml:"rate_per_second"`
}

// SourcesConfig points at the external data providers.
type SourcesConfig struct {
	BrokerBaseURL   string `yaml:"broker_base_url"`
	CalendarURL     string `yaml:"calendar_url"`
	DollarFeedURL   string `yaml:"dollar_feed_url"`
	BrokerEnv       string `yaml:"broker_env"` // "remarkets" or "live"
}

// StorageConfig holds the durable-store and cache endpoints. The DSN values
// may be overridden from environment so secrets stay out of the file.
type StorageConfig struct {
	PostgresDSN string   `yaml:"postgres_dsn"`
	RedisAddr   string   `yaml:"redis_addr"`
	RedisTTL    Duration `yaml:"redis_ttl"`
}

// NotifyConfig controls the alert channel. Token and chat id come from env.
type NotifyConfig struct {
	TelegramEnabled bool `yaml:"telegram_enabled"`
}

// Credentials are supplied exclusively via environment and never persisted.
type Credentials struct {
	BrokerUser      string
	BrokerPassword  string
	BrokerAccount   string
	TelegramToken   string
	TelegramChatID  string
}

// HasBroker reports whether a complete broker credential set is present.
func (c Credentials) HasBroker() bool {
	return c.BrokerUser != "" && c.BrokerPassword != "" && c.BrokerAccount != ""
}

// Default returns the production defaults mirroring the documented strategy.
func Default() *Config {
	return &Config{
		Detection: DetectionConfig{
			PreAuctionWindowDays:      3,
			VolumeDropThreshold:       0.30,
			SpreadIncreaseThreshold:   0.15,
			SpreadPercentileThreshold: 80,
			MEPSpreadThreshold:        0.015,
			MinConfidenceScore:        0.75,
			VolumeWindow:              30,
			MinObservations:           5,
			VolumeSaturation:          0.025,
			SpreadSaturationPts:       8.0,
			MEPSaturation:             0.010,
			VolumeWeight:              0.35,
			SpreadWeight:              0.30,
			MEPWeight:                 0.20,
			TemporalWeight:            0.15,
			InstrumentsLecap:          []string{"S17A6", "S31L6", "S30N6", "T15E7"},
			InstrumentsCER:            []string{"TZX26", "TZXD6", "TZX27", "TZX28"},
			InstrumentsLinked:         []string{"D30A6"},
		},
		Trading: TradingConfig{
			InitialCapital:         50000,
			PositionSizePct:        0.15,
			StopLossPct:            0.015,
			TakeProfitPct:          0.025,
			MaxPositions:           3,
			RolloverCloseThreshold: 0.95,
		},
		Schedule: ScheduleConfig{
			Interval:    Duration(time.Hour),
			MarketOpen:  "11:00",
			MarketClose: "18:00",
			Timezone:    "America/Argentina/Buenos_Aires",
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseBackoff:    Duration(500 * time.Millisecond),
			RequestTimeout: Duration(10 * time.Second),
			RatePerSecond:  5,
		},
		Sources: SourcesConfig{
			BrokerBaseURL: "https://api.remarkets.primary.com.ar",
			CalendarURL:   "https://www.argentina.gob.ar/economia/finanzas/licitaciones-de-letras-y-bonos-del-tesoro",
			DollarFeedURL: "https://dolarapi.com/v1/dolares",
			BrokerEnv:     "remarkets",
		},
		Storage: StorageConfig{
			RedisTTL: Duration(15 * time.Minute),
		},
		Notify: NotifyConfig{},
	}
}

// Load reads an optional YAML file over the defaults, merges environment
// credentials, and validates. A missing path loads pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Credentials = credentialsFromEnv()
	if dsn := os.Getenv("LICDETECT_PG_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if addr := os.Getenv("LICDETECT_REDIS_ADDR"); addr != "" {
		cfg.Storage.RedisAddr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func credentialsFromEnv() Credentials {
	return Credentials{
		BrokerUser:     os.Getenv("ROFEX_USER"),
		BrokerPassword: os.Getenv("ROFEX_PASSWORD"),
		BrokerAccount:  os.Getenv("ROFEX_ACCOUNT"),
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),
	}
}

// Validate fails fast on out-of-range values so bad configuration surfaces at
// startup instead of mid-evaluation.
func (c *Config) Validate() error {
	d := c.Detection
	if d.PreAuctionWindowDays < 1 {
		return fmt.Errorf("pre_licitacion_window must be >= 1, got %d", d.PreAuctionWindowDays)
	}
	if d.VolumeDropThreshold <= 0 || d.VolumeDropThreshold >= 1 {
		return fmt.Errorf("volume_drop_threshold must be in (0,1), got %v", d.VolumeDropThreshold)
	}
	if d.SpreadPercentileThreshold < 0 || d.SpreadPercentileThreshold > 100 {
		return fmt.Errorf("spread_percentile_threshold must be in [0,100], got %v", d.SpreadPercentileThreshold)
	}
	if d.MEPSpreadThreshold <= 0 {
		return fmt.Errorf("mep_spread_threshold must be positive, got %v", d.MEPSpreadThreshold)
	}
	if d.MinConfidenceScore < 0 || d.MinConfidenceScore > 1 {
		return fmt.Errorf("min_confidence_score must be in [0,1], got %v", d.MinConfidenceScore)
	}
	if d.MinObservations < 2 {
		return fmt.Errorf("min_observations must be >= 2, got %d", d.MinObservations)
	}
	if d.VolumeWindow < d.MinObservations {
		return fmt.Errorf("volume_window (%d) must be >= min_observations (%d)", d.VolumeWindow, d.MinObservations)
	}
	if d.VolumeSaturation <= 0 || d.SpreadSaturationPts <= 0 || d.MEPSaturation <= 0 {
		return fmt.Errorf("saturation ceilings must be positive")
	}
	weightSum := d.VolumeWeight + d.SpreadWeight + d.MEPWeight + d.TemporalWeight
	if weightSum < 0.999 || weightSum > 1.001 {
		return fmt.Errorf("score weights must sum to 1.0, got %v", weightSum)
	}

	t := c.Trading
	if t.PositionSizePct <= 0 || t.PositionSizePct > 1 {
		return fmt.Errorf("position_size_pct must be in (0,1], got %v", t.PositionSizePct)
	}
	if t.StopLossPct <= 0 || t.TakeProfitPct <= 0 {
		return fmt.Errorf("stop_loss_pct and take_profit_pct must be positive")
	}
	if t.MaxPositions < 1 {
		return fmt.Errorf("max_positions must be >= 1, got %d", t.MaxPositions)
	}
	if t.RolloverCloseThreshold <= 0 || t.RolloverCloseThreshold > 1 {
		return fmt.Errorf("rollover_close_threshold must be in (0,1], got %v", t.RolloverCloseThreshold)
	}

	if c.Schedule.Interval.Std() < time.Minute {
		return fmt.Errorf("schedule interval must be >= 1m, got %v", c.Schedule.Interval.Std())
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}
