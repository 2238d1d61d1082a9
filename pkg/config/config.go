package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Stream struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"stream"`
	Broker struct {
		Mode      string        `yaml:"mode"` // "paper" or "rest"
		BaseURL   string        `yaml:"base_url"`
		APIKey    string        `yaml:"api_key"`
		APISecret string        `yaml:"api_secret"`
		Timeout   time.Duration `yaml:"timeout"`
		PaperCash float64       `yaml:"paper_cash"`
		RateLimit struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"rate_limit"`
	} `yaml:"broker"`
	Engine struct {
		Symbols         []string      `yaml:"symbols"`
		Notional        float64       `yaml:"notional"` // target dollar size per entry
		ScanInterval    time.Duration `yaml:"scan_interval"`
		ExitInterval    time.Duration `yaml:"exit_interval"`
		RefreshInterval time.Duration `yaml:"refresh_interval"`
		DailyResetTime  string        `yaml:"daily_reset_time"` // "HH:MM"
		ErrorBudget     int           `yaml:"error_budget"`
	} `yaml:"engine"`
	Risk struct {
		DailyLossLimit         float64 `yaml:"daily_loss_limit"`
		MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	} `yaml:"risk"`
	Position struct {
		MaxHold          time.Duration `yaml:"max_hold"`
		FillTimeout      time.Duration `yaml:"fill_timeout"`
		FillPollInterval time.Duration `yaml:"fill_poll_interval"`
		MaxRetries       int           `yaml:"max_retries"`
		RetryBackoff     time.Duration `yaml:"retry_backoff"`
		TrailActivation  float64       `yaml:"trail_activation"`
		TrailDistance    float64       `yaml:"trail_distance"`
		VolatilityFloor  float64       `yaml:"volatility_floor"`
	} `yaml:"position"`
	Scanner struct {
		MinConfidence float64 `yaml:"min_confidence"`
		TargetProfit  float64 `yaml:"target_profit"`
		StopLoss      float64 `yaml:"stop_loss"`
	} `yaml:"scanner"`
	Indicator struct {
		Oversold   float64 `yaml:"oversold"`
		Overbought float64 `yaml:"overbought"`
	} `yaml:"indicator"`
	Validation struct {
		Primary         string             `yaml:"primary"`
		Confirmations   []string           `yaml:"confirmations"`
		Weights         map[string]float64 `yaml:"weights"`
		Decay           map[string]float64 `yaml:"decay"`
		MinConfirmation float64            `yaml:"min_confirmation"`
	} `yaml:"validation"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic"`
		TicksTopic   string   `yaml:"ticks_topic"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			BatchTimeout time.Duration `yaml:"batch_timeout"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		Table            string        `yaml:"table"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host"`
		Port     int           `yaml:"port"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Override with environment variables
	if v := os.Getenv("STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("BROKER_API_SECRET"); v != "" {
		c.Broker.APISecret = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Engine.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// applyDefaults fills zero values that have sensible process defaults.
// Component thresholds default inside their own packages; only wiring
// and schedule knobs live here.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Broker.Mode == "" {
		c.Broker.Mode = "paper"
	}
	if c.Broker.PaperCash == 0 {
		c.Broker.PaperCash = 100_000
	}
	if c.Broker.Timeout == 0 {
		c.Broker.Timeout = 10 * time.Second
	}
	if c.Broker.RateLimit.Limit == 0 {
		c.Broker.RateLimit.Limit = 195
	}
	if c.Broker.RateLimit.Window == 0 {
		c.Broker.RateLimit.Window = time.Minute
	}
	if c.Engine.Notional == 0 {
		c.Engine.Notional = 1000
	}
	if c.Engine.ScanInterval == 0 {
		c.Engine.ScanInterval = 30 * time.Second
	}
	if c.Engine.ExitInterval == 0 {
		c.Engine.ExitInterval = 5 * time.Second
	}
	if c.Engine.RefreshInterval == 0 {
		c.Engine.RefreshInterval = time.Minute
	}
	if c.Engine.DailyResetTime == "" {
		c.Engine.DailyResetTime = "00:00"
	}
	if c.Engine.ErrorBudget == 0 {
		c.Engine.ErrorBudget = 10
	}
	if c.Risk.DailyLossLimit == 0 {
		c.Risk.DailyLossLimit = 500
	}
	if c.Risk.MaxConcurrentPositions == 0 {
		c.Risk.MaxConcurrentPositions = 3
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = 5 * time.Second
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = 30 * time.Second
	}
	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "trades"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 30 * time.Second
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("engine.symbols cannot be empty")
	}
	if c.Broker.Mode != "paper" && c.Broker.Mode != "rest" {
		return fmt.Errorf("broker.mode must be 'paper' or 'rest', got '%s'", c.Broker.Mode)
	}
	if c.Broker.Mode == "rest" {
		if c.Broker.BaseURL == "" {
			return fmt.Errorf("broker.base_url is required in rest mode")
		}
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required in rest mode")
		}
	}
	if c.Stream.WebSocketURL != "" && c.Stream.APIKey == "" {
		return fmt.Errorf("stream.api_key is required when stream.websocket_url is set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	for _, w := range c.Validation.Weights {
		if w < 0 {
			return fmt.Errorf("validation.weights must be non-negative")
		}
	}
	return nil
}
