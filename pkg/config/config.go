package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"CryptoScanner/pkg/util"
)

// Provider describes one OpenAI-compatible inference backend. The API
// key is never stored in the file, only the env var name holding it.
type Provider struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	KeyEnv      string `yaml:"key_env"`
	Model       string `yaml:"model"`
	RPM         int    `yaml:"rpm"`
	QualityTier string `yaml:"quality_tier"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Inference struct {
		Providers      []Provider      `yaml:"providers"`
		Cooldown       time.Duration   `yaml:"cooldown"`
		Window         time.Duration   `yaml:"window"`
		RetrySchedule  []time.Duration `yaml:"retry_schedule"`
		RequestTimeout time.Duration   `yaml:"request_timeout"`
	} `yaml:"inference"`
	Estimator struct {
		Temperatures []float64 `yaml:"temperatures"`
		Quorum       int       `yaml:"quorum"`
		ExtraRounds  int       `yaml:"extra_rounds"`
		Tolerance    float64   `yaml:"tolerance"`
	} `yaml:"estimator"`
	Signals struct {
		Threshold      float64 `yaml:"threshold"`
		MaxTokenReturn float64 `yaml:"max_token_return"`
		Similarity     float64 `yaml:"similarity"`
		DateWindowDays int     `yaml:"date_window_days"`
		WeightByTier   bool    `yaml:"weight_by_tier"`
	} `yaml:"signals"`
	Pipeline struct {
		Workers     int           `yaml:"workers"`
		EventLimit  int           `yaml:"event_limit"`
		SignalLimit int           `yaml:"signal_limit"`
		RunTimeout  time.Duration `yaml:"run_timeout"`
		Interval    time.Duration `yaml:"interval"`
	} `yaml:"pipeline"`
	Intake struct {
		Type           string  `yaml:"type"` // kafka or websocket
		Similarity     float64 `yaml:"similarity"`
		DateWindowDays int     `yaml:"date_window_days"`
		MaxRPS         int     `yaml:"max_rps"`
		BufferSize     int     `yaml:"buffer_size"`
	} `yaml:"intake"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic"`
		SignalsTopic string   `yaml:"signals_topic"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
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
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
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
	Collector struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Channels       []string      `yaml:"channels"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"collector"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Cache struct {
		SignalsTTL time.Duration `yaml:"signals_ttl"`
	} `yaml:"cache"`
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
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("INTAKE_TYPE"); v != "" {
		c.Intake.Type = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("SERVER_PORT"), c.Server.Port)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_EVENTS_TOPIC"); v != "" {
		c.Kafka.EventsTopic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("COLLECTOR_API_KEY"); v != "" {
		c.Collector.APIKey = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Inference.Cooldown == 0 {
		c.Inference.Cooldown = 10 * time.Second
	}
	if c.Inference.Window == 0 {
		c.Inference.Window = time.Minute
	}
	if len(c.Inference.RetrySchedule) == 0 {
		c.Inference.RetrySchedule = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}
	}
	if c.Inference.RequestTimeout == 0 {
		c.Inference.RequestTimeout = 60 * time.Second
	}
	if len(c.Estimator.Temperatures) == 0 {
		c.Estimator.Temperatures = []float64{0.3, 0.5, 0.7}
	}
	if c.Estimator.Quorum == 0 {
		c.Estimator.Quorum = 2
	}
	if c.Estimator.ExtraRounds == 0 {
		c.Estimator.ExtraRounds = 1
	}
	if c.Estimator.Tolerance == 0 {
		c.Estimator.Tolerance = 0.01
	}
	if c.Signals.Threshold == 0 {
		c.Signals.Threshold = 3.0
	}
	if c.Signals.MaxTokenReturn == 0 {
		c.Signals.MaxTokenReturn = 15.0
	}
	if c.Signals.Similarity == 0 {
		c.Signals.Similarity = 0.6
	}
	if c.Signals.DateWindowDays == 0 {
		c.Signals.DateWindowDays = 3
	}
	if c.Intake.Similarity == 0 {
		c.Intake.Similarity = c.Signals.Similarity
	}
	if c.Intake.DateWindowDays == 0 {
		c.Intake.DateWindowDays = c.Signals.DateWindowDays
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.EventLimit == 0 {
		c.Pipeline.EventLimit = 100
	}
	if c.Pipeline.SignalLimit == 0 {
		c.Pipeline.SignalLimit = 500
	}
	if c.Pipeline.RunTimeout == 0 {
		c.Pipeline.RunTimeout = 15 * time.Minute
	}
	if c.Pipeline.Interval == 0 {
		c.Pipeline.Interval = 30 * time.Minute
	}
	if c.Collector.ReconnectDelay == 0 {
		c.Collector.ReconnectDelay = 5 * time.Second
	}
	if c.Collector.PingInterval == 0 {
		c.Collector.PingInterval = 30 * time.Second
	}
	if c.Cache.SignalsTTL == 0 {
		c.Cache.SignalsTTL = 15 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Inference.Providers) == 0 {
		return fmt.Errorf("inference.providers cannot be empty")
	}
	for i, p := range c.Inference.Providers {
		if p.Name == "" || p.URL == "" {
			return fmt.Errorf("inference.providers[%d]: name and url are required", i)
		}
		if p.RPM <= 0 {
			return fmt.Errorf("inference.providers[%d]: rpm must be positive", i)
		}
	}
	switch c.Intake.Type {
	case "", "kafka", "websocket":
	default:
		return fmt.Errorf("intake.type must be 'kafka' or 'websocket', got '%s'", c.Intake.Type)
	}
	if c.Intake.Type == "kafka" {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty with kafka intake")
		}
		if c.Kafka.EventsTopic == "" {
			return fmt.Errorf("kafka.events_topic is required with kafka intake")
		}
	}
	if c.Intake.Type == "websocket" && c.Collector.WebSocketURL == "" {
		return fmt.Errorf("collector.websocket_url is required with websocket intake")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	return nil
}
