package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"5s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Model struct {
		HiddenStates     int     `yaml:"num_hidden_states" default:"2"`
		PriorStrength    float64 `yaml:"prior_strength" default:"1.0"`
		PriorJitter      float64 `yaml:"prior_jitter" default:"0.0"`
		Decay            float64 `yaml:"decay" default:"1.0"`
		ForecastHorizon  int     `yaml:"forecast_horizon" default:"1"`
		ConfidenceMetric string  `yaml:"confidence_metric" default:"margin"`
		Seed             int64   `yaml:"seed" default:"1"`
	} `yaml:"model"`
	Data struct {
		BarsPath  string `yaml:"bars_path"`
		Symbol    string `yaml:"symbol" default:"SPY"`
		Timeframe string `yaml:"timeframe" default:"1m"`
	} `yaml:"data"`
	Stream struct {
		Source             string        `yaml:"source" default:"csv"` // csv | kafka | websocket
		CheckpointInterval int           `yaml:"checkpoint_interval" default:"0"`
		ConvergenceWindow  int           `yaml:"convergence_window" default:"3"`
		FlushTimeout       time.Duration `yaml:"flush_timeout" default:"5s"`
	} `yaml:"stream"`
	Kafka struct {
		Brokers          []string `yaml:"brokers"`
		ObservationTopic string   `yaml:"observation_topic" default:"observations"`
		PredictionTopic  string   `yaml:"prediction_topic" default:"predictions"`
		RequiredAcks     int      `yaml:"required_acks" default:"1"`
		Compression      string   `yaml:"compression" default:"snappy"`
		Producer         struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"regimecast"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"250ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Market struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"3s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
	} `yaml:"market"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Checkpoint struct {
		Path string `yaml:"path"`
		Key  string `yaml:"key" default:"regimecast:checkpoint"`
	} `yaml:"checkpoint"`
	Webhook struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"webhook"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes into a validated Config with defaults applied.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// Default returns a Config with defaults only, no file required.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("MARKET_API_KEY"); v != "" {
		c.Market.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Market.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("STREAM_SOURCE"); v != "" {
		c.Stream.Source = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_OBSERVATION_TOPIC"); v != "" {
		c.Kafka.ObservationTopic = v
	}
	if v := os.Getenv("KAFKA_PREDICTION_TOPIC"); v != "" {
		c.Kafka.PredictionTopic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}
	if v := os.Getenv("MODEL_DECAY"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("MODEL_DECAY: %w", err)
		}
		c.Model.Decay = d
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Model.HiddenStates < 2 {
		return fmt.Errorf("model.num_hidden_states must be at least 2, got %d", c.Model.HiddenStates)
	}
	if c.Model.PriorStrength <= 0 {
		return fmt.Errorf("model.prior_strength must be positive, got %v", c.Model.PriorStrength)
	}
	if c.Model.Decay <= 0 || c.Model.Decay > 1 {
		return fmt.Errorf("model.decay must be in (0,1], got %v", c.Model.Decay)
	}
	if c.Model.ForecastHorizon < 0 {
		return fmt.Errorf("model.forecast_horizon must be non-negative, got %d", c.Model.ForecastHorizon)
	}
	if c.Model.ConfidenceMetric != "margin" && c.Model.ConfidenceMetric != "entropy" {
		return fmt.Errorf("model.confidence_metric must be 'margin' or 'entropy', got '%s'", c.Model.ConfidenceMetric)
	}
	switch c.Stream.Source {
	case "csv", "kafka", "websocket":
	default:
		return fmt.Errorf("stream.source must be 'csv', 'kafka' or 'websocket', got '%s'", c.Stream.Source)
	}
	if c.Stream.Source == "csv" && c.Data.BarsPath == "" {
		return fmt.Errorf("data.bars_path is required for the csv source")
	}
	if c.Stream.Source == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty for the kafka source")
	}
	if c.Stream.Source == "websocket" {
		if c.Market.WebSocketURL == "" {
			return fmt.Errorf("market.websocket_url is required for the websocket source")
		}
		if len(c.Market.Symbols) == 0 {
			return fmt.Errorf("market.symbols cannot be empty for the websocket source")
		}
	}
	return nil
}
