package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int `yaml:"port"`
	ReadTimeoutMS     int `yaml:"read_timeout_ms"`
	WriteTimeoutMS    int `yaml:"write_timeout_ms"`
	ShutdownTimeoutMS int `yaml:"shutdown_timeout_ms"`
}

// CopyTradeConfig controls the copy-trade propagation workflow.
type CopyTradeConfig struct {
	BatchSize         int     `yaml:"batch_size"`
	InterBatchDelayMS int     `yaml:"inter_batch_delay_ms"`
	PlatformFeeRate   float64 `yaml:"platform_fee_rate"`
	DefaultCopyFee    float64 `yaml:"default_copy_fee_rate"`
}

// FraudConfig controls the fraud-surveillance scan thresholds.
type FraudConfig struct {
	ScanIntervalHours int `yaml:"scan_interval_hours"`
	BatchSize         int `yaml:"batch_size"`

	WashLookbackDays   int `yaml:"wash_lookback_days"`
	WashMinOccurrences int `yaml:"wash_min_occurrences"`

	CircularMaxChainLength int `yaml:"circular_max_chain_length"`

	PumpSpikeMultiple    float64 `yaml:"pump_spike_multiple"`
	PumpPriceImpactPct   float64 `yaml:"pump_price_impact_pct"`
	PumpFollowerGain     int     `yaml:"pump_follower_gain"`

	FakeInactivePct      float64 `yaml:"fake_inactive_pct"`
	FakeMinAccountAgeDays int    `yaml:"fake_min_account_age_days"`
	FakeMinFollowers     int     `yaml:"fake_min_followers"`
}

// FanoutConfig controls social activity fan-out paging and batching.
type FanoutConfig struct {
	FollowerPageSize int `yaml:"follower_page_size"`
	FeedBatchSize    int `yaml:"feed_batch_size"`
	RankCutoff       int `yaml:"rank_cutoff"`
	RankMinDelta     int `yaml:"rank_min_delta"`
}

// StatsConfig controls trader stats recomputation.
type StatsConfig struct {
	RefreshIntervalHours int     `yaml:"refresh_interval_hours"`
	RiskFreeRate         float64 `yaml:"risk_free_rate"`
	BatchSize            int     `yaml:"batch_size"`
}

// RetryConfig is one activity retry profile.
type RetryConfig struct {
	InitialIntervalMS  int     `yaml:"initial_interval_ms"`
	BackoffCoefficient float64 `yaml:"backoff_coefficient"`
	MaxIntervalMS      int     `yaml:"max_interval_ms"`
	MaxAttempts        int     `yaml:"max_attempts"`
}

// RetryProfiles groups the retry policies tuned per activity cost.
type RetryProfiles struct {
	Fast      RetryConfig `yaml:"fast"`
	Expensive RetryConfig `yaml:"expensive"`
}

// KafkaConfig points at the event bus for leader trades and notifications.
type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	GroupID            string   `yaml:"group_id"`
	TopicLeaderTrades  string   `yaml:"topic_leader_trades"`
	TopicNotifications string   `yaml:"topic_notifications"`
}

// EngineConfig points at the external order-matching engine.
type EngineConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// Config aggregates all app configuration knobs.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	CopyTrade CopyTradeConfig `yaml:"copy_trade"`
	Fraud     FraudConfig     `yaml:"fraud"`
	Fanout    FanoutConfig    `yaml:"fanout"`
	Stats     StatsConfig     `yaml:"stats"`
	Retry     RetryProfiles   `yaml:"retry"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Engine    EngineConfig    `yaml:"engine"`
}

// Load reads configuration from disk, falling back to defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	configPath := path
	if configPath == "" {
		configPath = filepath.Join("config", "default.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: unable to read %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unable to parse %s: %w", configPath, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeoutMS:     10000,
			WriteTimeoutMS:    10000,
			ShutdownTimeoutMS: 5000,
		},
		CopyTrade: CopyTradeConfig{
			BatchSize:         10,
			InterBatchDelayMS: 250,
			PlatformFeeRate:   0.001,
			DefaultCopyFee:    0.002,
		},
		Fraud: FraudConfig{
			ScanIntervalHours:      6,
			BatchSize:              25,
			WashLookbackDays:       7,
			WashMinOccurrences:     3,
			CircularMaxChainLength: 2,
			PumpSpikeMultiple:      10,
			PumpPriceImpactPct:     5,
			PumpFollowerGain:       50,
			FakeInactivePct:        80,
			FakeMinAccountAgeDays:  7,
			FakeMinFollowers:       100,
		},
		Fanout: FanoutConfig{
			FollowerPageSize: 1000,
			FeedBatchSize:    500,
			RankCutoff:       100,
			RankMinDelta:     10,
		},
		Stats: StatsConfig{
			RefreshIntervalHours: 24,
			RiskFreeRate:         0.02,
			BatchSize:            25,
		},
		Retry: RetryProfiles{
			Fast: RetryConfig{
				InitialIntervalMS:  1000,
				BackoffCoefficient: 2,
				MaxIntervalMS:      30000,
				MaxAttempts:        5,
			},
			Expensive: RetryConfig{
				InitialIntervalMS:  5000,
				BackoffCoefficient: 2,
				MaxIntervalMS:      120000,
				MaxAttempts:        2,
			},
		},
		Kafka: KafkaConfig{
			Brokers:            []string{"localhost:9092"},
			GroupID:            "copy-engine",
			TopicLeaderTrades:  "trades.leader.executed",
			TopicNotifications: "notifications.outbound",
		},
		Engine: EngineConfig{
			BaseURL:   "http://localhost:9090",
			TimeoutMS: 10000,
		},
	}
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.CopyTrade.BatchSize <= 0 {
		c.CopyTrade.BatchSize = def.CopyTrade.BatchSize
	}
	if c.CopyTrade.InterBatchDelayMS <= 0 {
		c.CopyTrade.InterBatchDelayMS = def.CopyTrade.InterBatchDelayMS
	}
	if c.CopyTrade.PlatformFeeRate <= 0 {
		c.CopyTrade.PlatformFeeRate = def.CopyTrade.PlatformFeeRate
	}
	if c.CopyTrade.DefaultCopyFee <= 0 {
		c.CopyTrade.DefaultCopyFee = def.CopyTrade.DefaultCopyFee
	}
	if c.Fraud.ScanIntervalHours <= 0 {
		c.Fraud.ScanIntervalHours = def.Fraud.ScanIntervalHours
	}
	if c.Fraud.BatchSize <= 0 {
		c.Fraud.BatchSize = def.Fraud.BatchSize
	}
	if c.Fraud.WashLookbackDays <= 0 {
		c.Fraud.WashLookbackDays = def.Fraud.WashLookbackDays
	}
	if c.Fraud.WashMinOccurrences <= 0 {
		c.Fraud.WashMinOccurrences = def.Fraud.WashMinOccurrences
	}
	if c.Fraud.CircularMaxChainLength <= 0 {
		c.Fraud.CircularMaxChainLength = def.Fraud.CircularMaxChainLength
	}
	if c.Fraud.PumpSpikeMultiple <= 0 {
		c.Fraud.PumpSpikeMultiple = def.Fraud.PumpSpikeMultiple
	}
	if c.Fraud.PumpPriceImpactPct <= 0 {
		c.Fraud.PumpPriceImpactPct = def.Fraud.PumpPriceImpactPct
	}
	if c.Fraud.PumpFollowerGain <= 0 {
		c.Fraud.PumpFollowerGain = def.Fraud.PumpFollowerGain
	}
	if c.Fraud.FakeInactivePct <= 0 {
		c.Fraud.FakeInactivePct = def.Fraud.FakeInactivePct
	}
	if c.Fraud.FakeMinAccountAgeDays <= 0 {
		c.Fraud.FakeMinAccountAgeDays = def.Fraud.FakeMinAccountAgeDays
	}
	if c.Fraud.FakeMinFollowers <= 0 {
		c.Fraud.FakeMinFollowers = def.Fraud.FakeMinFollowers
	}
	if c.Fanout.FollowerPageSize <= 0 {
		c.Fanout.FollowerPageSize = def.Fanout.FollowerPageSize
	}
	if c.Fanout.FeedBatchSize <= 0 {
		c.Fanout.FeedBatchSize = def.Fanout.FeedBatchSize
	}
	if c.Fanout.RankCutoff <= 0 {
		c.Fanout.RankCutoff = def.Fanout.RankCutoff
	}
	if c.Fanout.RankMinDelta <= 0 {
		c.Fanout.RankMinDelta = def.Fanout.RankMinDelta
	}
	if c.Stats.RefreshIntervalHours <= 0 {
		c.Stats.RefreshIntervalHours = def.Stats.RefreshIntervalHours
	}
	if c.Stats.RiskFreeRate <= 0 {
		c.Stats.RiskFreeRate = def.Stats.RiskFreeRate
	}
	if c.Stats.BatchSize <= 0 {
		c.Stats.BatchSize = def.Stats.BatchSize
	}
	if c.Retry.Fast.MaxAttempts <= 0 {
		c.Retry.Fast = def.Retry.Fast
	}
	if c.Retry.Expensive.MaxAttempts <= 0 {
		c.Retry.Expensive = def.Retry.Expensive
	}
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = def.Kafka.Brokers
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = def.Kafka.GroupID
	}
	if c.Kafka.TopicLeaderTrades == "" {
		c.Kafka.TopicLeaderTrades = def.Kafka.TopicLeaderTrades
	}
	if c.Kafka.TopicNotifications == "" {
		c.Kafka.TopicNotifications = def.Kafka.TopicNotifications
	}
	if c.Engine.BaseURL == "" {
		c.Engine.BaseURL = def.Engine.BaseURL
	}
	if c.Engine.TimeoutMS <= 0 {
		c.Engine.TimeoutMS = def.Engine.TimeoutMS
	}
}
