package config

import (
	"encoding/json"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Port int `json:"port" mapstructure:"port"`
}

// RedisConfig represents the Redis connection configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

// MongoConfig represents the MongoDB connection configuration
type MongoConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	URI        string `json:"uri" mapstructure:"uri"`
	Database   string `json:"database" mapstructure:"database"`
	Collection string `json:"collection" mapstructure:"collection"`
}

// SchedulerConfig represents the schedule engine configuration
type SchedulerConfig struct {
	// QueueName namespaces the queue's persisted state; it is sanitized to
	// alphanumerics, underscores and dashes
	QueueName string `json:"queue_name" mapstructure:"queue_name"`
	// MinIntervalMs is the floor applied to computed repeat intervals
	MinIntervalMs int64 `json:"min_interval_ms" mapstructure:"min_interval_ms"`
	// PollIntervalMs is how often the queue checks for due jobs
	PollIntervalMs int64 `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
}

// SignozConfig represents the SigNoz log source configuration
type SignozConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	APIKey  string `json:"api_key" mapstructure:"api_key"`
}

// GeminiConfig represents the LLM client configuration
type GeminiConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	APIKey string `json:"api_key" mapstructure:"api_key"`
	// MinCallGapMs suppresses calls closer together than this
	MinCallGapMs int64 `json:"min_call_gap_ms" mapstructure:"min_call_gap_ms"`
}

// EmailConfig represents the email notification configuration
type EmailConfig struct {
	APIKey string   `json:"api_key" mapstructure:"api_key"`
	From   string   `json:"from" mapstructure:"from"`
	To     []string `json:"to" mapstructure:"to"`
}

// SlackConfig represents the Slack notification configuration
type SlackConfig struct {
	Token   string `json:"token" mapstructure:"token"`
	Channel string `json:"channel" mapstructure:"channel"`
}

// RetentionConfig represents the stored-report retention job
type RetentionConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Pattern is a five-field cron expression for when pruning runs
	Pattern string `json:"pattern" mapstructure:"pattern"`
	// MaxAgeDays is how long stored reports are kept
	MaxAgeDays int `json:"max_age_days" mapstructure:"max_age_days"`
}

// Config represents the full service configuration
type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Redis     RedisConfig     `json:"redis" mapstructure:"redis"`
	Mongo     MongoConfig     `json:"mongo" mapstructure:"mongo"`
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`
	Signoz    SignozConfig    `json:"signoz" mapstructure:"signoz"`
	Gemini    GeminiConfig    `json:"gemini" mapstructure:"gemini"`
	Email     EmailConfig     `json:"email" mapstructure:"email"`
	Slack     SlackConfig     `json:"slack" mapstructure:"slack"`
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`
}

var queueNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeQueueName replaces characters that are unsafe in Redis key
// namespaces. An empty result falls back to the default queue name.
func SanitizeQueueName(name string) string {
	sanitized := queueNameSanitizer.ReplaceAllString(strings.TrimSpace(name), "-")
	if sanitized == "" {
		return "incident-scheduler"
	}
	return sanitized
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("Failed to close config file: %v", err)
		}
	}()

	var config Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	config.applyEnvOverrides()
	return &config, nil
}

// DefaultConfig returns a default configuration with environment overrides
// applied
func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	config.applyEnvOverrides()
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "incident_scheduler"
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = "incidents"
	}
	if c.Scheduler.QueueName == "" {
		c.Scheduler.QueueName = "incident-scheduler"
	}
	c.Scheduler.QueueName = SanitizeQueueName(c.Scheduler.QueueName)
	if c.Scheduler.MinIntervalMs <= 0 {
		c.Scheduler.MinIntervalMs = 60000
	}
	if c.Scheduler.PollIntervalMs <= 0 {
		c.Scheduler.PollIntervalMs = 5000
	}
	if c.Gemini.MinCallGapMs <= 0 {
		c.Gemini.MinCallGapMs = 30000
	}
	if c.Retention.Pattern == "" {
		c.Retention.Pattern = "0 3 * * *"
	}
	if c.Retention.MaxAgeDays <= 0 {
		c.Retention.MaxAgeDays = 90
	}
}

// applyEnvOverrides lets deployment environments override credentials and
// endpoints without editing the config file
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.Mongo.URI = v
		c.Mongo.Enabled = true
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		c.Mongo.Database = v
	}
	if v := os.Getenv("SIGNOZ_BASE_URL"); v != "" {
		c.Signoz.BaseURL = v
	}
	if v := os.Getenv("SIGNOZ_API_KEY"); v != "" {
		c.Signoz.APIKey = v
	}
	if v := os.Getenv("GEMINI_URL"); v != "" {
		c.Gemini.URL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		c.Email.APIKey = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		c.Email.From = v
	}
	if v := os.Getenv("EMAIL_TO"); v != "" {
		recipients := make([]string, 0)
		for _, addr := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(addr); trimmed != "" {
				recipients = append(recipients, trimmed)
			}
		}
		if len(recipients) > 0 {
			c.Email.To = recipients
		}
	}
	if v := os.Getenv("SLACK_TOKEN"); v != "" {
		c.Slack.Token = v
	}
	if v := os.Getenv("SLACK_CHANNEL"); v != "" {
		c.Slack.Channel = v
	}
}
