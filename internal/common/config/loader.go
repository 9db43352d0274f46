package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"outreach-engine/internal/models"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml over
// it and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return build(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known environment variables
// when the YAML left them empty.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty := func(dst *string, env string) {
		if *dst != "" {
			return
		}
		if val := os.Getenv(env); val != "" {
			*dst = val
		}
	}

	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Database.Elasticsearch.Password, "ELASTICSEARCH_PASSWORD")

	setIfEmpty(&cfg.Integrations.SMTP.Username, "SMTP_USERNAME")
	setIfEmpty(&cfg.Integrations.SMTP.Password, "SMTP_PASSWORD")

	setIfEmpty(&cfg.Integrations.Reddit.ClientID, "REDDIT_CLIENT_ID")
	setIfEmpty(&cfg.Integrations.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	setIfEmpty(&cfg.Integrations.Reddit.Username, "REDDIT_USERNAME")
	setIfEmpty(&cfg.Integrations.Reddit.Password, "REDDIT_PASSWORD")

	setIfEmpty(&cfg.Integrations.LinkedIn.SessionCookie, "LINKEDIN_SESSION_COOKIE")
	setIfEmpty(&cfg.Integrations.AMQP.URL, "AMQP_URL")
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "outreach-engine"
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "outreach.db"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if cfg.Database.Elasticsearch.AuditIndex == "" {
		cfg.Database.Elasticsearch.AuditIndex = "outreach-audit"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	for key, ch := range cfg.Channels {
		if ch.MaxConcurrent == 0 {
			ch.MaxConcurrent = 1
		}
		if ch.Window == 0 {
			ch.Window = 60000
		}
		if ch.MaxStartsPerWindow == 0 {
			ch.MaxStartsPerWindow = 10
		}
		if ch.Timeout == 0 {
			ch.Timeout = 30000
		}
		cfg.Channels[key] = ch
	}

	// Campaign defaults
	if cfg.Campaign.AuditRetries == 0 {
		cfg.Campaign.AuditRetries = 3
	}
	if cfg.Campaign.AuditBackoff == 0 {
		cfg.Campaign.AuditBackoff = 200
	}
	if cfg.Campaign.DefaultLimit == 0 {
		cfg.Campaign.DefaultLimit = 100
	}

	// Integration defaults
	if cfg.Integrations.AWS.Region == "" {
		cfg.Integrations.AWS.Region = "us-east-1"
	}
	if cfg.Integrations.AWS.SNS.SMSType == "" {
		cfg.Integrations.AWS.SNS.SMSType = "Promotional"
	}
	if cfg.Integrations.SMTP.Port == 0 {
		cfg.Integrations.SMTP.Port = 587
	}
	if cfg.Integrations.Reddit.BaseURL == "" {
		cfg.Integrations.Reddit.BaseURL = "https://oauth.reddit.com"
	}
	if cfg.Integrations.Reddit.AuthURL == "" {
		cfg.Integrations.Reddit.AuthURL = "https://www.reddit.com/api/v1/access_token"
	}
	if cfg.Integrations.Reddit.UserAgent == "" {
		cfg.Integrations.Reddit.UserAgent = "outreach-engine/1.0"
	}
	if cfg.Integrations.LinkedIn.PageTimeout == 0 {
		cfg.Integrations.LinkedIn.PageTimeout = 20000
	}
	if cfg.Integrations.AMQP.Queue == "" {
		cfg.Integrations.AMQP.Queue = "outreach.campaign.run"
	}
	if cfg.Integrations.AMQP.Prefetch == 0 {
		cfg.Integrations.AMQP.Prefetch = 1
	}

	// Server defaults
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * 60 * 1000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	// Tracing defaults
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.App.Name
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case DriverSQLite:
		if cfg.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, cfg.Database.Driver)
	}

	if cfg.Database.Elasticsearch.Enabled && cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}

	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Campaign.LeaseTTL > 0 && !cfg.Database.Redis.Enabled {
		return fmt.Errorf("campaign.lease_ttl requires database.redis.enabled")
	}

	for name, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		if _, err := models.ParseChannel(name); err != nil {
			return fmt.Errorf("channels.%s: %w", name, err)
		}
		if !knownAdapter(ch.Adapter) {
			return fmt.Errorf("channels.%s.adapter: unknown adapter %q", name, ch.Adapter)
		}
		if err := ch.SchedulerConfig().Validate(); err != nil {
			return fmt.Errorf("channels.%s: %w", name, err)
		}
		if ch.Timeout <= 0 {
			return fmt.Errorf("channels.%s.timeout must be positive", name)
		}
		if ch.Cooldown > 0 && !cfg.Database.Redis.Enabled {
			return fmt.Errorf("channels.%s.cooldown requires database.redis.enabled", name)
		}
	}

	if cfg.Integrations.AMQP.Enabled && cfg.Integrations.AMQP.URL == "" {
		return fmt.Errorf("integrations.amqp.url is required")
	}

	if cfg.Tracing.Enabled && cfg.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint is required")
	}

	return nil
}

func knownAdapter(name string) bool {
	switch name {
	case AdapterSES, AdapterSMTP, AdapterSNS, AdapterReddit, AdapterLinkedIn, AdapterDryRun:
		return true
	}
	return false
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}

// EnabledChannels returns the lanes to build, keyed by parsed channel.
func EnabledChannels(cfg *Config) map[models.Channel]ChannelConfig {
	out := make(map[models.Channel]ChannelConfig, len(cfg.Channels))
	for name, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		c, err := models.ParseChannel(name)
		if err != nil {
			continue
		}
		out[c] = ch
	}
	return out
}
