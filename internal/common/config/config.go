package config

import (
	"fmt"

	"outreach-engine/internal/scheduler"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig                `mapstructure:"app"`
	Camunda      CamundaConfig            `mapstructure:"camunda"`
	Database     DatabaseConfig           `mapstructure:"database"`
	Template     TemplateConfig           `mapstructure:"template"`
	Workers      map[string]WorkerConfig  `mapstructure:"workers"`
	Channels     map[string]ChannelConfig `mapstructure:"channels"`
	Integrations IntegrationConfig        `mapstructure:"integrations"`
	Campaign     CampaignConfig           `mapstructure:"campaign"`
	Server       ServerConfig             `mapstructure:"server"`
	Tracing      TracingConfig            `mapstructure:"tracing"`
	Logging      LoggingConfig            `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver        string              `mapstructure:"driver"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	SQLite        SQLiteConfig        `mapstructure:"sqlite"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// GetDSN enables foreign keys and a busy timeout so concurrent status
// updates queue instead of failing with SQLITE_BUSY.
func (s SQLiteConfig) GetDSN() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", s.Path)
}

type ElasticsearchConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
	AuditIndex string   `mapstructure:"audit_index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Channel lanes ---

const (
	AdapterSES      = "ses"
	AdapterSMTP     = "smtp"
	AdapterSNS      = "sns"
	AdapterReddit   = "reddit"
	AdapterLinkedIn = "linkedin"
	AdapterDryRun   = "dry-run"
)

// ChannelConfig describes one channel lane: which adapter sends and how fast.
type ChannelConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Adapter            string `mapstructure:"adapter"`
	MaxConcurrent      int    `mapstructure:"max_concurrent"`
	Window             int    `mapstructure:"window"` // milliseconds
	MaxStartsPerWindow int    `mapstructure:"max_starts_per_window"`
	Timeout            int    `mapstructure:"timeout"`  // milliseconds, per send
	Cooldown           int    `mapstructure:"cooldown"` // milliseconds, 0 disables
}

func (c ChannelConfig) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxConcurrent:      c.MaxConcurrent,
		Window:             GetDuration(c.Window),
		MaxStartsPerWindow: c.MaxStartsPerWindow,
	}
}

// --- Specific Configuration Sections ---

// IntegrationConfig holds settings for every delivery backend.
type IntegrationConfig struct {
	AWS struct {
		Region   string `mapstructure:"region"`
		Endpoint string `mapstructure:"endpoint"`
		SES      struct {
			Enabled          bool   `mapstructure:"enabled"`
			FromEmail        string `mapstructure:"from_email"`
			ConfigurationSet string `mapstructure:"configuration_set"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
			SMSType            string `mapstructure:"sms_type"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	SMTP struct {
		Host        string `mapstructure:"host"`
		Port        int    `mapstructure:"port"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		UseTLS      bool   `mapstructure:"use_tls"`
		DefaultFrom string `mapstructure:"default_from"`
	} `mapstructure:"smtp"`

	Reddit struct {
		BaseURL      string `mapstructure:"base_url"`
		AuthURL      string `mapstructure:"auth_url"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		Username     string `mapstructure:"username"`
		Password     string `mapstructure:"password"`
		UserAgent    string `mapstructure:"user_agent"`
	} `mapstructure:"reddit"`

	LinkedIn struct {
		ControlURL    string `mapstructure:"control_url"` // remote browser; empty launches one
		Headless      bool   `mapstructure:"headless"`
		SessionCookie string `mapstructure:"session_cookie"`
		PageTimeout   int    `mapstructure:"page_timeout"` // milliseconds
	} `mapstructure:"linkedin"`

	AMQP struct {
		Enabled  bool   `mapstructure:"enabled"`
		URL      string `mapstructure:"url"`
		Queue    string `mapstructure:"queue"`
		Prefetch int    `mapstructure:"prefetch"`
	} `mapstructure:"amqp"`
}

// CampaignConfig holds run-wide settings shared by every lane.
type CampaignConfig struct {
	// Constants are merged into every target's variables. Viper lowercases
	// map keys, so template tokens for constants must be lowercase.
	Constants    map[string]string `mapstructure:"constants"`
	LeaseTTL     int               `mapstructure:"lease_ttl"` // milliseconds, 0 disables
	AuditRetries int               `mapstructure:"audit_retries"`
	AuditBackoff int               `mapstructure:"audit_backoff"` // milliseconds
	DefaultLimit int               `mapstructure:"default_limit"`
}

type ServerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TemplateConfig points at the file-backed template catalog. When empty,
// templates are read from the database.
type TemplateConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
}
