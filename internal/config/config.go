// Package config builds a single Config struct from flags, environment
// variables (PANFM_ prefix) and an optional JSON settings file, in that
// precedence order. There is no global singleton: every process constructs
// its own Config and passes it down explicitly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every setting PANfm's processes need.
type Config struct {
	LogLevel string `mapstructure:"log-level"`

	DatabaseURL string `mapstructure:"database-url"`

	SchedulerRefreshInterval time.Duration `mapstructure:"scheduler-refresh-interval"`
	SchedulerWorkerPool      int           `mapstructure:"scheduler-worker-pool"`

	APIServerAddr string `mapstructure:"api-server-addr"`
	APIKey        string `mapstructure:"api-key"`

	MetricsPath string `mapstructure:"metrics-path"`

	DeviceAPIKeyEncryptionKeyFile string `mapstructure:"device-key-file"`

	SMTPHost     string `mapstructure:"smtp-host"`
	SMTPPort     int    `mapstructure:"smtp-port"`
	SMTPUsername string `mapstructure:"smtp-username"`
	SMTPPassword string `mapstructure:"smtp-password"`
	SMTPFrom     string `mapstructure:"smtp-from"`

	SlackWebhookURL string `mapstructure:"slack-webhook-url"`

	TracingEnabled      bool    `mapstructure:"tracing-enabled"`
	TracingExporter     string  `mapstructure:"tracing-exporter"`
	TracingOTLPEndpoint string  `mapstructure:"tracing-otlp-endpoint"`
	TracingSampleRate   float64 `mapstructure:"tracing-sample-rate"`

	ConfigFile string `mapstructure:"config-file"`
}

// New builds a Config from the given flag set (os.Args[1:] in production,
// a synthetic slice in tests), environment, and optional settings.json.
func New(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("panfm", pflag.ContinueOnError)

	fs.String("log-level", "info", "Logging level (debug, info, warn, error)")
	fs.String("database-url", "", "PostgreSQL/TimescaleDB connection string")
	fs.Duration("scheduler-refresh-interval", 60*time.Second, "Default polling interval per device")
	fs.Int("scheduler-worker-pool", 8, "Max devices polled concurrently")
	fs.String("api-server-addr", ":8443", "API server listen address")
	fs.String("api-key", "", "API key required of API server clients")
	fs.String("metrics-path", "/metrics", "Prometheus metrics endpoint path")
	fs.String("device-key-file", "/etc/panfm/device-key", "Path to the symmetric key used to encrypt stored device API keys")
	fs.String("smtp-host", "", "SMTP server host for email notifications")
	fs.Int("smtp-port", 587, "SMTP server port")
	fs.String("smtp-username", "", "SMTP auth username")
	fs.String("smtp-password", "", "SMTP auth password")
	fs.String("smtp-from", "", "From address for email notifications")
	fs.String("slack-webhook-url", "", "Default Slack incoming webhook URL")
	fs.Bool("tracing-enabled", false, "Enable OpenTelemetry tracing")
	fs.String("tracing-exporter", "none", "Trace exporter: none, stdout, otlp-grpc, otlp-http")
	fs.String("tracing-otlp-endpoint", "", "OTLP collector endpoint, when tracing-exporter is otlp-grpc or otlp-http")
	fs.Float64("tracing-sample-rate", 1.0, "Fraction of traces to sample, between 0 and 1")
	fs.String("config-file", "", "Path to a JSON settings file. Can also be set with PANFM_CONFIG_FILE.")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: binding flags: %w", err)
	}

	v.SetEnvPrefix("PANFM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile := v.GetString("config-file"); configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that would fail later in a more confusing way.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.LogLevel)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database-url is required")
	}
	if c.SchedulerWorkerPool <= 0 {
		return fmt.Errorf("scheduler-worker-pool must be positive, got %d", c.SchedulerWorkerPool)
	}
	return nil
}
