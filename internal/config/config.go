// Package config loads server configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the fieldserve server.
type Config struct {
	Server     ServerConfig         `mapstructure:"server"`
	Database   DatabaseConfig       `mapstructure:"database"`
	Escalation EscalationConfig     `mapstructure:"escalation"`
	Email      EmailConfig          `mapstructure:"email"`
	SMS        WebhookChannelConfig `mapstructure:"sms"`
	Push       WebhookChannelConfig `mapstructure:"push"`
	Redis      RedisConfig          `mapstructure:"redis"`
	Auth       AuthConfig           `mapstructure:"auth"`
}

type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// EscalationConfig holds the scheduling surface: both intervals are plain
// durations overridable via environment without code change.
type EscalationConfig struct {
	// SweepInterval is the cadence of the periodic escalation driver.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// ReminderDelay is how far in the future each reminder is rescheduled.
	ReminderDelay time.Duration `mapstructure:"reminder_delay"`
	// MaxAckRetries caps acknowledgment reminders. 0 means unbounded;
	// past the cap the recipient set widens to all active employees and
	// the request is flagged for manual intervention.
	MaxAckRetries int `mapstructure:"max_ack_retries"`
	// AckTokenTTL bounds the validity of acknowledgment links. Start and
	// close links never expire.
	AckTokenTTL time.Duration `mapstructure:"ack_token_ttl"`
	// SweepBatchLimit bounds how many due requests one sweep processes.
	SweepBatchLimit int `mapstructure:"sweep_batch_limit"`
}

type EmailConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	AuthType   string `mapstructure:"auth_type"`
	TLS        bool   `mapstructure:"tls"`
	SkipVerify bool   `mapstructure:"skip_verify"`
}

// WebhookChannelConfig configures an outbound webhook sink (SMS, push).
type WebhookChannelConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Load reads configuration from the given file (optional) with
// FIELDSERVE_ environment overrides applied on top of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FIELDSERVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "fieldserve:fieldserve@tcp(localhost:3306)/fieldserve?parseTime=true")

	v.SetDefault("escalation.sweep_interval", 5*time.Minute)
	v.SetDefault("escalation.reminder_delay", 2*time.Minute)
	v.SetDefault("escalation.max_ack_retries", 0)
	v.SetDefault("escalation.ack_token_ttl", 24*time.Hour)
	v.SetDefault("escalation.sweep_batch_limit", 100)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.from", "noreply@fieldserve.local")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.auth_type", "plain")

	v.SetDefault("sms.timeout", 10*time.Second)
	v.SetDefault("push.timeout", 10*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
}
