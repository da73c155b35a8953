// Package config provides YAML-based configuration loading for signalbox.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level signalbox configuration, loaded from signalbox.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Presence PresenceConfig `yaml:"presence"`
	Notify   NotifyConfig   `yaml:"notify"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP/websocket listener.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds connection settings for the ticket app's database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mysql" (default) or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite file path
}

// AuthConfig describes how session tokens issued by the ticket app are verified.
type AuthConfig struct {
	TokenSecret string `yaml:"token_secret"`
	Cookie      string `yaml:"cookie"`
}

// PresenceConfig tunes per-connection buffering and liveness checks.
type PresenceConfig struct {
	SendBuffer    int           `yaml:"send_buffer"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	PongWait      time.Duration `yaml:"pong_wait"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// NotifyConfig controls the offline notification path.
type NotifyConfig struct {
	PreviewLimit int           `yaml:"preview_limit"`
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	Timeout      time.Duration `yaml:"timeout"`
	Command      string        `yaml:"command"`
	Slack        SlackConfig   `yaml:"slack"`
	Discord      DiscordConfig `yaml:"discord"`
	SMTP         SMTPConfig    `yaml:"smtp"`
}

// SlackConfig holds Slack bot credentials for offline notifications.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord bot credentials for offline notifications.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// RedisConfig enables the unread-count cache when URL is set.
type RedisConfig struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file in the working directory, if present, is loaded first so its
// values can feed the environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets from the environment. Secrets are kept out of
// the YAML file in production.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Database.Password, "SIGNALBOX_DB_PASSWORD")
	set(&c.Auth.TokenSecret, "SIGNALBOX_TOKEN_SECRET")
	set(&c.Redis.URL, "SIGNALBOX_REDIS_URL")
	set(&c.Notify.Slack.BotToken, "SLACK_BOT_TOKEN")
	set(&c.Notify.Discord.BotToken, "DISCORD_BOT_TOKEN")
	set(&c.Notify.SMTP.Password, "SMTP_PASSWORD")
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Auth.Cookie == "" {
		c.Auth.Cookie = "session_token"
	}
	if c.Presence.SendBuffer == 0 {
		c.Presence.SendBuffer = 64
	}
	if c.Presence.WriteTimeout == 0 {
		c.Presence.WriteTimeout = 5 * time.Second
	}
	if c.Presence.PongWait == 0 {
		c.Presence.PongWait = 60 * time.Second
	}
	if c.Presence.SweepSchedule == "" {
		c.Presence.SweepSchedule = "@every 30s"
	}
	if c.Notify.PreviewLimit == 0 {
		c.Notify.PreviewLimit = 100
	}
	if c.Notify.Workers == 0 {
		c.Notify.Workers = 4
	}
	if c.Notify.QueueSize == 0 {
		c.Notify.QueueSize = 256
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	if c.Notify.SMTP.Host != "" && c.Notify.SMTP.Port == 0 {
		c.Notify.SMTP.Port = 587
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 5 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required for mysql")
		}
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (mysql, sqlite)", c.Database.Driver))
	}
	if c.Auth.TokenSecret == "" {
		errs = append(errs, "auth.token_secret is required")
	}
	if c.Presence.SendBuffer < 0 {
		errs = append(errs, "presence.send_buffer must be positive")
	}
	if c.Notify.PreviewLimit < 0 {
		errs = append(errs, "notify.preview_limit must be positive")
	}
	if c.Notify.Workers < 0 {
		errs = append(errs, "notify.workers must be positive")
	}
	if c.Notify.QueueSize < 0 {
		errs = append(errs, "notify.queue_size must be positive")
	}
	if (c.Notify.Slack.BotToken == "") != (c.Notify.Slack.ChannelID == "") {
		errs = append(errs, "notify.slack needs both bot_token and channel_id")
	}
	if (c.Notify.Discord.BotToken == "") != (c.Notify.Discord.ChannelID == "") {
		errs = append(errs, "notify.discord needs both bot_token and channel_id")
	}
	if c.Notify.SMTP.Host != "" && c.Notify.SMTP.From == "" {
		errs = append(errs, "notify.smtp.from is required when smtp.host is set")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported (json, console)", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
