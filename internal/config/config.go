package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig           `koanf:"app"`
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	JWT           JWTConfig           `koanf:"jwt"`
	WhatsApp      WhatsAppConfig      `koanf:"whatsapp"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Conversation  ConversationConfig  `koanf:"conversation"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

type ServerConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	ReadTimeout  int    `koanf:"read_timeout"`
	WriteTimeout int    `koanf:"write_timeout"`
}

type DatabaseConfig struct {
	Host            string `koanf:"host"`
	Port            int    `koanf:"port"`
	User            string `koanf:"user"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name"`
	SSLMode         string `koanf:"ssl_mode"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// JWTConfig holds the shared secret used to verify dashboard-issued tokens.
type JWTConfig struct {
	Secret string `koanf:"secret"`
}

// WhatsAppConfig configures the chat provider. Business numbers may override
// InstanceID and Token per organization.
type WhatsAppConfig struct {
	BaseURL          string `koanf:"base_url"`
	InstanceID       string `koanf:"instance_id"`
	Token            string `koanf:"token"`
	Priority         int    `koanf:"priority"`
	TimeoutSecs      int    `koanf:"timeout_secs"`
	DedupeWindowSecs int    `koanf:"dedupe_window_secs"` // 0 disables inbound dedupe
}

type NotificationsConfig struct {
	UseQueue               bool   `koanf:"use_queue"`
	TimeoutSecs            int    `koanf:"timeout_secs"`
	PushSecret             string `koanf:"push_secret"`
	UpcomingAlertPositions int    `koanf:"upcoming_alert_positions"`
}

type ConversationConfig struct {
	SupportContact   string `koanf:"support_contact"`
	TemplateCacheTTL int    `koanf:"template_cache_ttl"` // seconds
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// QUEUEBOT_DATABASE_HOST -> database.host
	if err := k.Load(env.Provider("QUEUEBOT_", ".", func(s string) string {
		return envKey(s)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	return &cfg, nil
}

// envKey maps QUEUEBOT_SECTION_SOME_KEY to section.some_key. Only the first
// underscore separates the section, so multi-word keys survive.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, "QUEUEBOT_"))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}

func setDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "Queuebot"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.WhatsApp.BaseURL == "" {
		cfg.WhatsApp.BaseURL = "https://api.ultramsg.com"
	}
	if cfg.WhatsApp.Priority == 0 {
		cfg.WhatsApp.Priority = 10
	}
	if cfg.WhatsApp.TimeoutSecs == 0 {
		cfg.WhatsApp.TimeoutSecs = 10
	}
	if cfg.Notifications.TimeoutSecs == 0 {
		cfg.Notifications.TimeoutSecs = 5
	}
	if cfg.Notifications.UpcomingAlertPositions == 0 {
		cfg.Notifications.UpcomingAlertPositions = 2
	}
	if cfg.Conversation.TemplateCacheTTL == 0 {
		cfg.Conversation.TemplateCacheTTL = 300
	}
}
