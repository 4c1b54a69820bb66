package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DEFAULT_JWT_SECRET is the placeholder shipped in the defaults. serve refuses
// it outside development.
const DEFAULT_JWT_SECRET = "CHANGE_ME"

type Configuration struct {
	ApiPort        string `mapstructure:"api_port"`
	LogLevel       string `mapstructure:"log_level"`
	LogDevelopment bool   `mapstructure:"log_development"`

	Database    string `mapstructure:"database"` // "sqlite3" ou "postgres"
	DbPath      string `mapstructure:"db_path"`
	DbHost      string `mapstructure:"db_host"`
	DbPort      string `mapstructure:"db_port"`
	DbUser      string `mapstructure:"db_user"`
	DbName      string `mapstructure:"db_name"`
	DbPass      string `mapstructure:"db_pass"`
	AutoMigrate bool   `mapstructure:"automigrate"`

	Security struct {
		JwtSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"security"`

	WhatsApp WhatsApp `mapstructure:"whatsapp"`
	Delivery Delivery `mapstructure:"delivery"`

	Cors struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
}

// WhatsApp holds the Cloud API transport settings. Credentials live in the
// integration_configs table, not here.
type WhatsApp struct {
	ApiBaseURL            string  `mapstructure:"api_base_url"`
	ApiVersion            string  `mapstructure:"api_version"`
	AppSecret             string  `mapstructure:"app_secret"`
	VerifyToken           string  `mapstructure:"verify_token"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	MaxAttempts           int     `mapstructure:"max_attempts"`
	RetryBaseMillis       int     `mapstructure:"retry_base_millis"`
	RatePerSecond         float64 `mapstructure:"rate_per_second"`
	RateBurst             int     `mapstructure:"rate_burst"`
	AutoReplyTimeoutSecs  int     `mapstructure:"auto_reply_timeout_seconds"`
}

func (c Configuration) InsecureJWTSecret() bool {
	return c.Security.JwtSecret == DEFAULT_JWT_SECRET
}

func (w WhatsApp) RequestTimeout() time.Duration {
	return time.Duration(w.RequestTimeoutSeconds) * time.Second
}

func (w WhatsApp) RetryBase() time.Duration {
	return time.Duration(w.RetryBaseMillis) * time.Millisecond
}

func (w WhatsApp) AutoReplyTimeout() time.Duration {
	return time.Duration(w.AutoReplyTimeoutSecs) * time.Second
}

// Delivery controls the simulated sent -> delivered -> read progression used
// for messages that never reach the provider.
type Delivery struct {
	Simulate             bool `mapstructure:"simulate"`
	DeliveredAfterMillis int  `mapstructure:"delivered_after_millis"`
	ReadAfterMillis      int  `mapstructure:"read_after_millis"`
}

func (d Delivery) DeliveredAfter() time.Duration {
	return time.Duration(d.DeliveredAfterMillis) * time.Millisecond
}

func (d Delivery) ReadAfter() time.Duration {
	return time.Duration(d.ReadAfterMillis) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
	v.SetDefault("database", "sqlite3")
	v.SetDefault("db_path", "db/database.db")
	v.SetDefault("db_host", "")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "")
	v.SetDefault("db_name", "")
	v.SetDefault("db_pass", "")
	v.SetDefault("automigrate", false)
	v.SetDefault("security.jwt_secret", DEFAULT_JWT_SECRET)
	v.SetDefault("whatsapp.api_base_url", "https://graph.facebook.com")
	v.SetDefault("whatsapp.api_version", "v24.0")
	v.SetDefault("whatsapp.app_secret", "")
	v.SetDefault("whatsapp.verify_token", "")
	v.SetDefault("whatsapp.request_timeout_seconds", 15)
	v.SetDefault("whatsapp.max_attempts", 3)
	v.SetDefault("whatsapp.retry_base_millis", 500)
	v.SetDefault("whatsapp.rate_per_second", 20.0)
	v.SetDefault("whatsapp.rate_burst", 20)
	v.SetDefault("whatsapp.auto_reply_timeout_seconds", 30)
	v.SetDefault("delivery.simulate", true)
	v.SetDefault("delivery.delivered_after_millis", 1000)
	v.SetDefault("delivery.read_after_millis", 2000)
	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Get reads the JSON configuration at path (optional) and overlays
// CHATBRIDGE_* environment variables, e.g. CHATBRIDGE_WHATSAPP_APP_SECRET.
func Get(path string) (Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// nomes legados usados no deploy antigo
	_ = v.BindEnv("whatsapp.verify_token", "CHATBRIDGE_WHATSAPP_VERIFY_TOKEN", "WEBHOOK_VERIFY_TOKEN")
	_ = v.BindEnv("whatsapp.app_secret", "CHATBRIDGE_WHATSAPP_APP_SECRET", "WEBHOOK_APP_SECRET", "WHATSAPP_APP_SECRET", "META_APP_SECRET")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return Configuration{}, err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Configuration{}, err
		}
	}

	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return Configuration{}, err
	}

	// pisos mínimos (evita zero/negativo vindo do arquivo)
	if c.WhatsApp.MaxAttempts <= 0 {
		c.WhatsApp.MaxAttempts = 1
	}
	if c.WhatsApp.RequestTimeoutSeconds <= 0 {
		c.WhatsApp.RequestTimeoutSeconds = 15
	}
	if c.WhatsApp.RatePerSecond <= 0 {
		c.WhatsApp.RatePerSecond = 20
	}
	if c.WhatsApp.RateBurst <= 0 {
		c.WhatsApp.RateBurst = 1
	}
	if c.WhatsApp.AutoReplyTimeoutSecs <= 0 {
		c.WhatsApp.AutoReplyTimeoutSecs = 30
	}
	if strings.TrimSpace(c.Security.JwtSecret) == "" {
		c.Security.JwtSecret = DEFAULT_JWT_SECRET
	}

	return c, nil
}
