package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Paynow   PaynowConfig
	Payment  PaymentConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

// PaynowConfig carries the gateway credentials and callback endpoints. The
// integration key doubles as the message signing secret.
type PaynowConfig struct {
	IntegrationID  string
	IntegrationKey string
	BaseURL        string
	ReturnURL      string
	ResultURL      string
}

// PaymentConfig tunes the subsystem's own behavior.
type PaymentConfig struct {
	ReferencePrefix string
	PollInterval    time.Duration
	PollTimeout     time.Duration
	SweepGrace      time.Duration
	ExpiryWindow    time.Duration
}

// Load reads configuration from .env file and environment variables.
// Missing gateway credentials are a startup error: signing with an empty
// key would silently produce forgeable messages.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("PAYNOW_BASE_URL", "https://www.paynow.co.zw")
	viper.SetDefault("PAYMENT_REFERENCE_PREFIX", "MKD")
	viper.SetDefault("PAYMENT_POLL_INTERVAL", "3s")
	viper.SetDefault("PAYMENT_POLL_TIMEOUT", "5m")
	viper.SetDefault("PAYMENT_SWEEP_GRACE", "2m")
	viper.SetDefault("PAYMENT_EXPIRY_WINDOW", "24h")

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Paynow: PaynowConfig{
			IntegrationID:  viper.GetString("PAYNOW_INTEGRATION_ID"),
			IntegrationKey: viper.GetString("PAYNOW_INTEGRATION_KEY"),
			BaseURL:        viper.GetString("PAYNOW_BASE_URL"),
			ReturnURL:      viper.GetString("PAYNOW_RETURN_URL"),
			ResultURL:      viper.GetString("PAYNOW_RESULT_URL"),
		},
		Payment: PaymentConfig{
			ReferencePrefix: viper.GetString("PAYMENT_REFERENCE_PREFIX"),
			PollInterval:    parseDuration("PAYMENT_POLL_INTERVAL", 3*time.Second),
			PollTimeout:     parseDuration("PAYMENT_POLL_TIMEOUT", 5*time.Minute),
			SweepGrace:      parseDuration("PAYMENT_SWEEP_GRACE", 2*time.Minute),
			ExpiryWindow:    parseDuration("PAYMENT_EXPIRY_WINDOW", 24*time.Hour),
		},
	}

	if cfg.Paynow.IntegrationID == "" {
		return nil, errors.New("PAYNOW_INTEGRATION_ID is not set")
	}
	if cfg.Paynow.IntegrationKey == "" {
		return nil, errors.New("PAYNOW_INTEGRATION_KEY is not set")
	}
	if cfg.Paynow.ResultURL == "" {
		return nil, errors.New("PAYNOW_RESULT_URL is not set")
	}

	return cfg, nil
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
