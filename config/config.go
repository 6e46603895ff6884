package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	MongoURI      string `env:"MONGODB_URI,required"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"dropkart"`

	JWTCustomerSecret string        `env:"JWT_CUSTOMER_SECRET,required"`
	JWTAdminSecret    string        `env:"JWT_ADMIN_SECRET,required"`
	JWTDriverSecret   string        `env:"JWT_DRIVER_SECRET,required"`
	JWTTTL            time.Duration `env:"JWT_TTL" envDefault:"72h"`

	OTPTTL         time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPMaxAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"3"`

	NotifySchedule string `env:"NOTIFY_SCHEDULE" envDefault:"@every 5s"`
	NotifyBatch    int    `env:"NOTIFY_BATCH" envDefault:"50"`
	SettleSchedule    string `env:"SETTLE_SCHEDULE" envDefault:"@every 1m"`
	SettleMaxAttempts int    `env:"SETTLE_MAX_ATTEMPTS" envDefault:"5"`

	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := LoadEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.OTPMaxAttempts <= 0 {
		return nil, errors.New("OTP_MAX_ATTEMPTS must be positive")
	}
	if cfg.NotifyBatch <= 0 {
		return nil, errors.New("NOTIFY_BATCH must be positive")
	}
	return cfg, nil
}

// LoadEnv loads environment variables from the given files. Missing files
// are ignored; variables already set in the environment win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// PushEnabled reports whether Firebase push credentials are configured.
func (c *Config) PushEnabled() bool {
	return c.FirebaseProjectID != ""
}

// GetEnv retrieves environment variables with a fallback
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
