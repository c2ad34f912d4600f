package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// devSigningKey is used when ENV=development and no key is configured.
const devSigningKey = "development-signing-key-not-for-production"

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	JWTSigningKey string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer     string        `mapstructure:"JWT_ISSUER"`
	TokenTTL      time.Duration `mapstructure:"TOKEN_TTL"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	ClinicTimezone      string        `mapstructure:"CLINIC_TIMEZONE"`
	ClinicStart         string        `mapstructure:"CLINIC_START"`
	ClinicEnd           string        `mapstructure:"CLINIC_END"`
	SlotIntervalMinutes int           `mapstructure:"SLOT_INTERVAL_MINUTES"`
	AvgServiceMinutes   int           `mapstructure:"AVG_SERVICE_MINUTES"`
	BookingWindowDays   int           `mapstructure:"BOOKING_WINDOW_DAYS"`
	OTPTTL              time.Duration `mapstructure:"OTP_TTL"`
	SweepAt             string        `mapstructure:"SWEEP_AT"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"JWT_SIGNING_KEY", "JWT_ISSUER", "TOKEN_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"CLINIC_TIMEZONE", "CLINIC_START", "CLINIC_END", "SLOT_INTERVAL_MINUTES",
	"AVG_SERVICE_MINUTES", "BOOKING_WINDOW_DAYS", "OTP_TTL", "SWEEP_AT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_ISSUER", "queue-server")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("CLINIC_TIMEZONE", "Local")
	v.SetDefault("CLINIC_START", "09:00")
	v.SetDefault("CLINIC_END", "12:00")
	v.SetDefault("SLOT_INTERVAL_MINUTES", 10)
	v.SetDefault("AVG_SERVICE_MINUTES", 15)
	v.SetDefault("BOOKING_WINDOW_DAYS", 30)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("SWEEP_AT", "00:05")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSigningKey == "" && cfg.IsDev() {
		cfg.JWTSigningKey = devSigningKey
		log.Println("WARNING: JWT_SIGNING_KEY is not set; using the development key.")
		log.Println("WARNING: Do NOT use this configuration in production.")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves CLINIC_TIMEZONE. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.ClinicTimezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.IsProduction() {
		if len(c.JWTSigningKey) < 32 {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes in production, got %d", len(c.JWTSigningKey))
		}
		if c.JWTSigningKey == devSigningKey {
			return fmt.Errorf("JWT_SIGNING_KEY must not be the development key in production")
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) are inconsistent", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	start, err := parseClock(c.ClinicStart)
	if err != nil {
		return fmt.Errorf("CLINIC_START must be HH:mm, got %q", c.ClinicStart)
	}
	end, err := parseClock(c.ClinicEnd)
	if err != nil {
		return fmt.Errorf("CLINIC_END must be HH:mm, got %q", c.ClinicEnd)
	}
	if !end.After(start) {
		return fmt.Errorf("CLINIC_END (%s) must be after CLINIC_START (%s)", c.ClinicEnd, c.ClinicStart)
	}
	if c.SlotIntervalMinutes <= 0 {
		return fmt.Errorf("SLOT_INTERVAL_MINUTES must be positive, got %d", c.SlotIntervalMinutes)
	}
	if c.AvgServiceMinutes <= 0 {
		return fmt.Errorf("AVG_SERVICE_MINUTES must be positive, got %d", c.AvgServiceMinutes)
	}
	if c.BookingWindowDays <= 0 {
		return fmt.Errorf("BOOKING_WINDOW_DAYS must be positive, got %d", c.BookingWindowDays)
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive, got %s", c.OTPTTL)
	}
	if _, err := parseClock(c.SweepAt); err != nil {
		return fmt.Errorf("SWEEP_AT must be HH:mm, got %q", c.SweepAt)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// parseClock parses a zero-padded "HH:mm" value.
func parseClock(v string) (time.Time, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return time.Time{}, err
	}
	if t.Format("15:04") != v {
		return time.Time{}, fmt.Errorf("%q is not HH:mm", v)
	}
	return t, nil
}
