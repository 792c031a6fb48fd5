package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/PuraVida-Technologies/galoy/internal/limits"
	"github.com/PuraVida-Technologies/galoy/internal/lock"
	"github.com/PuraVida-Technologies/galoy/internal/notification"
)

const (
	defaultAppName        = "galoy-intraledger"
	defaultAppEnv         = "development"
	defaultNetwork        = "mainnet"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultShutdownDelay  = "10s"
	defaultIdempotencyTTL = "24h"
	defaultPaymentLockTTL = "30s"
	defaultDisplayCcy     = "USD"
	defaultPricePerSat    = "0.0005"
	defaultPricePerCent   = "0.01"
	defaultRateLimit      = 60
)

// Config captures application runtime configuration loaded from the
// environment and an optional .env file.
type Config struct {
	AppName        string
	AppEnv         string
	Network        string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	TraceStdout    bool

	// LockRedisURLs are the independent nodes of the wallet lock quorum.
	LockRedisURLs []string
	Lock          lock.Config
	// PaymentLockTTL bounds the sender wallet lock of one payment.
	PaymentLockTTL time.Duration

	NATSURL       string
	NotifySubject string

	DisplayCurrency   string
	PricePerSat       decimal.Decimal
	PricePerCent      decimal.Decimal
	IntraledgerLimits map[int]decimal.Decimal
	PaymentsPerMinute int
}

// Load reads .env files when present, then the environment, and returns the
// validated configuration.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
	return FromViper(NewViper())
}

// NewViper returns a viper instance bound to the environment with every
// default registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("NETWORK", defaultNetwork)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("LOG_FORMAT", defaultLogFormat)
	v.SetDefault("SHUTDOWN_TIMEOUT", defaultShutdownDelay)
	v.SetDefault("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	v.SetDefault("TRACE_STDOUT", false)
	v.SetDefault("PAYMENT_LOCK_TTL", defaultPaymentLockTTL)
	v.SetDefault("NOTIFY_SUBJECT", notification.DefaultSubject)
	v.SetDefault("DISPLAY_CURRENCY", defaultDisplayCcy)
	v.SetDefault("DISPLAY_PRICE_PER_SAT", defaultPricePerSat)
	v.SetDefault("DISPLAY_PRICE_PER_CENT", defaultPricePerCent)
	v.SetDefault("PAYMENTS_PER_MINUTE", defaultRateLimit)
	return v
}

// FromViper builds a Config out of an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppName:           v.GetString("APP_NAME"),
		AppEnv:            v.GetString("APP_ENV"),
		Network:           strings.ToLower(v.GetString("NETWORK")),
		Port:              v.GetString("PORT"),
		LogLevel:          strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:         strings.ToLower(v.GetString("LOG_FORMAT")),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		RedisURL:          v.GetString("REDIS_URL"),
		NATSURL:           v.GetString("NATS_URL"),
		NotifySubject:     v.GetString("NOTIFY_SUBJECT"),
		TraceStdout:       v.GetBool("TRACE_STDOUT"),
		DisplayCurrency:   strings.ToUpper(v.GetString("DISPLAY_CURRENCY")),
		PaymentsPerMinute: v.GetInt("PAYMENTS_PER_MINUTE"),
	}

	var err error
	if cfg.ShutdownPeriod, err = duration(v, "SHUTDOWN_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration(v, "IDEMPOTENCY_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.PaymentLockTTL, err = duration(v, "PAYMENT_LOCK_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.Lock, err = lockConfig(v, cfg.Network); err != nil {
		return Config{}, err
	}

	if cfg.PricePerSat, err = positiveDecimal(v, "DISPLAY_PRICE_PER_SAT"); err != nil {
		return Config{}, err
	}
	if cfg.PricePerCent, err = positiveDecimal(v, "DISPLAY_PRICE_PER_CENT"); err != nil {
		return Config{}, err
	}
	if cfg.IntraledgerLimits, err = limits.ParseLevelLimits(v.GetString("INTRALEDGER_LIMITS")); err != nil {
		return Config{}, fmt.Errorf("invalid INTRALEDGER_LIMITS: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	cfg.LockRedisURLs = splitList(v.GetString("LOCK_REDIS_URLS"))
	if len(cfg.LockRedisURLs) == 0 {
		cfg.LockRedisURLs = []string{cfg.RedisURL}
	}

	return cfg, nil
}

func lockConfig(v *viper.Viper, network string) (lock.Config, error) {
	lc := lock.DefaultConfig(network)
	var err error
	if v.IsSet("LOCK_TTL") {
		if lc.TTL, err = duration(v, "LOCK_TTL"); err != nil {
			return lock.Config{}, err
		}
	}
	if v.IsSet("LOCK_RETRY_COUNT") {
		n, err := parseInt(v, "LOCK_RETRY_COUNT")
		if err != nil {
			return lock.Config{}, err
		}
		lc.RetryCount = n
	}
	if v.IsSet("LOCK_RETRY_DELAY") {
		if lc.RetryDelay, err = duration(v, "LOCK_RETRY_DELAY"); err != nil {
			return lock.Config{}, err
		}
	}
	if v.IsSet("LOCK_RETRY_JITTER") {
		if lc.RetryJitter, err = duration(v, "LOCK_RETRY_JITTER"); err != nil {
			return lock.Config{}, err
		}
	}
	if v.IsSet("LOCK_AUTO_EXTEND_THRESHOLD") {
		if lc.AutoExtendThreshold, err = duration(v, "LOCK_AUTO_EXTEND_THRESHOLD"); err != nil {
			return lock.Config{}, err
		}
	}
	if v.IsSet("LOCK_DRIFT_FACTOR") {
		f, err := decimal.NewFromString(v.GetString("LOCK_DRIFT_FACTOR"))
		if err != nil {
			return lock.Config{}, fmt.Errorf("invalid LOCK_DRIFT_FACTOR: %w", err)
		}
		lc.DriftFactor = f.InexactFloat64()
	}
	return lc, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// duration accepts Go duration strings and bare integers as seconds.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, fmt.Errorf("invalid %s: empty value", key)
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid %s: negative duration", key)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", key)
	}
	return d, nil
}

func parseInt(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func positiveDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
