// Package config reads the worker's environment-variable configuration
// into a typed struct, grounded on pkg/os.go's SetConfigFromEnvVars
// reflection loader (env:"..." struct tags, string/int/bool field kinds).
// The teacher's lib-commons wrapper is dropped here since this module has
// no dependency on that internal library; the loader is reimplemented
// directly against os.Getenv.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

// Config is the full set of environment-variable knobs the worker needs to
// boot: database/cache/broker connection strings, the saga's fixed
// constants (spec §6.6), and ambient logging/telemetry settings.
type Config struct {
	EnvName  string `env:"ENV_NAME"`
	LogLevel string `env:"LOG_LEVEL"`

	DBHost     string `env:"DB_HOST"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBPort     string `env:"DB_PORT"`

	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE"`

	RedisURL string `env:"REDIS_URL"`

	RabbitMQURI string `env:"RABBITMQ_URI"`

	WebhookSecretACH string `env:"WEBHOOK_SECRET_ACH"`

	HTTPPort string `env:"HTTP_PORT"`

	ConsumerWorkersPerQueue int `env:"CONSUMER_WORKERS_PER_QUEUE"`

	// Constants from spec §6.6, overridable per-deployment.
	ACHReturnWindowDaysCheckbox int `env:"ACH_RETURN_WINDOW_DAYS_CHECKBOX"`
	ACHReturnWindowDaysWeb      int `env:"ACH_RETURN_WINDOW_DAYS_WEB"`
	LateFeeGraceDays            int `env:"LATE_FEE_GRACE_DAYS"`

	LateFeeFlatCents      int64 `env:"LATE_FEE_FLAT_CENTS"`
	DefaultServicingFeeBps int64 `env:"DEFAULT_SERVICING_FEE_BPS"`

	OutboxDispatchInterval       time.Duration
	OutboxDispatchIntervalMillis int `env:"OUTBOX_DISPATCH_INTERVAL_MS"`
	OutboxBatchSize              int `env:"OUTBOX_BATCH_SIZE"`
}

// Load populates a Config from the process environment, applying the
// defaults spec §6.6 names for anything left unset.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := fromEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	applyDefaults(cfg)

	cfg.OutboxDispatchInterval = time.Duration(cfg.OutboxDispatchIntervalMillis) * time.Millisecond

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.ACHReturnWindowDaysCheckbox == 0 {
		cfg.ACHReturnWindowDaysCheckbox = 2
	}

	if cfg.ACHReturnWindowDaysWeb == 0 {
		cfg.ACHReturnWindowDaysWeb = 60
	}

	if cfg.LateFeeGraceDays == 0 {
		cfg.LateFeeGraceDays = 15
	}

	if cfg.LateFeeFlatCents == 0 {
		cfg.LateFeeFlatCents = 5000
	}

	if cfg.DefaultServicingFeeBps == 0 {
		cfg.DefaultServicingFeeBps = 25
	}

	if cfg.OutboxDispatchIntervalMillis == 0 {
		cfg.OutboxDispatchIntervalMillis = 5000
	}

	if cfg.OutboxBatchSize == 0 {
		cfg.OutboxBatchSize = 500
	}

	if cfg.ConsumerWorkersPerQueue == 0 {
		cfg.ConsumerWorkersPerQueue = 5
	}

	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}
}

// fromEnvVars walks cfg's exported fields by reflection, populating each
// from the environment variable named in its `env` struct tag. Supports
// string, int, int64, and bool fields, matching the field kinds the
// teacher's own Config structs use.
func fromEnvVars(cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("fromEnvVars requires a pointer to a struct")
	}

	elem := v.Elem()
	t := elem.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag := field.Tag.Get("env")
		if tag == "" {
			continue
		}

		raw, ok := os.LookupEnv(tag)
		if !ok || raw == "" {
			continue
		}

		fv := elem.Field(i)

		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("parse %s=%q as int: %w", tag, raw, err)
			}

			fv.SetInt(n)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("parse %s=%q as bool: %w", tag, raw, err)
			}

			fv.SetBool(b)
		default:
			return fmt.Errorf("unsupported config field kind %s for %s", fv.Kind(), tag)
		}
	}

	return nil
}
