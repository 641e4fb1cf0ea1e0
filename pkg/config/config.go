// Package config loads bookkeeping settings from the environment and an
// optional .env / config file, environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config groups the application settings.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Log       LogConfig
	Sequences SequenceConfig
}

// AppConfig general application settings.
type AppConfig struct {
	Env  string `validate:"oneof=development staging production test"`
	Name string `validate:"required"`
}

// IsDevelopment reports whether the app runs in development mode.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// DBConfig PostgreSQL settings.
type DBConfig struct {
	DatabaseURL       string
	MaxConns          int32         `validate:"gt=0,gtefield=MinConns"`
	MinConns          int32         `validate:"gte=0"`
	MaxConnLifetime   time.Duration `validate:"gte=0"`
	MaxConnIdleTime   time.Duration `validate:"gte=0"`
	StatementTimeout  time.Duration `validate:"gte=0"`
	LockTimeout       time.Duration `validate:"gte=0"`
	HealthCheckPeriod time.Duration `validate:"gte=0"`
}

// LogConfig logger settings.
type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

// SequenceConfig defaults for document numbering.
type SequenceConfig struct {
	MaxValue int64 `validate:"gt=0"`
	// EntityTypes are the series created by the seed command
	EntityTypes []string `validate:"dive,required"`
	// Series holds per-series overrides, keyed by entity type
	Series map[string]SeriesConfig `validate:"dive"`
}

// SeriesConfig overrides the numbering of one series. Zero fields keep the
// numerator defaults; a zero MaxValue falls back to SEQUENCE_MAX_VALUE.
//
// Read from SEQUENCE_<ENTITY_TYPE>_{PREFIX,PAD_WIDTH,MIN_VALUE,MAX_VALUE,INCREMENT_BY}.
type SeriesConfig struct {
	Prefix      string
	PadWidth    int   `validate:"gte=0"`
	MinValue    int64 `validate:"gte=0"`
	MaxValue    int64 `validate:"omitempty,gtefield=MinValue"`
	IncrementBy int64 `validate:"gte=0"`
}

// Load reads the configuration. Expected names: APP_ENV, DATABASE_URL,
// DB_MAX_CONNS, DB_LOCK_TIMEOUT, LOG_LEVEL, SEQUENCE_MAX_VALUE, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("APP_ENV"),
			Name: v.GetString("APP_NAME"),
		},
		DB: DBConfig{
			DatabaseURL:       v.GetString("DATABASE_URL"),
			MaxConns:          v.GetInt32("DB_MAX_CONNS"),
			MinConns:          v.GetInt32("DB_MIN_CONNS"),
			MaxConnLifetime:   v.GetDuration("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime:   v.GetDuration("DB_MAX_CONN_IDLE_TIME"),
			StatementTimeout:  v.GetDuration("DB_STATEMENT_TIMEOUT"),
			LockTimeout:       v.GetDuration("DB_LOCK_TIMEOUT"),
			HealthCheckPeriod: v.GetDuration("DB_HEALTH_CHECK_PERIOD"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Sequences: SequenceConfig{
			MaxValue:    v.GetInt64("SEQUENCE_MAX_VALUE"),
			EntityTypes: splitList(v.GetString("SEQUENCE_ENTITY_TYPES")),
		},
	}
	cfg.Sequences.Series = loadSeries(v, cfg.Sequences.EntityTypes)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks values that would make the core misbehave.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "bookkeeping")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_MAX_CONN_LIFETIME", time.Hour)
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", 30*time.Minute)
	v.SetDefault("DB_STATEMENT_TIMEOUT", 30*time.Second)
	v.SetDefault("DB_LOCK_TIMEOUT", 5*time.Second)
	v.SetDefault("DB_HEALTH_CHECK_PERIOD", time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SEQUENCE_MAX_VALUE", 999999)
	v.SetDefault("SEQUENCE_ENTITY_TYPES", "issue_vouchers,return_vouchers,transfer_vouchers,payments,customers,cheques")
	// return vouchers run in their own block: RET-2025/100001 .. RET-2025/125000
	v.SetDefault("SEQUENCE_RETURN_VOUCHERS_PREFIX", "RET-")
	v.SetDefault("SEQUENCE_RETURN_VOUCHERS_MIN_VALUE", 100001)
	v.SetDefault("SEQUENCE_RETURN_VOUCHERS_MAX_VALUE", 125000)
}

var seriesKeys = []string{"PREFIX", "PAD_WIDTH", "MIN_VALUE", "MAX_VALUE", "INCREMENT_BY"}

func loadSeries(v *viper.Viper, entityTypes []string) map[string]SeriesConfig {
	series := make(map[string]SeriesConfig)
	for _, et := range entityTypes {
		base := "SEQUENCE_" + strings.ToUpper(et) + "_"

		set := false
		for _, k := range seriesKeys {
			if v.IsSet(base + k) {
				set = true
				break
			}
		}
		if !set {
			continue
		}

		series[et] = SeriesConfig{
			Prefix:      v.GetString(base + "PREFIX"),
			PadWidth:    v.GetInt(base + "PAD_WIDTH"),
			MinValue:    v.GetInt64(base + "MIN_VALUE"),
			MaxValue:    v.GetInt64(base + "MAX_VALUE"),
			IncrementBy: v.GetInt64(base + "INCREMENT_BY"),
		}
	}
	return series
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
