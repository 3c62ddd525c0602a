package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// envKeys lists the settings that can be overridden from the environment. Each
// key maps to its upper-cased, underscore-separated name, for example
// broker.kafka.brokers to BROKER_KAFKA_BROKERS.
var envKeys = []string{
	"server.port",
	"server.read_timeout_seconds",
	"server.write_timeout_seconds",

	"storage.type",

	"database.run_migrations",
	"database.postgres.host",
	"database.postgres.port",
	"database.postgres.user",
	"database.postgres.password",
	"database.postgres.dbname",
	"database.postgres.sslmode",
	"database.redis.host",
	"database.redis.port",
	"database.redis.password",
	"database.redis.db",
	"database.redis.ttl_seconds",
	"database.mongodb.uri",
	"database.mongodb.database",

	"broker.type",
	"broker.kafka.brokers",
	"broker.kafka.group_id",
	"broker.kafka.input_topic",
	"broker.kafka.output_topic",
	"broker.kafka.config_update_topic",
	"broker.kafka.config_group_id",
	"broker.kafka.dlq_topic",

	"filtering.reload.interval_seconds",
	"filtering.reload.jitter_max_milliseconds",
	"filtering.fallback.on_error",

	"management.rate_limit.enabled",
	"management.rate_limit.rps",
	"management.rate_limit.burst",

	"logging.level",
	"logging.format",

	"tracing.enabled",
	"tracing.service_name",
	"tracing.otlp.endpoint",
	"tracing.otlp.insecure",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.type", StorageTypePostgres)
	v.SetDefault("broker.type", "kafka")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.postgres.sslmode", "disable")
}

// Load reads configFile, applies environment overrides and validates the
// result with ValidateStatic.
func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		trimmedListHook,
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// trimmedListHook decodes a comma separated string, as found in environment
// variables, into a string slice with blank entries dropped.
func trimmedListHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
		return data, nil
	}
	var out []string
	for _, part := range strings.Split(data.(string), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}
