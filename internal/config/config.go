// Package config loads the changetrail CLI configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHANGETRAIL_"

type Config struct {
	DatabaseURL     string       `yaml:"database_url"`
	HistorySuffix   string       `yaml:"history_suffix" validate:"required"`
	IDColumn        string       `yaml:"id_column" validate:"required"`
	CreateIDIndex   bool         `yaml:"create_id_index"`
	Strict          bool         `yaml:"strict"`
	Equality        string       `yaml:"equality" validate:"oneof=deep shallow"`
	LogLevel        string       `yaml:"log_level" validate:"oneof=debug info warn error"`
	Redact          []string     `yaml:"redact"`
	Kafka           *KafkaConfig `yaml:"kafka,omitempty"`
	Tables          []string     `yaml:"tables"`
	MetricsTextfile string       `yaml:"metrics_textfile"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" validate:"required,min=1,dive,required"`
	Topic   string   `yaml:"topic" validate:"required"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HistorySuffix: "_history",
		IDColumn:      "id",
		Equality:      "deep",
		LogLevel:      "info",
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// RequireDatabase reports an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is not set (use the config file or %sDATABASE_URL)", EnvPrefix)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("DATABASE_URL", &c.DatabaseURL)
	str("HISTORY_SUFFIX", &c.HistorySuffix)
	str("ID_COLUMN", &c.IDColumn)
	str("EQUALITY", &c.Equality)
	str("LOG_LEVEL", &c.LogLevel)
	str("METRICS_TEXTFILE", &c.MetricsTextfile)
	list("REDACT", &c.Redact)
	list("TABLES", &c.Tables)
	if err := boolean("CREATE_ID_INDEX", &c.CreateIDIndex); err != nil {
		return err
	}
	if err := boolean("STRICT", &c.Strict); err != nil {
		return err
	}

	brokers, hasBrokers := lookup(EnvPrefix + "KAFKA_BROKERS")
	topic, hasTopic := lookup(EnvPrefix + "KAFKA_TOPIC")
	if hasBrokers || hasTopic {
		if c.Kafka == nil {
			c.Kafka = &KafkaConfig{}
		}
		if hasBrokers {
			c.Kafka.Brokers = splitList(brokers)
		}
		if hasTopic {
			c.Kafka.Topic = topic
		}
	}
	return nil
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
