package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ApplyEnv overlays the environment variables seen through lookup. Every
// unparseable value is reported, not just the first.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}
	setter := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	str("REDIS_HOST", &cfg.RedisHost)
	num("REDIS_PORT", &cfg.RedisPort)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	num("REDIS_DB", &cfg.RedisDB)
	num("REDIS_MAX_RETRIES", &cfg.MaxRetries)

	str("REDIS_STREAM_NAME", &cfg.StreamName)
	str("REDIS_CONSUMER_GROUP", &cfg.ConsumerGroup)
	setter("STREAM_COMPRESSION", cfg.Compression.Set)

	num("PUBLISHER_INTERVAL_MS", &cfg.PublisherIntervalMS)
	num("PUBLISHER_MESSAGE_COUNT", &cfg.PublisherMessageCount)

	str("CONSUMER_ID", &cfg.ConsumerID)
	num("CONSUMER_BATCH_SIZE", &cfg.ConsumerBatchSize)
	num("CONSUMER_BLOCK_MS", &cfg.ConsumerBlockMS)
	num("CONSUMER_PROCESS_TIME_MS", &cfg.ConsumerProcessTimeMS)

	setter("LOG_LEVEL", cfg.LogLevel.Set)
	setter("LOG_FORMAT", cfg.LogFormat.Set)
	boolean("ENABLE_EXPORTER", &cfg.EnableExporter)
	num("EXPORTER_PORT", &cfg.ExporterPort)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (cfg *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(cfg.RedisHost) == "" {
		fail("redis_host must not be empty")
	}
	if cfg.RedisPort < 1 || cfg.RedisPort > 65535 {
		fail("redis_port %d out of range (1-65535)", cfg.RedisPort)
	}
	if cfg.RedisDB < 0 {
		fail("redis_db must be >= 0, got %d", cfg.RedisDB)
	}
	if cfg.MaxRetries < 0 {
		fail("max_retries must be >= 0, got %d", cfg.MaxRetries)
	}
	if strings.TrimSpace(cfg.StreamName) == "" {
		fail("stream_name must not be empty")
	}
	if strings.TrimSpace(cfg.ConsumerGroup) == "" {
		fail("consumer_group must not be empty")
	}
	if cfg.PublisherIntervalMS <= 0 {
		fail("publisher_interval_ms must be > 0, got %d", cfg.PublisherIntervalMS)
	}
	if cfg.PublisherMessageCount <= 0 {
		fail("publisher_message_count must be > 0, got %d", cfg.PublisherMessageCount)
	}
	if strings.TrimSpace(cfg.ConsumerID) == "" {
		fail("consumer_id must not be empty")
	}
	if cfg.ConsumerBatchSize <= 0 {
		fail("consumer_batch_size must be > 0, got %d", cfg.ConsumerBatchSize)
	}
	if cfg.ConsumerBlockMS <= 0 {
		fail("consumer_block_ms must be > 0, got %d", cfg.ConsumerBlockMS)
	}
	if cfg.ConsumerProcessTimeMS < 0 {
		fail("consumer_process_time_ms must be >= 0, got %d", cfg.ConsumerProcessTimeMS)
	}
	if cfg.EnableExporter && (cfg.ExporterPort < 1 || cfg.ExporterPort > 65535) {
		fail("exporter_port %d out of range (1-65535)", cfg.ExporterPort)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
