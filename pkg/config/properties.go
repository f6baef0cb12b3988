package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/downfa11-org/go-streams/pkg/stream"
	"github.com/downfa11-org/go-streams/util"
	"gopkg.in/yaml.v3"
)

// Config is shared by the publisher, the consumer and streamctl.
type Config struct {
	// Redis
	RedisHost     string `yaml:"redis_host" json:"redis_host"`
	RedisPort     int    `yaml:"redis_port" json:"redis_port"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	MaxRetries    int    `yaml:"max_retries" json:"max_retries"`

	// Stream
	StreamName    string           `yaml:"stream_name" json:"stream_name"`
	ConsumerGroup string           `yaml:"consumer_group" json:"consumer_group"`
	Compression   util.Compression `yaml:"compression" json:"compression"`

	// Publisher
	PublisherIntervalMS   int `yaml:"publisher_interval_ms" json:"publisher_interval_ms"`
	PublisherMessageCount int `yaml:"publisher_message_count" json:"publisher_message_count"`

	// Consumer
	ConsumerID            string `yaml:"consumer_id" json:"consumer_id"`
	ConsumerBatchSize     int    `yaml:"consumer_batch_size" json:"consumer_batch_size"`
	ConsumerBlockMS       int    `yaml:"consumer_block_ms" json:"consumer_block_ms"`
	ConsumerProcessTimeMS int    `yaml:"consumer_process_time_ms" json:"consumer_process_time_ms"`

	// Observability
	LogLevel       util.LogLevel  `yaml:"log_level" json:"log_level"`
	LogFormat      util.LogFormat `yaml:"log_format" json:"log_format"`
	EnableExporter bool           `yaml:"enable_exporter" json:"enable_exporter"`
	ExporterPort   int            `yaml:"exporter_port" json:"exporter_port"`
}

func Default() *Config {
	return &Config{
		RedisHost:             "localhost",
		RedisPort:             6379,
		MaxRetries:            10,
		StreamName:            "my_stream",
		ConsumerGroup:         "my_group",
		Compression:           util.CompressionNone,
		PublisherIntervalMS:   1000,
		PublisherMessageCount: 100,
		ConsumerID:            util.GenerateConsumerID(),
		ConsumerBatchSize:     10,
		ConsumerBlockMS:       5000,
		ConsumerProcessTimeMS: 500,
		LogLevel:              util.LogLevelInfo,
		LogFormat:             util.LogFormatText,
		ExporterPort:          9100,
	}
}

// Load resolves the configuration for a binary: defaults, then the file named
// by --config (or CONFIG_PATH), then the environment, then explicit flags.
func Load(name string, args []string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := BindFlags(fs, Default())
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	overrides := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			overrides[f.Name] = f.Value.String()
		}
	})

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return Resolve(path, os.LookupEnv, overrides)
}

// Resolve layers the file at path, the environment seen through lookup and
// flag-style overrides over the defaults, then validates the result.
func Resolve(path string, lookup func(string) (string, bool), overrides map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return nil, err
		}
	}

	if len(overrides) > 0 {
		fs := flag.NewFlagSet("overrides", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		BindFlags(fs, cfg)
		var errs []error
		for name, value := range overrides {
			if err := fs.Set(name, value); err != nil {
				errs = append(errs, fmt.Errorf("flag --%s: %w", name, err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML or JSON file (chosen by extension) onto cfg.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
	}
	return nil
}

// BindFlags registers every setting on fs, using the current values of cfg as
// defaults, and returns the --config path.
func BindFlags(fs *flag.FlagSet, cfg *Config) *string {
	configPath := fs.String("config", "", "Path to YAML/JSON config file")

	fs.StringVar(&cfg.RedisHost, "redis-host", cfg.RedisHost, "Redis host")
	fs.IntVar(&cfg.RedisPort, "redis-port", cfg.RedisPort, "Redis port")
	fs.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database index")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retries per Redis command")

	fs.StringVar(&cfg.StreamName, "stream", cfg.StreamName, "Stream name")
	fs.StringVar(&cfg.ConsumerGroup, "group", cfg.ConsumerGroup, "Consumer group name")
	fs.Var(&cfg.Compression, "compression", "Payload compression (none, gzip, snappy, lz4)")

	fs.IntVar(&cfg.PublisherIntervalMS, "interval-ms", cfg.PublisherIntervalMS, "Publish interval in milliseconds")
	fs.IntVar(&cfg.PublisherMessageCount, "count", cfg.PublisherMessageCount, "Number of messages per batch")

	fs.StringVar(&cfg.ConsumerID, "consumer-id", cfg.ConsumerID, "Consumer name within the group")
	fs.IntVar(&cfg.ConsumerBatchSize, "batch-size", cfg.ConsumerBatchSize, "Entries fetched per read")
	fs.IntVar(&cfg.ConsumerBlockMS, "block-ms", cfg.ConsumerBlockMS, "Blocking read timeout in milliseconds")
	fs.IntVar(&cfg.ConsumerProcessTimeMS, "process-time-ms", cfg.ConsumerProcessTimeMS, "Simulated processing time per message in milliseconds")

	fs.Var(&cfg.LogLevel, "log-level", "Log level (trace, debug, info, warn, error, fatal)")
	fs.Var(&cfg.LogFormat, "log-format", "Log format (text, json)")
	fs.BoolVar(&cfg.EnableExporter, "exporter", cfg.EnableExporter, "Enable Prometheus exporter")
	fs.IntVar(&cfg.ExporterPort, "exporter-port", cfg.ExporterPort, "Exporter port")

	return configPath
}

func (cfg *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)
}

func (cfg *Config) ClientOptions(logger *slog.Logger) stream.ClientOptions {
	return stream.ClientOptions{
		Addr:       cfg.RedisAddr(),
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	}
}

// NewLogger builds the process logger described by the log settings.
func (cfg *Config) NewLogger(w io.Writer) *slog.Logger {
	return util.NewLogger(w, cfg.LogLevel, cfg.LogFormat)
}

func (cfg *Config) PublisherInterval() time.Duration {
	return time.Duration(cfg.PublisherIntervalMS) * time.Millisecond
}

func (cfg *Config) ConsumerBlock() time.Duration {
	return time.Duration(cfg.ConsumerBlockMS) * time.Millisecond
}

func (cfg *Config) ConsumerProcessTime() time.Duration {
	return time.Duration(cfg.ConsumerProcessTimeMS) * time.Millisecond
}
