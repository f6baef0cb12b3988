package util

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLogLevel accepts debug/info/warn/error plus the trace and fatal aliases.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error", "fatal":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("invalid log level %q (trace, debug, info, warn, error, fatal)", s)
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// Set implements flag.Value.
func (l *LogLevel) Set(s string) error {
	v, err := ParseLogLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// UnmarshalYAML implements custom YAML unmarshaling for LogLevel
func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.ShortTag() == "!!int" {
		var i int
		if err := value.Decode(&i); err != nil {
			return fmt.Errorf("log_level must be a string (debug/info/warn/error) or integer (0-3)")
		}
		return l.setInt(i)
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("log_level must be a string (debug/info/warn/error) or integer (0-3)")
	}
	return l.Set(s)
}

// UnmarshalJSON implements custom JSON unmarshaling for LogLevel
func (l *LogLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return l.Set(s)
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("log_level must be a string (debug/info/warn/error) or integer (0-3)")
	}
	return l.setInt(i)
}

func (l LogLevel) MarshalYAML() (any, error) { return l.String(), nil }

func (l LogLevel) MarshalJSON() ([]byte, error) { return json.Marshal(l.String()) }

func (l *LogLevel) setInt(i int) error {
	if i < int(LogLevelDebug) || i > int(LogLevelError) {
		return fmt.Errorf("log_level %d out of range (0-3)", i)
	}
	*l = LogLevel(i)
	return nil
}

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

func ParseLogFormat(s string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(strings.TrimSpace(s))) {
	case LogFormatText, "":
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return LogFormatText, fmt.Errorf("invalid log format %q (text, json)", s)
	}
}

func (f LogFormat) String() string { return string(f) }

// Set implements flag.Value.
func (f *LogFormat) Set(s string) error {
	v, err := ParseLogFormat(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f *LogFormat) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("log_format must be a string: %w", err)
	}
	return f.Set(s)
}

func (f *LogFormat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("log_format must be a string: %w", err)
	}
	return f.Set(s)
}
