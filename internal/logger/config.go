package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by EnvironmentConfig.
const (
	EnvLevel      = "PAHEDL_LOG_LEVEL"
	EnvFormat     = "PAHEDL_LOG_FORMAT"
	EnvOutput     = "PAHEDL_LOG_OUTPUT"
	EnvCaller     = "PAHEDL_LOG_CALLER"
	EnvTimestamp  = "PAHEDL_LOG_TIMESTAMP"
	EnvComponents = "PAHEDL_LOG_COMPONENTS"
	EnvMaxSize    = "PAHEDL_LOG_MAX_SIZE"
	EnvMaxAge     = "PAHEDL_LOG_MAX_AGE"
	EnvMaxBackups = "PAHEDL_LOG_MAX_BACKUPS"
	EnvConfigFile = "PAHEDL_LOG_CONFIG"
)

// LogConfig represents the complete logging configuration
type LogConfig struct {
	Level      string          `json:"level"`
	Format     string          `json:"format"`
	Output     string          `json:"output"`
	Components map[string]bool `json:"components"`
	ShowCaller bool            `json:"show_caller"`
	Timestamp  bool            `json:"timestamp"`
	Rotation   *RotationConfig `json:"rotation,omitempty"`
}

// RotationConfig represents log rotation configuration
type RotationConfig struct {
	MaxSize    string `json:"max_size"`    // e.g. "100MB"
	MaxAge     string `json:"max_age"`     // e.g. "7d"
	MaxBackups int    `json:"max_backups"`
	Compress   bool   `json:"compress"`
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	components := make(map[string]bool, len(AllComponents))
	for _, c := range AllComponents {
		components[string(c)] = c == ComponentApp
	}
	return &LogConfig{
		Level:      "INFO",
		Format:     "text",
		Output:     "stderr",
		Components: components,
		Rotation: &RotationConfig{
			MaxSize:    "50MB",
			MaxAge:     "7d",
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// LoadConfigFromFile loads configuration from a JSON file
func LoadConfigFromFile(filename string) (*LogConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultLogConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// ToLoggerConfig converts LogConfig to logger.Config
func (c *LogConfig) ToLoggerConfig() (*Config, error) {
	output, err := parseOutput(c.Output)
	if err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}
	return c.toConfig(output)
}

func (c *LogConfig) toConfig(output io.Writer) (*Config, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}
	format, err := parseFormat(c.Format)
	if err != nil {
		return nil, fmt.Errorf("parse format: %w", err)
	}

	components := make(map[Component]bool, len(c.Components))
	for name, enabled := range c.Components {
		components[Component(name)] = enabled
	}

	return &Config{
		Level:      level,
		Format:     format,
		Output:     output,
		Components: components,
		ShowCaller: c.ShowCaller,
		Timestamp:  c.Timestamp,
	}, nil
}

func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

// isFileOutput reports whether output names a file ("file:<path>").
func isFileOutput(output string) bool {
	return strings.HasPrefix(output, "file:")
}

func parseOutput(outputStr string) (io.Writer, error) {
	switch strings.ToLower(outputStr) {
	case "stderr", "":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "null", "none":
		return io.Discard, nil
	}
	if !isFileOutput(outputStr) {
		return nil, fmt.Errorf("unknown output: %s", outputStr)
	}
	filePath := strings.TrimPrefix(outputStr, "file:")
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func envBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// EnvironmentConfig builds the configuration from PAHEDL_LOG_* variables.
// PAHEDL_LOG_CONFIG names an optional JSON file applied before the variables.
func EnvironmentConfig() *LogConfig {
	config := DefaultLogConfig()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if loaded, err := LoadConfigFromFile(path); err == nil {
			config = loaded
		} else {
			fmt.Fprintf(os.Stderr, "ignoring %s: %v\n", EnvConfigFile, err)
		}
	}

	if level := os.Getenv(EnvLevel); level != "" {
		config.Level = level
	}
	if format := os.Getenv(EnvFormat); format != "" {
		config.Format = format
	}
	if output := os.Getenv(EnvOutput); output != "" {
		config.Output = output
	}
	if caller := os.Getenv(EnvCaller); caller != "" {
		config.ShowCaller = envBool(caller)
	}
	if timestamp := os.Getenv(EnvTimestamp); timestamp != "" {
		config.Timestamp = envBool(timestamp)
	}

	// "all" enables every component, otherwise only the listed ones
	if components := os.Getenv(EnvComponents); components != "" {
		config.Components = make(map[string]bool)
		for _, comp := range strings.Split(components, ",") {
			comp = strings.TrimSpace(comp)
			if comp == "all" {
				for _, c := range AllComponents {
					config.Components[string(c)] = true
				}
				continue
			}
			if comp != "" {
				config.Components[comp] = true
			}
		}
	}

	if config.Rotation == nil {
		config.Rotation = &RotationConfig{}
	}
	if v := os.Getenv(EnvMaxSize); v != "" {
		config.Rotation.MaxSize = v
	}
	if v := os.Getenv(EnvMaxAge); v != "" {
		config.Rotation.MaxAge = v
	}
	if v := os.Getenv(EnvMaxBackups); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Rotation.MaxBackups = n
		}
	}

	return config
}

// ValidateConfig validates the configuration
func (c *LogConfig) ValidateConfig() error {
	if _, err := parseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if _, err := parseFormat(c.Format); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	switch strings.ToLower(c.Output) {
	case "", "stderr", "stdout", "null", "none":
	default:
		if !isFileOutput(c.Output) {
			return fmt.Errorf("invalid output: %s", c.Output)
		}
	}
	if c.Rotation != nil {
		if err := c.Rotation.Validate(); err != nil {
			return fmt.Errorf("invalid rotation config: %w", err)
		}
	}
	return nil
}

// Validate validates rotation configuration
func (r *RotationConfig) Validate() error {
	if _, err := parseSize(r.MaxSize); err != nil {
		return fmt.Errorf("invalid max_size: %w", err)
	}
	if _, err := parseDuration(r.MaxAge); err != nil {
		return fmt.Errorf("invalid max_age: %w", err)
	}
	if r.MaxBackups < 0 {
		return fmt.Errorf("max_backups must be non-negative")
	}
	return nil
}

// splitQuantity splits "100MB" into 100 and "MB".
func splitQuantity(s string) (int64, string, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("no number found in %q", s)
	}
	num, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse number: %w", err)
	}
	return num, strings.TrimSpace(s[i:]), nil
}

// parseSize parses "100MB", "1GB" and friends to bytes. Empty means no limit.
func parseSize(sizeStr string) (int64, error) {
	if strings.TrimSpace(sizeStr) == "" {
		return 0, nil
	}
	num, unit, err := splitQuantity(sizeStr)
	if err != nil {
		return 0, err
	}
	switch strings.ToUpper(unit) {
	case "B", "":
		return num, nil
	case "KB":
		return num << 10, nil
	case "MB":
		return num << 20, nil
	case "GB":
		return num << 30, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}

// parseDuration parses "7d", "24h", "30m" or "45s". Empty means no limit.
func parseDuration(durationStr string) (time.Duration, error) {
	if strings.TrimSpace(durationStr) == "" {
		return 0, nil
	}
	num, unit, err := splitQuantity(durationStr)
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(unit) {
	case "s", "sec":
		return time.Duration(num) * time.Second, nil
	case "m", "min":
		return time.Duration(num) * time.Minute, nil
	case "h", "hour":
		return time.Duration(num) * time.Hour, nil
	case "d", "day", "days":
		return time.Duration(num) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}
