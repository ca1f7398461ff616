package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level represents the logging level
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// String returns the level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// MarshalJSON renders the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Component represents the logging component
type Component string

const (
	ComponentApp        Component = "app"
	ComponentResolver   Component = "resolver"
	ComponentDecoder    Component = "decoder"
	ComponentClient     Component = "client"
	ComponentScraper    Component = "scraper"
	ComponentSeries     Component = "series"
	ComponentSelector   Component = "selector"
	ComponentDownloader Component = "downloader"
	ComponentAPI        Component = "api"
)

// AllComponents lists every known component.
var AllComponents = []Component{
	ComponentApp,
	ComponentResolver,
	ComponentDecoder,
	ComponentClient,
	ComponentScraper,
	ComponentSeries,
	ComponentSelector,
	ComponentDownloader,
	ComponentAPI,
}

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Fields carries structured key/value pairs.
type Fields = map[string]interface{}

// Config holds logger configuration
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	ShowCaller bool
	Timestamp  bool
}

// DefaultConfig returns default logger configuration. Logs go to stderr so
// that resolved links on stdout stay pipeable.
func DefaultConfig() *Config {
	components := make(map[Component]bool, len(AllComponents))
	for _, c := range AllComponents {
		components[c] = false
	}
	components[ComponentApp] = true
	return &Config{
		Level:      INFO,
		Format:     FormatText,
		Output:     os.Stderr,
		Components: components,
	}
}

// Entry represents a single log entry
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Component Component `json:"component"`
	Message   string    `json:"message"`
	Fields    Fields    `json:"fields,omitempty"`
	Caller    string    `json:"caller,omitempty"`
}

// Logger provides structured logging functionality
type Logger struct {
	config *Config
	mu     sync.RWMutex
	out    sync.Mutex
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Components == nil {
		config.Components = make(map[Component]bool)
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}
	return &Logger{config: config}
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{logger: l, component: component}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// SetFormat changes the log format
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Format = format
}

// SetOutput changes the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Output = w
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = true
}

// DisableComponent disables logging for a specific component
func (l *Logger) DisableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = false
}

// Enabled reports whether a message at level for component would be written.
func (l *Logger) Enabled(level Level, component Component) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.config.Level && l.config.Components[component]
}

func (l *Logger) log(level Level, component Component, message string, fields Fields, skip int) {
	if !l.Enabled(level, component) {
		return
	}

	l.mu.RLock()
	cfg := *l.config
	l.mu.RUnlock()

	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Component: component,
		Message:   message,
		Fields:    fields,
	}
	if cfg.ShowCaller {
		if _, file, line, ok := runtime.Caller(skip); ok {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}

	var output string
	switch cfg.Format {
	case FormatJSON:
		output = formatJSON(entry)
	case FormatColor:
		output = formatColor(entry, cfg.Timestamp)
	default:
		output = formatText(entry, cfg.Timestamp)
	}

	l.out.Lock()
	fmt.Fprintln(cfg.Output, output)
	l.out.Unlock()
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatText(entry Entry, timestamp bool) string {
	var parts []string
	if timestamp {
		parts = append(parts, entry.Timestamp.Format("2006-01-02 15:04:05"))
	}
	parts = append(parts, "["+entry.Level.String()+"]", "["+string(entry.Component)+"]", entry.Message)
	if entry.Caller != "" {
		parts = append(parts, "("+entry.Caller+")")
	}
	for _, k := range sortedKeys(entry.Fields) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
	}
	return strings.Join(parts, " ")
}

func formatJSON(entry Entry) string {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"component":%q,"message":%q,"marshal_error":%q}`,
			entry.Level.String(), entry.Component, entry.Message, err.Error())
	}
	return string(data)
}

var (
	timeColor      = color.New(color.FgHiBlack)
	componentColor = color.New(color.FgCyan)
	keyColor       = color.New(color.FgYellow)
	valueColor     = color.New(color.FgGreen)
	levelColors    = map[Level]*color.Color{
		TRACE: color.New(color.FgWhite),
		DEBUG: color.New(color.FgHiBlue),
		INFO:  color.New(color.FgHiGreen),
		WARN:  color.New(color.FgHiYellow),
		ERROR: color.New(color.FgHiRed),
	}
)

func formatColor(entry Entry, timestamp bool) string {
	var parts []string
	if timestamp {
		parts = append(parts, timeColor.Sprint(entry.Timestamp.Format("2006-01-02 15:04:05")))
	}
	lc, ok := levelColors[entry.Level]
	if !ok {
		lc = color.New(color.Reset)
	}
	parts = append(parts,
		lc.Sprintf("[%s]", entry.Level),
		componentColor.Sprintf("[%s]", entry.Component),
		entry.Message,
	)
	if entry.Caller != "" {
		parts = append(parts, timeColor.Sprintf("(%s)", entry.Caller))
	}
	for _, k := range sortedKeys(entry.Fields) {
		parts = append(parts, keyColor.Sprint(k)+"="+valueColor.Sprint(entry.Fields[k]))
	}
	return strings.Join(parts, " ")
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
	base      Fields
}

// With returns a child logger that adds fields to every entry.
func (cl *ComponentLogger) With(fields Fields) *ComponentLogger {
	return &ComponentLogger{
		logger:    cl.logger,
		component: cl.component,
		base:      merge(cl.base, fields),
	}
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...Fields) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...Fields) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...Fields) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...Fields) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...Fields) {
	cl.log(ERROR, message, fields...)
}

func (cl *ComponentLogger) log(level Level, message string, fields ...Fields) {
	merged := cl.base
	for _, f := range fields {
		merged = merge(merged, f)
	}
	// skip runtime.Caller frames: log, ComponentLogger.log, the level method
	cl.logger.log(level, cl.component, message, merged, 3)
}

func merge(a, b Fields) Fields {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make(Fields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

var (
	globalMu     sync.RWMutex
	globalLogger = New(DefaultConfig())
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithComponent returns a component logger from global logger
func WithComponent(component Component) *ComponentLogger {
	return GetGlobalLogger().WithComponent(component)
}
