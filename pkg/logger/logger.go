package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level is a log severity level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown strings fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Config controls logger construction.
type Config struct {
	Level  Level
	Format string // "text" or "json"
	Output string // "stdout", "stderr" or a file path
	Prefix string
}

// Logger is a small leveled logger writing text or JSON lines.
type Logger struct {
	level  Level
	output io.Writer
	format string
	prefix string
	file   *os.File
}

// New creates a logger for the given config.
func New(cfg *Config) (*Logger, error) {
	l := &Logger{
		level:  cfg.Level,
		format: cfg.Format,
		prefix: cfg.Prefix,
	}
	if err := l.setOutput(cfg.Output); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) setOutput(output string) error {
	switch output {
	case "", "stdout":
		l.output = os.Stdout
	case "stderr":
		l.output = os.Stderr
	default:
		dir := filepath.Dir(output)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create log directory: %v", err)
		}
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %v", err)
		}
		l.file = file
		l.output = file
	}
	return nil
}

func (l *Logger) formatMessage(level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	switch l.format {
	case "json":
		return fmt.Sprintf(`{"timestamp":%q,"level":%q,"prefix":%q,"message":%q}`,
			timestamp, level.String(), l.prefix, message)
	default:
		return fmt.Sprintf("[%s] %s [%s] %s",
			timestamp, level.String(), l.prefix, message)
	}
}

func (l *Logger) log(level Level, message string) {
	if level < l.level {
		return
	}
	if l.output != nil {
		fmt.Fprintln(l.output, l.formatMessage(level, message))
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...))
}

// Fatal logs the message and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, fmt.Sprintf(format, args...))
	os.Exit(1)
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return &Logger{level: FATAL + 1, output: io.Discard, format: "text"}
}
