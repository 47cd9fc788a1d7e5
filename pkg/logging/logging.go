// pkg/logging/logging.go - Structured session logging for the shop client
//
// This package provides structured logging backed by zap. Features include:
// - One JSON-lines file per session under <AppDir>/logs
// - Optional human-readable console output in debug mode
// - Package-level helpers taking a message plus key/value pairs
// - Runtime level changes without reopening files

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/windowsadmins/cimianshop/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	// Define log levels.
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string to a LogLevel, defaulting to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

func (ll LogLevel) zapLevel() zapcore.Level {
	switch ll {
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// LoggerConfig holds configuration for the session logger.
type LoggerConfig struct {
	BaseDir       string    // Directory receiving <session>.jsonl
	SessionID     string    // Unique session identifier
	Component     string    // Component/module name
	Level         LogLevel  // Minimum level written
	EnableConsole bool      // Mirror entries to Console
	Console       io.Writer // Console destination, stderr when nil
}

type sessionLogger struct {
	sugar   *zap.SugaredLogger
	level   zap.AtomicLevel
	file    *os.File
	config  LoggerConfig
	logPath string
}

var (
	mu       sync.RWMutex
	instance *sessionLogger
	nop      = zap.NewNop().Sugar()
)

// Init initializes the package logger from the application configuration.
// Calling Init again while a logger is active is a no-op.
func Init(cfg *config.Configuration) error {
	return InitWithConfig(ConfigFrom(cfg))
}

// InitWithConfig initializes the package logger with an explicit configuration.
func InitWithConfig(logCfg LoggerConfig) error {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return nil
	}
	l, err := newLoggerWithConfig(logCfg)
	if err != nil {
		return err
	}
	instance = l
	return nil
}

func generateSessionID() string {
	return "shop-" + uuid.NewString()
}

// ConfigFrom derives the session logger settings from the application configuration.
func ConfigFrom(cfg *config.Configuration) LoggerConfig {
	logCfg := LoggerConfig{
		BaseDir:   filepath.Join(cfg.AppDir, "logs"),
		SessionID: generateSessionID(),
		Component: "cimianshop",
		Level:     ParseLevel(cfg.LogLevel),
	}
	if cfg.Debug {
		logCfg.Level = LevelDebug
		logCfg.EnableConsole = true
	}
	return logCfg
}

func newLoggerWithConfig(cfg LoggerConfig) (*sessionLogger, error) {
	if cfg.SessionID == "" {
		cfg.SessionID = generateSessionID()
	}
	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(cfg.BaseDir, cfg.SessionID+".jsonl")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	level := zap.NewAtomicLevelAt(cfg.Level.zapLevel())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level),
	}

	if cfg.EnableConsole {
		out := cfg.Console
		if out == nil {
			out = os.Stderr
		}
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(zapcore.AddSync(out)),
			level,
		))
	}

	base := zap.New(zapcore.NewTee(cores...)).With(
		zap.String("session_id", cfg.SessionID),
		zap.String("component", cfg.Component),
	)

	return &sessionLogger{
		sugar:   base.Sugar(),
		level:   level,
		file:    file,
		config:  cfg,
		logPath: logPath,
	}, nil
}

func (l *sessionLogger) close() {
	_ = l.sugar.Sync()
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
		}
		l.file = nil
	}
}

// CloseLogger flushes and closes the session log. Later calls log to nowhere.
func CloseLogger() {
	mu.Lock()
	old := instance
	instance = nil
	mu.Unlock()
	if old != nil {
		old.close()
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return nop
	}
	return instance.sugar
}

// SetLevel changes the minimum level of the active logger.
func SetLevel(level LogLevel) {
	mu.RLock()
	defer mu.RUnlock()
	if instance != nil {
		instance.level.SetLevel(level.zapLevel())
	}
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) {
	current().Infow(message, keyValues...)
}

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) {
	current().Debugw(message, keyValues...)
}

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) {
	current().Warnw(message, keyValues...)
}

// Error logs error messages.
func Error(message string, keyValues ...interface{}) {
	current().Errorw(message, keyValues...)
}

// GetSessionID returns the current session ID, or "" before Init.
func GetSessionID() string {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return ""
	}
	return instance.config.SessionID
}

// GetLogPath returns the path of the session log file, or "" before Init.
func GetLogPath() string {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return ""
	}
	return instance.logPath
}
