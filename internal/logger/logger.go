// Package logger provides structured JSON logging and metrics tracking for the relay.
//
// Log entries are written through zap with a JSON encoder. Callers attach
// structured context with Fields:
//
//	logger.Info("league scraped", logger.Fields{
//	    "league_id": "9446",
//	    "games":     42,
//	})
//
//	logger.Error("store put failed", logger.Fields{
//	    "league_id": "9446",
//	}, err)
//
// Metrics tracks counters, gauges and timings. The server exposes a snapshot
// of the default tracker.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var zapLevels = map[Level]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

// ParseLevel converts a level name such as "info" or "WARN" into a Level
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := zapLevels[level]; !ok {
		return "", fmt.Errorf("unknown log level: %q", s)
	}
	return level, nil
}

// Logger provides structured logging
type Logger struct {
	minLevel Level
	zap      *zap.Logger
}

// Fields represents structured log fields
type Fields map[string]interface{}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(LevelInfo, os.Stdout)
)

// New creates a logger writing JSON lines to output. Messages below level are discarded.
func New(level Level, output io.Writer) *Logger {
	zl, ok := zapLevels[level]
	if !ok {
		level, zl = LevelInfo, zapcore.InfoLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(output)),
		zl,
	)

	return &Logger{minLevel: level, zap: zap.New(core)}
}

// SetDefault replaces the package-level logger used by Debug, Info, Warn and Error
func SetDefault(logger *Logger) {
	if logger == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// Default returns the package-level logger
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Level returns the minimum level the logger writes
func (l *Logger) Level() Level {
	return l.minLevel
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func (l *Logger) log(level Level, message string, fields Fields, err error) {
	ce := l.zap.Check(zapLevels[level], message)
	if ce == nil {
		return
	}

	zf := make([]zap.Field, 0, 2)
	if len(fields) > 0 {
		zf = append(zf, zap.Any("fields", map[string]interface{}(fields)))
	}
	if err != nil {
		zf = append(zf, zap.String("error", err.Error()))
	}

	ce.Write(zf...)
}

// Debug logs detailed diagnostic information
func (l *Logger) Debug(message string, fields Fields) {
	l.log(LevelDebug, message, fields, nil)
}

// Info logs general operational information
func (l *Logger) Info(message string, fields Fields) {
	l.log(LevelInfo, message, fields, nil)
}

// Warn logs a problem that does not stop the current operation
func (l *Logger) Warn(message string, fields Fields) {
	l.log(LevelWarn, message, fields, nil)
}

// Error logs a failure together with its error
func (l *Logger) Error(message string, fields Fields, err error) {
	l.log(LevelError, message, fields, err)
}

// Debug logs a debug message with the default logger
func Debug(message string, fields Fields) {
	Default().Debug(message, fields)
}

// Info logs an info message with the default logger
func Info(message string, fields Fields) {
	Default().Info(message, fields)
}

// Warn logs a warning message with the default logger
func Warn(message string, fields Fields) {
	Default().Warn(message, fields)
}

// Error logs an error message with the default logger
func Error(message string, fields Fields, err error) {
	Default().Error(message, fields, err)
}

// Metrics tracks counters, gauges and timings. All operations are thread-safe.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string]*timingStats
}

type timingStats struct {
	count int
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// TimingSnapshot summarizes the durations recorded under one name
type TimingSnapshot struct {
	Count   int    `json:"count"`
	Total   string `json:"total"`
	Average string `json:"average"`
	Min     string `json:"min"`
	Max     string `json:"max"`
}

// MetricsSnapshot is a point-in-time copy of a Metrics tracker
type MetricsSnapshot struct {
	Counters map[string]int64          `json:"counters"`
	Gauges   map[string]float64        `json:"gauges"`
	Timings  map[string]TimingSnapshot `json:"timings"`
}

var defaultMetrics = NewMetrics()

// NewMetrics creates an empty metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string]*timingStats),
	}
}

// IncrCounter increments a counter by 1
func (m *Metrics) IncrCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// SetGauge sets a gauge, overwriting any previous value
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// RecordTiming folds a duration into the running statistics for name
func (m *Metrics) RecordTiming(name string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.timings[name]
	if !ok {
		m.timings[name] = &timingStats{count: 1, total: duration, min: duration, max: duration}
		return
	}
	s.count++
	s.total += duration
	if duration < s.min {
		s.min = duration
	}
	if duration > s.max {
		s.max = duration
	}
}

// Snapshot returns a deep copy, safe to use concurrently with metric updates
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Counters: make(map[string]int64, len(m.counters)),
		Gauges:   make(map[string]float64, len(m.gauges)),
		Timings:  make(map[string]TimingSnapshot, len(m.timings)),
	}
	for k, v := range m.counters {
		snap.Counters[k] = v
	}
	for k, v := range m.gauges {
		snap.Gauges[k] = v
	}
	for k, s := range m.timings {
		snap.Timings[k] = TimingSnapshot{
			Count:   s.count,
			Total:   s.total.String(),
			Average: (s.total / time.Duration(s.count)).String(),
			Min:     s.min.String(),
			Max:     s.max.String(),
		}
	}
	return snap
}

// IncrCounter increments a counter on the default metrics tracker
func IncrCounter(name string) {
	defaultMetrics.IncrCounter(name)
}

// SetGauge sets a gauge on the default metrics tracker
func SetGauge(name string, value float64) {
	defaultMetrics.SetGauge(name, value)
}

// RecordTiming records a timing on the default metrics tracker
func RecordTiming(name string, duration time.Duration) {
	defaultMetrics.RecordTiming(name, duration)
}

// MetricsSnapshotNow returns a snapshot of the default metrics tracker
func MetricsSnapshotNow() MetricsSnapshot {
	return defaultMetrics.Snapshot()
}
