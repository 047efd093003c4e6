// Package obslog provides config-driven, category-scoped file logging for
// the memory engine. Logs are written to <project>/.memory-store/storage/logs/
// with one file per category; when debug mode is off for a category, nothing
// is written. Grounded on a zap.NewProductionConfig-based category-logger
// design, trimmed to the components this engine actually has, and keying
// one zap core per category file instead of one global logger.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names one of the engine's subsystems.
type Category string

const (
	CategoryStore   Category = "store"
	CategorySearch  Category = "search"
	CategoryGraph   Category = "graph"
	CategoryCode    Category = "code"
	CategoryRules   Category = "rules"
	CategoryWatcher Category = "watcher"
	CategoryGate    Category = "gate"
	CategoryEngine  Category = "engine"
)

// Level is a logging verbosity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger writes structured entries for a single category to its own file,
// backed by a zap core scoped to that file.
type Logger struct {
	category Category
	file     *os.File
	sugar    *zap.SugaredLogger
}

var (
	mu          sync.RWMutex
	loggers     = make(map[Category]*Logger)
	logsDir     string
	enabled     = true
	enabledCats map[Category]bool
)

// Init configures the logs directory rooted at <projectRoot>/.memory-store/storage/logs.
// It is idempotent; call it once at engine startup.
func Init(projectRoot string, debugMode bool, categoryOverrides map[Category]bool) error {
	mu.Lock()
	defer mu.Unlock()

	logsDir = filepath.Join(projectRoot, ".memory-store", "storage", "logs")
	enabled = debugMode
	enabledCats = categoryOverrides

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("obslog: create logs dir: %w", err)
	}
	// Reset any already-open loggers so they reopen under the new directory.
	for _, l := range loggers {
		if l.sugar != nil {
			_ = l.sugar.Sync()
		}
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
	return nil
}

func categoryEnabled(c Category) bool {
	if enabledCats != nil {
		if v, ok := enabledCats[c]; ok {
			return v
		}
	}
	return enabled
}

func newCategoryCore(f *os.File, category Category) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "msg"
	encCfg.LevelKey = "lvl"
	encCfg.EncodeTime = zapcore.EpochMillisTimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)
}

// Get returns (creating if necessary) the Logger for category c.
func Get(c Category) *Logger {
	mu.RLock()
	l, ok := loggers[c]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[c]; ok {
		return l
	}

	l = &Logger{category: c}
	if logsDir != "" {
		path := filepath.Join(logsDir, string(c)+".log")
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			l.file = f
			l.sugar = zap.New(newCategoryCore(f, c)).Sugar().With("cat", string(c))
		}
	}
	loggers[c] = l
	return l
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	if !categoryEnabled(l.category) || l.sugar == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	switch level {
	case LevelDebug:
		l.sugar.Debug(msg)
	case LevelInfo:
		l.sugar.Info(msg)
	case LevelWarn:
		l.sugar.Warn(msg)
	case LevelError:
		l.sugar.Error(msg)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.write(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.write(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.write(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.write(LevelError, format, args...) }

// Timer tracks the duration of a slow operation and logs it at Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing op under category c.
func StartTimer(c Category, op string) *Timer {
	return &Timer{category: c, op: op, start: time.Now()}
}

// Stop logs the elapsed duration at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debug("%s took %s", t.op, time.Since(t.start))
}
