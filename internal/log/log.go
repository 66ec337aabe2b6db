package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu       sync.RWMutex
	sugar    *zap.SugaredLogger
	initOnce sync.Once
	minLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// initLogger builds the default stderr logger on first use.
func initLogger() {
	initOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = minLevel
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true

		l, err := cfg.Build(zap.AddCallerSkip(2))
		if err != nil {
			l = zap.NewNop()
		}
		mu.Lock()
		if sugar == nil {
			sugar = l.Sugar()
		}
		mu.Unlock()
	})
}

// UseLogger replaces the process logger. Tests use it with zaptest/observer.
func UseLogger(l *zap.Logger) {
	initOnce.Do(func() {})
	mu.Lock()
	sugar = l.WithOptions(zap.AddCallerSkip(2)).Sugar()
	mu.Unlock()
}

func SetLevel(l Level) {
	minLevel.SetLevel(toZap(l))
}

// ParseLevel maps config strings such as "debug" or "WARN" to a Level.
// Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

func logWithLevel(level Level, msg string, kv ...any) {
	initLogger()

	mu.RLock()
	s := sugar
	mu.RUnlock()

	// Odd trailing values are dropped, same as the old key=value formatter.
	if len(kv)%2 == 1 {
		kv = kv[:len(kv)-1]
	}

	switch level {
	case LevelDebug:
		s.Debugw(msg, kv...)
	case LevelWarn:
		s.Warnw(msg, kv...)
	case LevelError:
		s.Errorw(msg, kv...)
	default:
		s.Infow(msg, kv...)
	}
}

func toZap(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
