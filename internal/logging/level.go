package logging

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a record severity. Higher is more severe; a sink emits a record
// when the record level is at least the sink threshold.
type Level int

const (
	NotSet   Level = 0
	Debug    Level = 10
	Info     Level = 20
	Warn     Level = 30
	Error    Level = 40
	Critical Level = 50
)

// ToLevel normalises a configured level. Canonical names and integers (or
// strings holding one) are accepted; anything else yields NotSet, which lets
// every record through.
func ToLevel(level any) Level {
	switch v := level.(type) {
	case Level:
		return v
	case string:
		return parseLevel(v)
	case int:
		return Level(v)
	case int8:
		return Level(v)
	case int16:
		return Level(v)
	case int32:
		return Level(v)
	case int64:
		return Level(v)
	case uint:
		return Level(v)
	case uint8:
		return Level(v)
	case uint16:
		return Level(v)
	case uint32:
		return Level(v)
	case uint64:
		return Level(v)
	default:
		return NotSet
	}
}

func parseLevel(s string) Level {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	case "critical":
		return Critical
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return NotSet
	}
	return Level(n)
}

func (l Level) String() string {
	switch l {
	case NotSet:
		return "NOTSET"
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Level %d", int(l))
	}
}

// Levels other than the canonical ones travel through zap below DebugLevel,
// as customBase-n, so a record keeps its exact number and never reaches
// zap's stack, panic or fatal handling. Numbers are clamped to
// [NotSet, maxCustom].
const (
	customBase = zapcore.DebugLevel - 1
	maxCustom  = Level(int(customBase) + 128)
)

// zapLevel returns the zap level carrying l. Canonical levels use their zap
// counterparts; Critical uses DPanic, which only panics in development loggers.
func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Info:
		return zapcore.InfoLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	case Critical:
		return zapcore.DPanicLevel
	}
	return customBase - zapcore.Level(min(max(l, NotSet), maxCustom))
}

// fromZap recovers the exact level carried by a zap level.
func fromZap(l zapcore.Level) Level {
	switch {
	case l <= customBase:
		return Level(customBase - l)
	case l >= zapcore.DPanicLevel:
		return Critical
	case l == zapcore.ErrorLevel:
		return Error
	case l == zapcore.WarnLevel:
		return Warn
	case l == zapcore.InfoLevel:
		return Info
	default:
		return Debug
	}
}

// enabler lets through zap records whose level is at least l.
func (l Level) enabler() zapcore.LevelEnabler {
	return zap.LevelEnablerFunc(func(z zapcore.Level) bool {
		return fromZap(z) >= l
	})
}
