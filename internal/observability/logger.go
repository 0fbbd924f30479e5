// File: internal/observability/logger.go
package observability

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/widgetpilot/internal/config"
)

var (
	current  atomic.Pointer[zap.Logger]
	initOnce sync.Once
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// levelColors maps the color names accepted in logger.colors.
var levelColors = map[string]color.Attribute{
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,
}

// Initialize installs the process logger. Console entries go to console; a
// configured log file additionally receives every entry as JSON, rotated by
// lumberjack. Only the first call has an effect until ResetForTest.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	initOnce.Do(func() {
		level := parseLevel(cfg.Level)
		cores := []zapcore.Core{zapcore.NewCore(consoleEncoder(cfg), console, level)}
		if cfg.LogFile != "" {
			cores = append(cores, fileCore(cfg, level))
		}

		opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}
		l := zap.New(zapcore.NewTee(cores...), opts...).Named(cfg.ServiceName)
		current.Store(l)
		zap.ReplaceGlobals(l)
	})
}

// InitializeLogger logs to stderr, which keeps stdout free for generated code.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stderr))
}

// ResetForTest drops the installed logger so the next Initialize applies.
func ResetForTest() {
	current.Store(nil)
	initOnce = sync.Once{}
}

func parseLevel(s string) zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if s != "" {
		_ = level.UnmarshalText([]byte(s))
	}
	return level
}

func baseEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return ec
}

// consoleEncoder renders "console" as one colored line per entry and any
// other format as JSON.
func consoleEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	ec := baseEncoderConfig()
	if cfg.Format != "console" {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = levelEncoder(cfg.Colors)
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

func fileCore(cfg config.LoggerConfig, level zap.AtomicLevel) zapcore.Core {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(baseEncoderConfig()), w, level)
}

// levelEncoder paints each level in its configured color. Levels without a
// known color print plain. Colors are forced on since the config asked for them.
func levelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	painters := make(map[zapcore.Level]*color.Color)
	for level, name := range map[zapcore.Level]string{
		zapcore.DebugLevel:  colors.Debug,
		zapcore.InfoLevel:   colors.Info,
		zapcore.WarnLevel:   colors.Warn,
		zapcore.ErrorLevel:  colors.Error,
		zapcore.DPanicLevel: colors.DPanic,
		zapcore.PanicLevel:  colors.Panic,
		zapcore.FatalLevel:  colors.Fatal,
	} {
		if attr, ok := levelColors[strings.ToLower(name)]; ok {
			c := color.New(attr)
			c.EnableColor()
			painters[level] = c
		}
	}
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		text := level.CapitalString()
		if c, ok := painters[level]; ok {
			text = c.Sprint(text)
		}
		enc.AppendString(text)
	}
}

// GetLogger returns the installed logger, or a development logger named
// "fallback" when nothing has been installed yet.
func GetLogger() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Logger used before initialization; using fallback.")
	return l.Named("fallback")
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	l := current.Load()
	if l == nil {
		return
	}
	if err := l.Sync(); err != nil && !terminalSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// terminalSyncError reports the errors fsync returns for ttys and pipes.
func terminalSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTTY) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EBADF)
}
