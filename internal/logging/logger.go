// Package logging builds the zap logger used by every cuecam component.
//
// The TUI owns the terminal, so records go to a size-rotated file rather than
// stdout or stderr.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fakeyudi/cuecam/internal/config"
)

// FileName is the log file created inside the log directory.
const FileName = "cuecam.log"

// Options configure New.
type Options struct {
	Level  string // debug | info | warn | error; anything else is info
	Format string // json | console
	// Path is the log file. Empty writes to stderr.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a logger from opts. Caller information is only attached at
// debug level.
func New(opts Options) (*zap.Logger, error) {
	level := parseLevel(opts.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if strings.EqualFold(opts.Format, "console") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if opts.Path == "" {
		sink = zapcore.Lock(os.Stderr)
	} else {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
		})
	}

	core := zapcore.NewCore(enc, sink, level)
	var zopts []zap.Option
	if level.Enabled(zapcore.DebugLevel) {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(core, zopts...), nil
}

// NewFromConfig writes JSON records to <log_dir>/cuecam.log. An empty
// log_dir falls back to defaultDir.
func NewFromConfig(cfg *config.Config, defaultDir string) (*zap.Logger, error) {
	dir := cfg.LogDir
	if dir == "" {
		dir = defaultDir
	}
	return New(Options{
		Level:  cfg.LogLevel,
		Format: "json",
		Path:   filepath.Join(dir, FileName),
	})
}

func parseLevel(s string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil || s == "" {
		return zapcore.InfoLevel
	}
	return l
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
