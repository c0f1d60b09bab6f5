package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/loom/internal/config"
)

// Logger appends structured lines to .loom/logs/loom.log so users can inspect
// a run after the TUI or CLI session ends.
type Logger struct {
	zl *zap.SugaredLogger
}

// New creates (or reuses) the log file for the current project directory.
func New(projectDir string) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.LoomDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "loom.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(f)),
		zapcore.InfoLevel,
	)
	return &Logger{zl: zap.New(core).Sugar()}, nil
}

// Nop returns a logger that discards everything. Used by tests and by
// components constructed without a project directory.
func Nop() *Logger {
	return &Logger{zl: zap.NewNop().Sugar()}
}

// Close flushes buffered entries and releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.zl == nil {
		return nil
	}
	return l.zl.Sync()
}

// Printf writes a single formatted line at info level.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.zl == nil {
		return
	}
	l.zl.Infof(format, args...)
}

// Warnf writes a single formatted line at warn level.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || l.zl == nil {
		return
	}
	l.zl.Warnf(format, args...)
}

// Errorf writes a single formatted line at error level.
func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.zl == nil {
		return
	}
	l.zl.Errorf(format, args...)
}

// With returns a logger that attaches the given key/value pairs to every line.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.zl == nil {
		return l
	}
	return &Logger{zl: l.zl.With(args...)}
}
