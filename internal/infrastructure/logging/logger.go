package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/indihub/internal/infrastructure/config"
)

const serviceName = "indihub"

// Level names accepted in logging.level, lowest first. "trace" logs at
// debug and adds source locations to every record.
const (
	LevelTrace = "trace"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Logger is a slog.Logger carrying the service and version attributes. It
// satisfies the Logger interfaces of the broker, control, transport and
// process packages.
type Logger struct {
	*slog.Logger
}

// New builds a Logger for cfg, writing to stdout unless cfg.Output is
// "stderr".
func New(cfg config.LoggingConfig, version string) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(out, cfg, version)
}

// NewWithWriter builds a Logger writing to w. JSON is the default format;
// "text" selects logfmt-style output for terminals.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: strings.EqualFold(cfg.Level, LevelTrace),
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	}))}
}

// parseLevel maps a level name onto slog. Unknown names mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case LevelTrace, LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Verbosity applies the -v count from the command line: -v selects debug,
// -vv and beyond select trace. With no -v the configured level stands.
func Verbosity(level string, count int) string {
	switch {
	case count >= 2:
		return LevelTrace
	case count == 1:
		return LevelDebug
	default:
		return level
	}
}

// With returns a child Logger with extra attributes.
//
//	brokerLog := logger.With("component", "broker")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used before the config file is read: JSON on
// stderr at info.
func Default() *Logger {
	return New(config.LoggingConfig{Level: LevelInfo, Format: "json", Output: "stderr"}, "dev")
}
