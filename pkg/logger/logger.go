package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type ctxKey struct{}

// Init configures the process logger. Development environments get the
// console writer, everything else writes JSON lines tagged with service.
func Init(service, env, logLevel string) {
	InitWithWriter(service, env, logLevel, nil)
}

// InitWithWriter is Init with an explicit sink. A nil out means stdout.
func InitWithWriter(service, env, logLevel string, out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	if out == nil {
		out = os.Stdout
		if isDevelopment(env) {
			out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(logLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if logLevel == "warning" {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx := zerolog.New(out).With().Timestamp().Caller()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	log = ctx.Logger()
}

func isDevelopment(env string) bool {
	switch env {
	case "", "dev", "development", "local":
		return true
	}
	return false
}

// Get returns the process logger.
func Get() *zerolog.Logger {
	return &log
}

// WithContext returns the request-scoped logger, falling back to the process logger.
func WithContext(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
		return l
	}
	return &log
}

func NewContext(ctx context.Context, l *zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func WithRequestID(requestID string) zerolog.Logger {
	return log.With().Str("request_id", requestID).Logger()
}

func WithUserID(l zerolog.Logger, userID string) zerolog.Logger {
	return l.With().Str("user_id", userID).Logger()
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }

// DBQuery logs a finished statement at debug level.
func DBQuery(ctx context.Context, sql string, duration time.Duration, err error) {
	event := WithContext(ctx).Debug().
		Str("query", compactSQL(sql)).
		Dur("duration_ms", duration)
	if err != nil {
		event.Err(err).Msg("DB query failed")
		return
	}
	event.Msg("DB query")
}

// compactSQL folds whitespace so multi-line statements stay on one log line.
func compactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

// ServiceStart logs startup. addr may be empty for workers.
func ServiceStart(version, addr string) {
	event := log.Info().Str("version", version)
	if addr != "" {
		event = event.Str("addr", addr)
	}
	event.Msg("Service started")
}

func ServiceStop() {
	log.Info().Msg("Service stopped")
}
