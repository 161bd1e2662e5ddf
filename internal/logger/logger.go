// Package logger 构造 slog.Logger，并在 context 中传递带 run_id 的 logger。
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	FormatText = "text"
	FormatJSON = "json"

	AttrRunID = "run_id"
)

// Config 对应配置里的 log.level / log.format。
type Config struct {
	Level  string // debug/info/warn/error，其他值按 info
	Format string // text/json，其他值按 text
}

func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) IsJSON() bool {
	return strings.EqualFold(strings.TrimSpace(c.Format), FormatJSON)
}

// New 构造写到 w 的 logger。日志只写 stderr，stdout 留给报告。
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.IsJSON() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard 返回丢弃所有输出的 logger（测试与未配置时使用）。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func NewRunID() string { return uuid.NewString() }

type ctxKey struct{}

// WithLogger 把 l 放进 ctx。
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext 取出 ctx 中的 logger；没有时返回 Discard()。
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Discard()
}

// WithRunID 给 ctx 中的 logger 附加 run_id，并返回新 ctx。
func WithRunID(ctx context.Context, runID string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(AttrRunID, runID))
}
