package arcllm

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
)

// SlogLogger adapts *slog.Logger to Logger. CRITICAL maps to a custom
// slog level one step above Error, since slog has no native equivalent.
type SlogLogger struct {
	L *slog.Logger
}

const slogLevelCritical = slog.Level(12) // one step above slog.LevelError (8)

func (s SlogLogger) fields(fields []Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

func (s SlogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.L.DebugContext(ctx, msg, s.fields(fields)...)
}
func (s SlogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.L.InfoContext(ctx, msg, s.fields(fields)...)
}
func (s SlogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.L.WarnContext(ctx, msg, s.fields(fields)...)
}
func (s SlogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.L.ErrorContext(ctx, msg, s.fields(fields)...)
}
func (s SlogLogger) Critical(ctx context.Context, msg string, fields ...Field) {
	s.L.Log(ctx, slogLevelCritical, msg, s.fields(fields)...)
}

// ZapLogger adapts *zap.SugaredLogger to Logger. Offered alongside
// SlogLogger so callers pick whichever backend their service already
// runs.
type ZapLogger struct {
	L *zap.SugaredLogger
}

func (z ZapLogger) fields(fields []Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

func (z ZapLogger) Debug(_ context.Context, msg string, fields ...Field) {
	z.L.Debugw(msg, z.fields(fields)...)
}
func (z ZapLogger) Info(_ context.Context, msg string, fields ...Field) {
	z.L.Infow(msg, z.fields(fields)...)
}
func (z ZapLogger) Warn(_ context.Context, msg string, fields ...Field) {
	z.L.Warnw(msg, z.fields(fields)...)
}
func (z ZapLogger) Error(_ context.Context, msg string, fields ...Field) {
	z.L.Errorw(msg, z.fields(fields)...)
}
func (z ZapLogger) Critical(_ context.Context, msg string, fields ...Field) {
	z.L.Errorw(msg, append(z.fields(fields), "level", "critical")...)
}
