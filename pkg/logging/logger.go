// Package logging 结构化日志
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	TaskIDKey    ContextKey = "task_id"
	SessionIDKey ContextKey = "session_id"
	SiteKey      ContextKey = "site"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level"`
	Format    string `json:"format"` // json or text
	Output    string `json:"output"` // stdout, stderr, or file path
	Component string `json:"component"`
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		Logger:    slog.New(handler),
		component: cfg.Component,
	}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stdout",
		Component: component,
	})
}

// WithContext 从上下文提取追踪信息
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := []any{slog.String("component", l.component)}

	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if taskID, ok := ctx.Value(TaskIDKey).(string); ok && taskID != "" {
		attrs = append(attrs, slog.String("task_id", taskID))
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}
	if site, ok := ctx.Value(SiteKey).(string); ok && site != "" {
		attrs = append(attrs, slog.String("site", site))
	}

	return &Logger{
		Logger:    l.Logger.With(attrs...),
		component: l.component,
	}
}

// WithTaskID 添加 Task ID
func (l *Logger) WithTaskID(taskID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("task_id", taskID)),
		component: l.component,
	}
}

// WithSessionID 添加认证会话 ID
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("session_id", sessionID)),
		component: l.component,
	}
}

// WithSite 添加目标站点
func (l *Logger) WithSite(site string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("site", site)),
		component: l.component,
	}
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		Logger:    l.Logger.With(slog.String("error", err.Error())),
		component: l.component,
	}
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.Float64("duration_ms", float64(d.Milliseconds()))),
		component: l.component,
	}
}

// HTTPRequestLog HTTP 请求日志
func (l *Logger) HTTPRequestLog(method, path string, status int, duration time.Duration, clientIP string) {
	l.Logger.Info("HTTP request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
		slog.String("client_ip", clientIP),
	)
}

// TaskTransitionLog 任务状态流转日志
func (l *Logger) TaskTransitionLog(taskID, from, to string, extra ...any) {
	attrs := []any{
		slog.String("task_id", taskID),
		slog.String("from", from),
		slog.String("to", to),
	}
	attrs = append(attrs, extra...)
	l.Logger.Info("Task transition", attrs...)
}

// SweepLog 会话清扫日志
func (l *Logger) SweepLog(removed int, remaining int) {
	if removed == 0 {
		return
	}
	l.Logger.Debug("Session sweep",
		slog.Int("removed", removed),
		slog.Int("remaining", remaining),
	)
}

// ============================================================================
// 个人信息脱敏
// ============================================================================
//
// 认证请求里携带的姓名/生日/手机号绝不允许进入日志。
// 任何需要在日志里提及这类字段的地方必须先过下面的脱敏函数。

// RedactPhone 脱敏手机号，只保留后 4 位
func RedactPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// RedactName 脱敏姓名，只保留首字符
func RedactName(name string) string {
	r := []rune(name)
	if len(r) == 0 {
		return ""
	}
	return string(r[0]) + strings.Repeat("*", len(r)-1)
}

// RedactBirthDate 生日完全脱敏
func RedactBirthDate(string) string {
	return "********"
}
