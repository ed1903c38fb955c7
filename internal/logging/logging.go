// Package logging 构建服务使用的 zerolog 日志器。
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Options 日志配置
type Options struct {
	Level   string // debug / info / warn / error
	Console bool   // 开发环境使用彩色控制台输出
	App     string
}

// New 创建根日志器，未知级别按 info 处理。
func New(opts Options) zerolog.Logger {
	return NewWithWriter(os.Stdout, opts)
}

// NewWithWriter 同 New，输出到 w。
func NewWithWriter(w io.Writer, opts Options) zerolog.Logger {
	out := w
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp()
	if opts.App != "" {
		ctx = ctx.Str("app", opts.App)
	}
	return ctx.Logger()
}

// ParseLevel 解析日志级别字符串。
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Component 返回带 component 字段的子日志器。
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
