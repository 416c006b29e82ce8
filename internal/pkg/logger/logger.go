package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 创建默认的 slog 日志记录器。
//
// 日志输出到 stderr，级别由配置字符串控制（debug / info / warn / error），
// 无法识别的级别回退到 info。
func NewDefault(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
