// Package logger はslogのJSON構造化ロガーを設定する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// debugがtrueの場合はDebugレベル以上、それ以外はInfoレベル以上を出力する。
func Setup(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, debug bool) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, debug)
	slog.SetDefault(logger)
	return logger
}

// Fallback はイベントログの書き込みに失敗したときの出力先ロガーを返す。
// 通常のログと混ざらないようstderrに出力する。
func Fallback(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return Setup(w, false).With(slog.String("channel", "event_log_fallback"))
}
