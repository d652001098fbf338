package model

import (
	"fmt"
	"time"
)

// LogStream はイベントログのストリーム種別を表す。
type LogStream string

const (
	// LogStreamAuth は認証イベントのストリーム。
	LogStreamAuth LogStream = "auth"
	// LogStreamActions はユーザー操作イベントのストリーム。
	LogStreamActions LogStream = "actions"
	// LogStreamErrors はエラーイベントのストリーム。
	LogStreamErrors LogStream = "errors"
)

// LogStreams は有効なストリームの一覧。
var LogStreams = []LogStream{LogStreamAuth, LogStreamActions, LogStreamErrors}

// ParseLogStream は文字列をLogStreamに変換する。
// auth, actions, errors 以外はエラーを返す。
func ParseLogStream(s string) (LogStream, error) {
	switch LogStream(s) {
	case LogStreamAuth, LogStreamActions, LogStreamErrors:
		return LogStream(s), nil
	default:
		return "", fmt.Errorf("unknown log stream: %q", s)
	}
}

// AuthEvent は認証ストリームの1エントリ。
// 匿名のエントリではuser_idとusernameをnullで書き出す。
type AuthEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	UserID    *string        `json:"user_id"`
	Username  *string        `json:"username"`
	Details   map[string]any `json:"details"`
}

// ActionEvent はユーザー操作ストリームの1エントリ。
type ActionEvent struct {
	Timestamp     time.Time      `json:"timestamp"`
	ActionType    string         `json:"action_type"`
	UserID        *string        `json:"user_id"`
	Username      *string        `json:"username"`
	ActionDetails map[string]any `json:"action_details"`
	IPAddress     string         `json:"ip_address"`
}

// ErrorEvent はエラーストリームの1エントリ。
type ErrorEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	UserID       *string        `json:"user_id"`
	Details      map[string]any `json:"details"`
	IPAddress    string         `json:"ip_address"`
}
