package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/oauthrelay/internal/middleware"
	"github.com/hitoshi/oauthrelay/internal/model"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 10000
)

// UserLister はユーザー一覧を返す。読み込みに失敗しても空のマップを返す。
type UserLister interface {
	List(ctx context.Context) (map[string]*model.UserRecord, error)
}

// LogReader はイベントログの末尾を返す。
type LogReader interface {
	Tail(ctx context.Context, stream model.LogStream, limit int) ([]json.RawMessage, error)
}

// AdminHandler は管理者向けの参照APIを扱う。
// 認証は前段のAdminGateミドルウェアで行う。
type AdminHandler struct {
	users  UserLister
	logs   LogReader
	events middleware.ErrorLogger
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(users UserLister, logs LogReader, events middleware.ErrorLogger) *AdminHandler {
	return &AdminHandler{
		users:  users,
		logs:   logs,
		events: events,
	}
}

// UsersResponse はユーザー一覧のレスポンス。
type UsersResponse struct {
	TotalUsers int                          `json:"total_users"`
	Users      map[string]*model.UserRecord `json:"users"`
}

// ListUsers は全ユーザーを返す。
// GET /api/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		// 読み込み失敗は記録済み。空の一覧で応答する
		slog.Warn("serving empty user list", slog.String("error", err.Error()))
	}
	if users == nil {
		users = map[string]*model.UserRecord{}
	}

	middleware.WriteJSON(w, http.StatusOK, UsersResponse{
		TotalUsers: len(users),
		Users:      users,
	})
}

// LogsResponse はログ参照のレスポンス。
type LogsResponse struct {
	LogType   model.LogStream   `json:"log_type"`
	TotalLogs int               `json:"total_logs"`
	Logs      []json.RawMessage `json:"logs"`
}

// ListLogs は指定したストリームの末尾N件を書き込み順で返す。
// GET /api/logs?type=auth|actions|errors&limit=N
func (h *AdminHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	logType := q.Get("type")
	if logType == "" {
		logType = string(model.LogStreamAuth)
	}
	stream, err := model.ParseLogStream(logType)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid log type")
		return
	}

	limit, ok := parseLimit(q.Get("limit"))
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	logs, err := h.logs.Tail(r.Context(), stream, limit)
	if err != nil {
		if h.events != nil {
			h.events.LogError(r.Context(), model.ErrorTypeReadLogs, err, "", map[string]any{"log_type": logType}, middleware.ClientIP(r))
		}
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to read logs")
		return
	}
	if logs == nil {
		logs = []json.RawMessage{}
	}

	middleware.WriteJSON(w, http.StatusOK, LogsResponse{
		LogType:   stream,
		TotalLogs: len(logs),
		Logs:      logs,
	})
}

// parseLimit はlimitクエリを解釈する。未指定はデフォルト値、上限を超える値は上限に丸める。
func parseLimit(raw string) (int, bool) {
	if raw == "" {
		return defaultLogLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxLogLimit {
		n = maxLogLimit
	}
	return n, true
}
