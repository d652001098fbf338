package model

// リダイレクトのerrorクエリに載せるエラーコード
const (
	ErrCodeOAuthFailed = "oauth_failed"
	ErrCodeTokenFailed = "token_failed"
	ErrCodeMissingCode = "missing_code"
)

// エラーイベントの種別
const (
	ErrorTypeLoadUsers         = "LOAD_USERS"
	ErrorTypeSaveUser          = "SAVE_USER"
	ErrorTypeJWTGeneration     = "JWT_GENERATION"
	ErrorTypeJWTExpired        = "JWT_EXPIRED"
	ErrorTypeJWTInvalid        = "JWT_INVALID"
	ErrorTypeTokenGenFailed    = "TOKEN_GENERATION_FAILED"
	ErrorTypeOAuthCallback     = "OAUTH_CALLBACK_ERROR"
	ErrorTypeAdminUnauthorized = "ADMIN_UNAUTHORIZED"
	ErrorTypeInvalidRequest    = "INVALID_REQUEST"
	ErrorTypeNotFound          = "NOT_FOUND"
	ErrorTypeInternal          = "INTERNAL_ERROR"
	ErrorTypeReadLogs          = "GET_LOGS_ERROR"
)

// 認証イベントと操作イベントの種別
const (
	AuthEventLoginSuccess = "LOGIN_SUCCESS"
	AuthEventLogout       = "LOGOUT"
	AuthEventCSRFWarning  = "CSRF_WARNING"
	AuthEventLoginDenied  = "LOGIN_DENIED"

	ActionOAuthLoginInitiated = "OAUTH_LOGIN_INITIATED"
	ActionUserLogin           = "USER_LOGIN"
	ActionUserLogout          = "USER_LOGOUT"
	ActionTokenValidated      = "TOKEN_VALIDATION_SUCCESS"
)
