package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, schedule, calendar, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidDate          = "INVALID_DATE"
	ErrCodeInvalidDuration      = "INVALID_DURATION"
	ErrCodeInvalidTimeFormat    = "INVALID_TIME_FORMAT"
	ErrCodeInvalidSchedule      = "INVALID_SCHEDULE"
	ErrCodeInvalidTimezone      = "INVALID_TIMEZONE"
	ErrCodeInvalidEventType     = "INVALID_EVENT_TYPE"
	ErrCodeEventTypeNotFound    = "EVENT_TYPE_NOT_FOUND"
	ErrCodeDuplicateEventType   = "DUPLICATE_EVENT_TYPE"
	ErrCodeCalendarNotConnected = "CALENDAR_NOT_CONNECTED"
	ErrCodeCalendarFetchFailed  = "CALENDAR_FETCH_FAILED"
	ErrCodeInvalidICSURL        = "INVALID_ICS_URL"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeOwnerRequired        = "OWNER_REQUIRED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeCSRFFailed           = "CSRF_VALIDATION_FAILED"
	ErrCodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewInvalidDateError は日付形式が不正な場合のエラーを生成する。
func NewInvalidDateError(date string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %q", date),
		Category: "validation",
		Action:   "日付は YYYY-MM-DD 形式で指定してください。",
	}
}

// NewInvalidDurationError は枠の長さが不正な場合のエラーを生成する。
func NewInvalidDurationError(minutes int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDuration,
		Message:  fmt.Sprintf("無効な所要時間です: %d分", minutes),
		Category: "validation",
		Action:   "所要時間は1分から1440分の範囲で指定してください。",
	}
}

// NewInvalidTimeFormatError は時刻文字列が解析できない場合のエラーを生成する。
func NewInvalidTimeFormatError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimeFormat,
		Message:  fmt.Sprintf("無効な時刻形式です: %q", value),
		Category: "validation",
		Action:   "時刻は HH:MM 形式で指定してください。",
	}
}

// NewInvalidScheduleError は週間スケジュールの検証に失敗した場合のエラーを生成する。
func NewInvalidScheduleError(day Weekday, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSchedule,
		Message:  fmt.Sprintf("%s の勤務時間が不正です: %s", day, reason),
		Category: "schedule",
		Action:   "開始時刻は終了時刻より前にし、時間帯が重ならないように設定してください。",
	}
}

// NewInvalidTimezoneError はタイムゾーン名が解決できない場合のエラーを生成する。
func NewInvalidTimezoneError(tz string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimezone,
		Message:  fmt.Sprintf("無効なタイムゾーンです: %q", tz),
		Category: "validation",
		Action:   "IANAタイムゾーン名（例: America/Bogota）を指定してください。",
	}
}

// NewInvalidEventTypeError はイベント種別の入力値が不正な場合のエラーを生成する。
func NewInvalidEventTypeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEventType,
		Message:  fmt.Sprintf("イベント種別の入力が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewEventTypeNotFoundError はイベント種別が見つからない場合のエラーを生成する。
func NewEventTypeNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeEventTypeNotFound,
		Message:  fmt.Sprintf("指定されたイベント種別が見つかりません: %s", id),
		Category: "schedule",
		Action:   "URLを確認してください。",
	}
}

// NewDuplicateEventTypeError は同じリンクのイベント種別が既に存在する場合のエラーを生成する。
func NewDuplicateEventTypeError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEventType,
		Message:  fmt.Sprintf("既に同じリンクのイベントが存在します: %s", slug),
		Category: "schedule",
		Action:   "別の名前を指定してください。",
	}
}

// NewCalendarNotConnectedError はカレンダー未連携のエラーを生成する。
func NewCalendarNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeCalendarNotConnected,
		Message:  "カレンダーが連携されていません。",
		Category: "calendar",
		Action:   "設定画面からGoogleカレンダーを連携してください。",
	}
}

// NewCalendarFetchFailedError は外部カレンダーから予定を取得できなかった場合のエラーを生成する。
func NewCalendarFetchFailedError(source string) *APIError {
	return &APIError{
		Code:     ErrCodeCalendarFetchFailed,
		Message:  fmt.Sprintf("カレンダーから予定を取得できませんでした: %s", source),
		Category: "calendar",
		Action:   "しばらく待ってから再度お試しください。解決しない場合はカレンダーを再連携してください。",
	}
}

// NewInvalidICSURLError はICSフィードのURLが受け付けられない場合のエラーを生成する。
func NewInvalidICSURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidICSURL,
		Message:  fmt.Sprintf("無効なカレンダーURLです: %s", reason),
		Category: "validation",
		Action:   "公開されている https:// のICSフィードURLを入力してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "URLを確認してください。",
	}
}

// NewOwnerRequiredError は公開アクセスで主催者IDが指定されていない場合のエラーを生成する。
func NewOwnerRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeOwnerRequired,
		Message:  "公開アクセスには主催者IDが必要です。",
		Category: "validation",
		Action:   "owner_uid を指定してください。",
	}
}

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthorizedError は未認証のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewCSRFFailedError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
