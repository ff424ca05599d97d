package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, consistency, remote, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeInvalidCategory   = "INVALID_CATEGORY"
	ErrCodePasswordMismatch  = "PASSWORD_MISMATCH"
	ErrCodePasswordTooShort  = "PASSWORD_TOO_SHORT"
	ErrCodeProfileNotFound   = "PROFILE_NOT_FOUND"
	ErrCodeRoleChanged       = "ROLE_CHANGED"
	ErrCodeSessionNotReady   = "SESSION_NOT_READY"
	ErrCodeItemNotFound      = "ITEM_NOT_FOUND"
	ErrCodeMatchNotFound     = "MATCH_NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeRemote            = "REMOTE_FAILURE"
)

// ErrProfileNotFound は再試行を使い切ってもプロフィールが見つからないことを表す。
// 登録時のバックエンド書き込みが完了しなかったことを意味する。
var ErrProfileNotFound = errors.New("profile not found")

// ErrRoleChanged は解決済みのRoleと異なるRoleがバックエンドから返されたことを表す。
var ErrRoleChanged = errors.New("profile role changed during session")

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCategoryError は未知のカテゴリが指定された場合のエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("unknown category: %q", category),
		Category: "validation",
		Action:   "カテゴリ一覧から選択してください。",
	}
}

// NewPasswordMismatchError はパスワード確認が一致しない場合のエラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "Passwords don't match",
		Category: "validation",
		Action:   "同じパスワードを2回入力してください。",
	}
}

// NewPasswordTooShortError はパスワードが短すぎる場合のエラーを生成する。
func NewPasswordTooShortError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodePasswordTooShort,
		Message:  fmt.Sprintf("Password must be at least %d characters", minLength),
		Category: "validation",
		Action:   "より長いパスワードを指定してください。",
	}
}

// NewProfileNotFoundError はプロフィール解決に失敗した場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Your profile could not be loaded. Please log out and back in.",
		Category: "consistency",
		Action:   "ログアウトして再度ログインしてください。",
	}
}

// NewSessionNotReadyError はキャッシュの読み込みが完了していない場合のエラーを生成する。
func NewSessionNotReadyError(state string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotReady,
		Message:  fmt.Sprintf("session is not ready (state: %s)", state),
		Category: "consistency",
		Action:   "読み込みが完了するまで待つか、ログインし直してください。",
	}
}

// NewItemNotFoundError はアイテムがキャッシュに存在しない場合のエラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("item not found: %s", itemID),
		Category: "validation",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewMatchNotFoundError はマッチがキャッシュに存在しない場合のエラーを生成する。
func NewMatchNotFoundError(matchID string) *APIError {
	return &APIError{
		Code:     ErrCodeMatchNotFound,
		Message:  fmt.Sprintf("match not found: %s", matchID),
		Category: "validation",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "authentication required",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewRemoteError はバックエンドのエラーメッセージをそのまま伝えるエラーを生成する。
func NewRemoteError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeRemote,
		Message:  detail,
		Category: "remote",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
