package model

import (
	"errors"
	"fmt"
)

// ErrDuplicateProviderID はprovider_idの一意制約違反を表す。
// 同一identityの同時初回ログインで作成が競合した場合に各ストアが返す。
var ErrDuplicateProviderID = errors.New("user with the same provider id already exists")

// APIError はJSONエラーレスポンスに変換されるエラーを表す。
type APIError struct {
	Code    string // エラーコード（401では空）
	Message string // クライアント向けメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeOriginNotAllowed = "ORIGIN_NOT_ALLOWED"
	ErrCodeLogoutFailed     = "LOGOUT_FAILED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
// レスポンスボディは {"message":"Unauthorized"} のみとなる。
func NewUnauthorizedError() *APIError {
	return &APIError{Message: "Unauthorized"}
}

// NewOriginNotAllowedError は許可リスト外のオリジンからのリクエストに対するエラーを生成する。
func NewOriginNotAllowedError() *APIError {
	return &APIError{
		Code:    ErrCodeOriginNotAllowed,
		Message: "Origin not allowed",
	}
}

// NewLogoutFailedError はセッション破棄に失敗した場合のエラーを生成する。
func NewLogoutFailedError() *APIError {
	return &APIError{
		Code:    ErrCodeLogoutFailed,
		Message: "Logout could not be completed. Please try again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "Internal server error",
	}
}
