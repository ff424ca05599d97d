package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shelterlink/internal/backend"
	"github.com/hitoshi/shelterlink/internal/cache"
	"github.com/hitoshi/shelterlink/internal/facade"
	"github.com/hitoshi/shelterlink/internal/middleware"
	"github.com/hitoshi/shelterlink/internal/model"
	"github.com/hitoshi/shelterlink/internal/profile"
	"github.com/hitoshi/shelterlink/internal/session"
)

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層のエラーをHTTPステータスと統一エラーフォーマットに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var remoteErr *backend.RemoteError
	if errors.As(err, &remoteErr) {
		writeAPIErrorResponse(w, mapRemoteStatus(remoteErr.StatusCode), model.NewRemoteError(remoteErr.Detail))
		return
	}

	switch {
	case errors.Is(err, facade.ErrNotReady):
		apiErr := model.NewSessionNotReadyError("")
		apiErr.Message = err.Error()
		writeAPIErrorResponse(w, http.StatusConflict, apiErr)
	case errors.Is(err, facade.ErrSessionEnded), errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrInvalidToken):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	case profile.IsNotFound(err):
		writeAPIErrorResponse(w, http.StatusConflict, model.NewProfileNotFoundError())
	case errors.Is(err, model.ErrRoleChanged):
		writeAPIErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:     model.ErrCodeRoleChanged,
			Message:  err.Error(),
			Category: "consistency",
			Action:   "ログアウトして再度ログインしてください。",
		})
	case errors.Is(err, model.ErrInvalidTransition):
		writeAPIErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:     model.ErrCodeInvalidTransition,
			Message:  err.Error(),
			Category: "consistency",
			Action:   "マッチ一覧を再読み込みしてください。",
		})
	case errors.Is(err, cache.ErrItemNotFound):
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeItemNotFound,
			Message:  err.Error(),
			Category: "validation",
			Action:   "一覧を再読み込みしてください。",
		})
	case errors.Is(err, cache.ErrMatchNotFound), errors.Is(err, cache.ErrNotParticipant):
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeMatchNotFound,
			Message:  err.Error(),
			Category: "validation",
			Action:   "一覧を再読み込みしてください。",
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeAPIErrorResponse(w, http.StatusGatewayTimeout, model.NewRemoteError("The server did not respond in time."))
	default:
		slog.Error("内部エラーが発生しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidCategory,
		model.ErrCodePasswordMismatch, model.ErrCodePasswordTooShort:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeItemNotFound, model.ErrCodeMatchNotFound:
		return http.StatusNotFound
	case model.ErrCodeProfileNotFound, model.ErrCodeRoleChanged,
		model.ErrCodeSessionNotReady, model.ErrCodeInvalidTransition:
		return http.StatusConflict
	case model.ErrCodeRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// mapRemoteStatus はバックエンドのステータスコードをBFFのステータスコードに変換する。
// 入力起因の4xxはそのまま返し、それ以外は502とする。
func mapRemoteStatus(status int) int {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return status
	default:
		return http.StatusBadGateway
	}
}
