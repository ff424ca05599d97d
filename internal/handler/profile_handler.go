package handler

import (
	"net/http"

	"github.com/hitoshi/shelterlink/internal/middleware"
	"github.com/hitoshi/shelterlink/internal/model"
)

// ProfileHandler はログイン中ユーザーのプロフィールとセッション状態を扱う。
type ProfileHandler struct {
	auth *AuthHandler
}

// NewProfileHandler はProfileHandlerを生成する。
// アカウント削除時のCookie操作にAuthHandlerの設定を使う。
func NewProfileHandler(auth *AuthHandler) *ProfileHandler {
	return &ProfileHandler{auth: auth}
}

type updateProfileRequest struct {
	Attributes map[string]string `json:"attributes"`
}

// Me はプロフィールとFacadeの状態を含むスナップショットを返す。
// GET /api/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(f.Snapshot()))
}

// UpdateProfile はプロフィール属性を更新する。役割は変更できない。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := f.UpdateProfile(r.Context(), req.Attributes)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// DeleteAccount はアカウントを削除し、同一ユーザーの全セッションを破棄する。
// DELETE /api/profile
func (h *ProfileHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	entry, err := middleware.EntryFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.auth.sessions.DeleteAccount(r.Context(), entry.Session.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.auth.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
