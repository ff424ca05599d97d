// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/shelterlink/internal/auth"
	"github.com/hitoshi/shelterlink/internal/middleware"
	"github.com/hitoshi/shelterlink/internal/model"
	"github.com/hitoshi/shelterlink/internal/session"
)

// Registrar はユーザー登録を行うインターフェース。
// auth.RegistrationService が実装する。
type Registrar interface {
	Register(ctx context.Context, p auth.RegisterParams) (model.Identity, error)
}

// SessionService はセッションの作成と破棄を行うインターフェース。
// session.Manager が実装する。
type SessionService interface {
	Create(ctx context.Context, idToken string) (*session.Entry, error)
	Destroy(ctx context.Context, sessionID string) error
	DeleteAccount(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は登録・サインイン・サインアウトのHTTPハンドラー。
type AuthHandler struct {
	registrar Registrar
	sessions  SessionService
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(registrar Registrar, sessions SessionService, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		registrar: registrar,
		sessions:  sessions,
		config:    config,
	}
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Name            string `json:"name"`
	PhoneNumber     string `json:"phone_number"`
	UserType        string `json:"user_type"`
	ShelterName     string `json:"shelter_name"`
}

type registerResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

type createSessionRequest struct {
	IDToken string `json:"id_token"`
}

// Register は認証ユーザーとバックエンドのプロフィールを作成する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.registrar.Register(r.Context(), auth.RegisterParams{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Name:            req.Name,
		PhoneNumber:     req.PhoneNumber,
		Role:            model.Role(strings.ToLower(strings.TrimSpace(req.UserType))),
		ShelterName:     req.ShelterName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{UID: id.UID, Email: id.Email})
}

// CreateSession はIDトークンでサインインし、セッションCookieを設定する。
// プロフィール解決に失敗した場合もセッションは作成され、failed状態のスナップショットを返す。
// POST /auth/session
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("id_token is required"))
		return
	}

	entry, err := h.sessions.Create(r.Context(), req.IDToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, entry.Session.ID, h.config.SessionMaxAge)
	writeJSON(w, http.StatusCreated, toSessionResponse(entry.Facade.Snapshot()))
}

// Logout はサインアウトしてキャッシュとセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if destroyErr := h.sessions.Destroy(r.Context(), cookie.Value); destroyErr != nil {
			// 破棄に失敗してもCookieはクリアする
			slog.Error("セッションの破棄に失敗しました", slog.String("error", destroyErr.Error()))
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	h.setSessionCookie(w, "", -1)
}
