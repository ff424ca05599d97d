package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/shelterlink/internal/model"
	"github.com/hitoshi/shelterlink/internal/session"
)

// --- モック定義 ---

type mockSessionResolver struct {
	getFn func(ctx context.Context, id string) (*session.Entry, error)
	calls []string
}

func (m *mockSessionResolver) Get(ctx context.Context, id string) (*session.Entry, error) {
	m.calls = append(m.calls, id)
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, session.ErrSessionNotFound
}

func entryFor(id, userID string) *session.Entry {
	return &session.Entry{Session: model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
}

func resolverWith(id, userID string) *mockSessionResolver {
	return &mockSessionResolver{getFn: func(ctx context.Context, got string) (*session.Entry, error) {
		if got == id {
			return entryFor(id, userID), nil
		}
		return nil, session.ErrSessionNotFound
	}}
}

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsEntry(t *testing.T) {
	mw := NewSessionMiddleware(resolverWith("valid-session-id", "user-123"))

	var gotUserID, gotEntryUser string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		entry, err := EntryFromContext(r.Context())
		if err != nil {
			t.Errorf("EntryFromContext がエラーを返した: %v", err)
			return
		}
		gotEntryUser = entry.Session.UserID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotUserID != "user-123" || gotEntryUser != "user-123" {
		t.Errorf("userID = %q, entry user = %q, want user-123", gotUserID, gotEntryUser)
	}
}

func TestSessionMiddleware_Unauthorized(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"Cookieなし", nil},
		{"空のCookie", &http.Cookie{Name: SessionCookieName, Value: ""}},
		{"不明なセッション", &http.Cookie{Name: SessionCookieName, Value: "expired-session"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewSessionMiddleware(resolverWith("valid", "user-1"))
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestSessionMiddleware_ResolverError_Returns500(t *testing.T) {
	resolver := &mockSessionResolver{getFn: func(ctx context.Context, id string) (*session.Entry, error) {
		return nil, errors.New("connection refused")
	}}
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "some-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestEntryFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := EntryFromContext(context.Background()); err == nil {
		t.Error("expected error for missing entry in context")
	}
}

func TestUserIDFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for missing user ID in context")
	}
}

func TestContextWithEntry_SetsUserID(t *testing.T) {
	ctx := ContextWithEntry(context.Background(), entryFor("s1", "user-456"))
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-456" {
		t.Errorf("userID = %q, want %q", userID, "user-456")
	}
}
