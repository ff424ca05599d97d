package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/shelterlink/internal/backend"
	"github.com/hitoshi/shelterlink/internal/facade"
	"github.com/hitoshi/shelterlink/internal/middleware"
	"github.com/hitoshi/shelterlink/internal/model"
	"github.com/hitoshi/shelterlink/internal/session"
)

// --- モック定義 ---

// fakeBackend はfacade.Backendのモック実装。
// 関数フィールドが未設定の場合は保持している一覧を返す。
type fakeBackend struct {
	mu      sync.Mutex
	items   []model.Item
	matches []model.Match
	calls   []string

	createFn        func(kind model.ItemKind, ownerID string, in model.ItemInput) (*backend.ItemResult, error)
	updateFn        func(kind model.ItemKind, ownerID, itemID string, in model.ItemInput) (*backend.ItemResult, error)
	deleteErr       error
	resolveFn       func(matchID, userID string) (model.MatchStatus, error)
	bestFn          func(kind model.ItemKind, itemID string) (*model.Match, error)
	updateProfileFn func(role model.Role, uid string, attrs map[string]string) (map[string]string, error)
}

func (b *fakeBackend) record(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, op)
}

func (b *fakeBackend) called(op string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c == op {
			return true
		}
	}
	return false
}

func (b *fakeBackend) ListItems(ctx context.Context, kind model.ItemKind, ownerID string) ([]model.Item, error) {
	b.record("ListItems")
	var out []model.Item
	for _, it := range b.items {
		if it.Kind == kind && it.OwnerID == ownerID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (b *fakeBackend) CreateItem(ctx context.Context, kind model.ItemKind, ownerID string, in model.ItemInput) (*backend.ItemResult, error) {
	b.record("CreateItem")
	if b.createFn != nil {
		return b.createFn(kind, ownerID, in)
	}
	return nil, errors.New("not implemented")
}

func (b *fakeBackend) UpdateItem(ctx context.Context, kind model.ItemKind, ownerID, itemID string, in model.ItemInput) (*backend.ItemResult, error) {
	b.record("UpdateItem")
	if b.updateFn != nil {
		return b.updateFn(kind, ownerID, itemID, in)
	}
	return nil, errors.New("not implemented")
}

func (b *fakeBackend) DeleteItem(ctx context.Context, kind model.ItemKind, ownerID, itemID string) error {
	b.record("DeleteItem")
	return b.deleteErr
}

func (b *fakeBackend) ListMatches(ctx context.Context, userID string, role model.Role) ([]model.Match, error) {
	b.record("ListMatches")
	return append([]model.Match(nil), b.matches...), nil
}

func (b *fakeBackend) ResolveMatch(ctx context.Context, matchID, userID string) (model.MatchStatus, error) {
	b.record("ResolveMatch")
	if b.resolveFn != nil {
		return b.resolveFn(matchID, userID)
	}
	return "", errors.New("not implemented")
}

func (b *fakeBackend) BestMatch(ctx context.Context, kind model.ItemKind, itemID string) (*model.Match, error) {
	b.record("BestMatch")
	if b.bestFn != nil {
		return b.bestFn(kind, itemID)
	}
	return nil, nil
}

func (b *fakeBackend) UpdateProfile(ctx context.Context, role model.Role, uid string, attrs map[string]string) (map[string]string, error) {
	b.record("UpdateProfile")
	if b.updateProfileFn != nil {
		return b.updateProfileFn(role, uid, attrs)
	}
	return attrs, nil
}

func (b *fakeBackend) DeleteProfile(ctx context.Context, role model.Role, uid string) error {
	b.record("DeleteProfile")
	return nil
}

// fixedResolver は常に同じ役割のプロフィールを返す。errが設定されていればそれを返す。
type fixedResolver struct {
	role model.Role
	err  error
}

func (r fixedResolver) Resolve(ctx context.Context, uid string) (*model.Profile, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &model.Profile{UID: uid, Role: r.role, Attributes: map[string]string{"username": "テストユーザー"}}, nil
}

type noopIdentity struct{}

func (noopIdentity) DeleteUser(ctx context.Context, uid string) error { return nil }

// --- テストヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newFacade はInit済みのFacadeを生成する。
func newFacade(t *testing.T, b *fakeBackend, resolver fixedResolver, uid string) *facade.Facade {
	t.Helper()
	f := facade.New(facade.Deps{
		Backend:  b,
		Resolver: resolver,
		Identity: noopIdentity{},
		Logger:   discardLogger(),
	})
	f.Init(context.Background(), model.Identity{UID: uid, Email: uid + "@example.com"})
	return f
}

func newEntry(f *facade.Facade, uid string) *session.Entry {
	return &session.Entry{
		Session: model.Session{ID: "sess-" + uid, UserID: uid, Email: uid + "@example.com"},
		Facade:  f,
	}
}

// newRequest はEntryとURLパラメータを注入したリクエストを生成する。
func newRequest(method, target string, body any, entry *session.Entry, params map[string]string) *http.Request {
	var reader io.Reader
	if body != nil {
		switch v := body.(type) {
		case string:
			reader = bytes.NewBufferString(v)
		default:
			data, _ := json.Marshal(v)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	ctx := req.Context()
	if entry != nil {
		ctx = middleware.ContextWithEntry(ctx, entry)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (body=%s)", err, rec.Body.String())
	}
	return v
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) middleware.ErrorResponseBody {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("ステータスコード = %d, want %d (body=%s)", rec.Code, wantStatus, rec.Body.String())
	}
	body := decodeBody[middleware.ErrorResponseBody](t, rec)
	if body.Code != wantCode {
		t.Errorf("エラーコード = %q, want %q", body.Code, wantCode)
	}
	return body
}

// donorFixture は寄付者1名の寄付2件とマッチ2件を持つバックエンドを返す。
func donorFixture() *fakeBackend {
	return &fakeBackend{
		items: []model.Item{
			{ID: "d1", Kind: model.ItemKindDonation, OwnerID: "donor-1", ItemName: "Rice", Quantity: 10, Category: "Food"},
			{ID: "d2", Kind: model.ItemKindDonation, OwnerID: "donor-1", ItemName: "Blanket", Quantity: 3, Category: "Bedding"},
		},
		matches: []model.Match{
			{ID: "m1", DonorID: "donor-1", DonationID: "d1", ShelterID: "shelter-1", RequestID: "r1", ItemName: "Rice", Quantity: 10, Category: "Food", Status: model.MatchStatusPending},
			{ID: "m2", DonorID: "donor-1", DonationID: "d2", ShelterID: "shelter-2", RequestID: "r2", ItemName: "Blanket", Quantity: 3, Category: "Bedding", Status: model.MatchStatusDonor},
		},
	}
}
