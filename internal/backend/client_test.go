package backend

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
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/shelterlink/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	return NewClient(server.Client(), newTestLogger(&buf), server.URL+"/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type recordedCall struct {
	operation  string
	statusCode int
}

type recorderStub struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *recorderStub) RecordBackendCall(operation string, statusCode int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{operation: operation, statusCode: statusCode})
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	c := NewClient(nil, nil, "http://backend.example/")
	if c == nil {
		t.Fatal("NewClient は nil を返してはならない")
	}
	if c.baseURL != "http://backend.example" {
		t.Errorf("baseURL = %q, want 末尾スラッシュ無し", c.baseURL)
	}
}

func TestClient_RemoteErrorCarriesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Quantity must be positive"})
	})

	_, err := c.CreateItem(context.Background(), model.ItemKindDonation, "u1", model.ItemInput{
		ItemName: "Rice", Quantity: 1, Category: "Food",
	})
	if err == nil {
		t.Fatal("2xx以外のレスポンスではエラーを返すべき")
	}

	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("エラー型 = %T, want *RemoteError", err)
	}
	if re.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", re.StatusCode)
	}
	if err.Error() != "Quantity must be positive" {
		t.Errorf("Error() = %q, want バックエンドのdetailそのまま", err.Error())
	}
}

func TestClient_RemoteErrorWithoutDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	})

	err := c.DeleteItem(context.Background(), model.ItemKindDonation, "u1", "d1")
	if err == nil {
		t.Fatal("500ではエラーを返すべき")
	}
	if err.Error() != "backend returned status 500" {
		t.Errorf("Error() = %q", err.Error())
	}
	if IsNotFound(err) {
		t.Error("500はNotFoundではない")
	}
}

func TestClient_RecordsBackendCalls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"shelters": []any{}, "count": 0})
	})
	rec := &recorderStub{}
	c.SetRecorder(rec)

	if _, err := c.ListShelters(context.Background()); err != nil {
		t.Fatalf("ListShelters がエラーを返した: %v", err)
	}

	want := []recordedCall{{operation: "list_shelters", statusCode: http.StatusOK}}
	if diff := cmp.Diff(want, rec.calls, cmp.AllowUnexported(recordedCall{})); diff != "" {
		t.Errorf("記録された呼び出しが異なる (-want +got):\n%s", diff)
	}
}

func TestClient_GetUserInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/user_info/uid-1" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userType": "shelter",
			"userData": map[string]any{
				"shelter_name": "Harbor House",
				"latitude":     40.5,
				"address":      nil,
			},
		})
	})

	info, err := c.GetUserInfo(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("GetUserInfo がエラーを返した: %v", err)
	}
	if info.Role != model.RoleShelter {
		t.Errorf("Role = %s, want shelter", info.Role)
	}
	want := map[string]string{"shelter_name": "Harbor House", "latitude": "40.5"}
	if diff := cmp.Diff(want, info.Attributes); diff != "" {
		t.Errorf("属性が異なる (-want +got):\n%s", diff)
	}
}

func TestClient_GetUserInfo_ErrorFieldIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"error": "User not found"})
	})

	_, err := c.GetUserInfo(context.Background(), "uid-1")
	if !IsNotFound(err) {
		t.Errorf("errorフィールド付きの200はNotFoundとして扱うべき: %v", err)
	}
}

func TestClient_CreateItem_WithBestMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/forms/donation" {
			t.Errorf("リクエスト = %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["donor_id"] != "u1" {
			t.Errorf("donor_id = %v, want u1", body["donor_id"])
		}
		if _, ok := body["shelter_id"]; ok {
			t.Error("寄付にはshelter_idを含めてはならない")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 12, "donor_id": "u1", "item_name": "Rice", "quantity": 5, "category": "Food",
			"best_match": map[string]any{
				"donor_id": "u1", "donation_id": 12, "shelter_id": "s1", "request_id": 7,
				"item_name": "Rice", "quantity": 5, "category": "Food", "similarity": 0.91,
			},
		})
	})

	res, err := c.CreateItem(context.Background(), model.ItemKindDonation, "u1", model.ItemInput{
		ItemName: "Rice", Quantity: 5, Category: "Food",
	})
	if err != nil {
		t.Fatalf("CreateItem がエラーを返した: %v", err)
	}

	wantItem := model.Item{ID: "12", Kind: model.ItemKindDonation, OwnerID: "u1", ItemName: "Rice", Quantity: 5, Category: "Food"}
	if diff := cmp.Diff(wantItem, res.Item); diff != "" {
		t.Errorf("アイテムが異なる (-want +got):\n%s", diff)
	}
	if res.BestMatch == nil {
		t.Fatal("best_match が設定されるべき")
	}
	if res.BestMatch.ID != "12:7" {
		t.Errorf("BestMatch.ID = %q, want 12:7", res.BestMatch.ID)
	}
	if res.BestMatch.Status != model.MatchStatusPending {
		t.Errorf("BestMatch.Status = %s, want pending", res.BestMatch.Status)
	}
	if res.BestMatch.MatchedAt.IsZero() {
		t.Error("matched_at が無い場合は現在時刻を補うべき")
	}
}

func TestClient_UpdateItem_NoBestMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/forms/request/r1" {
			t.Errorf("リクエスト = %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "r1", "shelter_id": "s1", "item_name": "Blankets", "quantity": 3, "category": "Bedding",
			"best_match": nil,
		})
	})

	res, err := c.UpdateItem(context.Background(), model.ItemKindRequest, "s1", "r1", model.ItemInput{
		ItemName: "Blankets", Quantity: 3, Category: "Bedding",
	})
	if err != nil {
		t.Fatalf("UpdateItem がエラーを返した: %v", err)
	}
	if res.Item.OwnerID != "s1" {
		t.Errorf("OwnerID = %q, want s1", res.Item.OwnerID)
	}
	if res.BestMatch != nil {
		t.Errorf("best_match が null の場合は nil であるべき: %+v", res.BestMatch)
	}
}

func TestClient_DeleteItem_Path(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.DeleteItem(context.Background(), model.ItemKindDonation, "u1", "d9"); err != nil {
		t.Fatalf("DeleteItem がエラーを返した: %v", err)
	}
	if gotPath != "DELETE /forms/donation/d9/u1" {
		t.Errorf("リクエスト = %s", gotPath)
	}
}

func TestClient_ListItems_AcceptsArrayAndEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{
			name: "配列",
			body: []map[string]any{{"id": "d1", "donor_id": "u1", "item_name": "Rice", "quantity": 2, "category": "Food"}},
		},
		{
			name: "エンベロープ",
			body: map[string]any{"donations": []map[string]any{{"id": "d1", "donor_id": "u1", "item_name": "Rice", "quantity": 2, "category": "Food"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("user_id") != "u1" {
					t.Errorf("user_id = %q", r.URL.Query().Get("user_id"))
				}
				writeJSON(w, http.StatusOK, tt.body)
			})

			items, err := c.ListItems(context.Background(), model.ItemKindDonation, "u1")
			if err != nil {
				t.Fatalf("ListItems がエラーを返した: %v", err)
			}
			want := []model.Item{{ID: "d1", Kind: model.ItemKindDonation, OwnerID: "u1", ItemName: "Rice", Quantity: 2, Category: "Food"}}
			if diff := cmp.Diff(want, items); diff != "" {
				t.Errorf("アイテムが異なる (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClient_ListMatches(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/match/matches/s1/shelter" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"matches": []map[string]any{{
				"id": 3, "donor_id": "u1", "donation_id": "d1", "shelter_id": "s1", "request_id": "r1",
				"item_name": "Rice", "quantity": 2, "category": "Food",
				"matched_at": "2026-03-01T10:00:00", "status": "donor",
			}},
		})
	})

	matches, err := c.ListMatches(context.Background(), "s1", model.RoleShelter)
	if err != nil {
		t.Fatalf("ListMatches がエラーを返した: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("マッチ数 = %d, want 1", len(matches))
	}
	m := matches[0]
	if m.ID != "3" || m.Status != model.MatchStatusDonor {
		t.Errorf("マッチ = %+v", m)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !m.MatchedAt.Equal(want) {
		t.Errorf("MatchedAt = %v, want %v", m.MatchedAt, want)
	}
}

func TestClient_ListMatches_UnknownStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"matches": []map[string]any{{"id": "m1", "status": "archived"}},
		})
	})

	if _, err := c.ListMatches(context.Background(), "s1", model.RoleShelter); err == nil {
		t.Error("未知のstatusはエラーにすべき")
	}
}

func TestClient_ResolveMatch_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body any
		want model.MatchStatus
	}{
		{name: "JSON文字列", body: "shelter", want: model.MatchStatusShelter},
		{name: "オブジェクト", body: map[string]string{"status": "both"}, want: model.MatchStatusBoth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPut || r.URL.Path != "/match/resolve/m1/s1" {
					t.Errorf("リクエスト = %s %s", r.Method, r.URL.Path)
				}
				writeJSON(w, http.StatusOK, tt.body)
			})

			got, err := c.ResolveMatch(context.Background(), "m1", "s1")
			if err != nil {
				t.Fatalf("ResolveMatch がエラーを返した: %v", err)
			}
			if got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClient_BestMatch_None(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vector-match/request/r1/best-match" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{"best_match": nil})
	})

	m, err := c.BestMatch(context.Background(), model.ItemKindRequest, "r1")
	if err != nil {
		t.Fatalf("BestMatch がエラーを返した: %v", err)
	}
	if m != nil {
		t.Errorf("候補が無い場合は nil を返すべき: %+v", m)
	}
}

func TestClient_ListShelters_Coordinates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"shelters": []map[string]any{
				{"uid": "s1", "shelter_name": "Harbor House", "latitude": 40.7, "longitude": -74.0},
				{"uid": "s2", "shelter_name": "No Coords", "latitude": nil, "longitude": ""},
			},
			"count": 2,
		})
	})

	shelters, err := c.ListShelters(context.Background())
	if err != nil {
		t.Fatalf("ListShelters がエラーを返した: %v", err)
	}
	if len(shelters) != 2 {
		t.Fatalf("件数 = %d, want 2", len(shelters))
	}
	if shelters[0].Latitude == nil || *shelters[0].Latitude != 40.7 {
		t.Errorf("Latitude = %v, want 40.7", shelters[0].Latitude)
	}
	if shelters[1].Latitude != nil || shelters[1].Longitude != nil {
		t.Error("座標が無い施設は nil であるべき")
	}
}

func TestClient_Register_Body(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register/donor" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["userID"] != "uid-1" {
			t.Errorf("userID = %v", body["userID"])
		}
		if _, ok := body["shelter_name"]; ok {
			t.Error("寄付者の登録にshelter_nameを含めてはならない")
		}
		writeJSON(w, http.StatusCreated, map[string]string{"message": "ok"})
	})

	err := c.Register(context.Background(), model.RoleDonor, Registration{
		UserID: "uid-1", Username: "alice", Email: "a@example.com", PhoneNumber: "555",
	})
	if err != nil {
		t.Fatalf("Register がエラーを返した: %v", err)
	}
}
