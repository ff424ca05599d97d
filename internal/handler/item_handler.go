package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/shelterlink/internal/facade"
	"github.com/hitoshi/shelterlink/internal/model"
)

// ItemHandler は寄付・リクエストのHTTPハンドラー。
// 役割に応じて寄付またはリクエストとして扱われる。
type ItemHandler struct{}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler() *ItemHandler {
	return &ItemHandler{}
}

type createItemRequest struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Category string `json:"category"`
}

type updateItemRequest struct {
	ItemName *string `json:"item_name"`
	Quantity *int    `json:"quantity"`
	Category *string `json:"category"`
}

type bestMatchResponse struct {
	Match *matchResponse `json:"match"`
}

// itemListEntry は一覧の1件。アイテムに取り込まれているマッチがあれば含む。
type itemListEntry struct {
	itemResponse
	Match *matchResponse `json:"match,omitempty"`
}

// ListItems はキャッシュ中の自分のアイテム一覧を返す。
// GET /api/items
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}

	views, err := f.ItemViews()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	role := roleOf(f)
	resp := make([]itemListEntry, 0, len(views))
	for _, v := range views {
		entry := itemListEntry{itemResponse: toItemResponse(v.Item)}
		if v.Match != nil {
			m := toMatchResponse(*v.Match, role)
			entry.Match = &m
		}
		resp = append(resp, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateItem はアイテムを作成する。提案されたマッチがあれば併せて返す。
// POST /api/items
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}

	var req createItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := f.SubmitItem(r.Context(), model.ItemInput{
		ItemName: req.ItemName,
		Quantity: req.Quantity,
		Category: req.Category,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResult(f, result))
}

// UpdateItem はアイテムを部分更新する。
// PUT /api/items/{id}
func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}

	var req updateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := f.EditItem(r.Context(), chi.URLParam(r, "id"), model.ItemPatch{
		ItemName: req.ItemName,
		Quantity: req.Quantity,
		Category: req.Category,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResult(f, result))
}

// DeleteItem はアイテムを削除し、そのアイテムを参照するマッチをキャッシュから除く。
// DELETE /api/items/{id}
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}

	if err := f.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BestMatch はアイテムの最良マッチを問い合わせる。無い場合はmatchがnull。
// GET /api/items/{id}/best-match
func (h *ItemHandler) BestMatch(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}

	match, err := f.FindBestMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := bestMatchResponse{}
	if match != nil {
		m := toMatchResponse(*match, roleOf(f))
		resp.Match = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

func toItemResult(f *facade.Facade, result *facade.ItemResult) itemResultResponse {
	resp := itemResultResponse{Item: toItemResponse(result.Item)}
	if result.Match != nil {
		m := toMatchResponse(*result.Match, roleOf(f))
		resp.Match = &m
	}
	return resp
}

// roleOf は解決済みの役割を返す。未解決の場合は空。
func roleOf(f *facade.Facade) model.Role {
	if p, ok := f.Profile(); ok {
		return p.Role
	}
	return ""
}
