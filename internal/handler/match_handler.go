package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/shelterlink/internal/model"
)

// MatchHandler はマッチのHTTPハンドラー。
type MatchHandler struct{}

// NewMatchHandler はMatchHandlerを生成する。
func NewMatchHandler() *MatchHandler {
	return &MatchHandler{}
}

type reconcileResponse struct {
	Removed []matchResponse `json:"removed"`
	Matches []matchResponse `json:"matches"`
}

// ListMatches は役割に応じて表示するマッチを返す。
// ?all=true の場合は表示条件によらず全件を返す。
// GET /api/matches
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}

	var (
		matches []model.Match
		err     error
	)
	if r.URL.Query().Get("all") == "true" {
		matches, err = f.AllMatches()
	} else {
		matches, err = f.VisibleMatches()
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponses(matches, roleOf(f)))
}

// ResolveMatch は自分の側でマッチを確定する。
// POST /api/matches/{id}/resolve
func (h *MatchHandler) ResolveMatch(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}

	match, err := f.ResolveMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponse(match, roleOf(f)))
}

// Reconcile はマッチを再読み込みし、自分のアイテムを参照しないマッチを除く。
// 除いたマッチと現在表示するマッチを返す。
// POST /api/reconcile
func (h *MatchHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	f := facadeFromRequest(w, r)
	if f == nil {
		return
	}

	removed, err := f.Reconcile(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	visible, err := f.VisibleMatches()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	role := roleOf(f)
	writeJSON(w, http.StatusOK, reconcileResponse{
		Removed: toMatchResponses(removed, role),
		Matches: toMatchResponses(visible, role),
	})
}
