package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/shelterlink/internal/facade"
	"github.com/hitoshi/shelterlink/internal/middleware"
	"github.com/hitoshi/shelterlink/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 1 << 20

// --- レスポンス型 ---

type itemResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	OwnerID  string `json:"owner_id"`
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Category string `json:"category"`
}

type matchResponse struct {
	ID             string     `json:"id"`
	DonorID        string     `json:"donor_id"`
	DonationID     string     `json:"donation_id"`
	ShelterID      string     `json:"shelter_id"`
	RequestID      string     `json:"request_id"`
	ItemName       string     `json:"item_name"`
	Quantity       int        `json:"quantity"`
	Category       string     `json:"category"`
	MatchedAt      *time.Time `json:"matched_at,omitempty"`
	Status         string     `json:"status"`
	AwaitingAction bool       `json:"awaiting_action"`
}

type profileResponse struct {
	UID        string            `json:"uid"`
	Role       string            `json:"role"`
	Attributes map[string]string `json:"attributes"`
}

type sessionResponse struct {
	State   string           `json:"state"`
	UID     string           `json:"uid,omitempty"`
	Email   string           `json:"email,omitempty"`
	Profile *profileResponse `json:"profile,omitempty"`
	Items   []itemResponse   `json:"items"`
	Matches []matchResponse  `json:"matches"`
	Error   *middleware.ErrorResponseBody `json:"error,omitempty"`
}

// itemResultResponse は作成・編集の結果。提案されたマッチがあれば含む。
type itemResultResponse struct {
	Item  itemResponse   `json:"item"`
	Match *matchResponse `json:"match,omitempty"`
}

func toItemResponse(it model.Item) itemResponse {
	return itemResponse{
		ID:       it.ID,
		Kind:     string(it.Kind),
		OwnerID:  it.OwnerID,
		ItemName: it.ItemName,
		Quantity: it.Quantity,
		Category: it.Category,
	}
}

func toItemResponses(items []model.Item) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	return out
}

func toMatchResponse(m model.Match, role model.Role) matchResponse {
	resp := matchResponse{
		ID:             m.ID,
		DonorID:        m.DonorID,
		DonationID:     m.DonationID,
		ShelterID:      m.ShelterID,
		RequestID:      m.RequestID,
		ItemName:       m.ItemName,
		Quantity:       m.Quantity,
		Category:       m.Category,
		Status:         string(m.Status),
		AwaitingAction: m.AwaitingAction(role),
	}
	if !m.MatchedAt.IsZero() {
		t := m.MatchedAt
		resp.MatchedAt = &t
	}
	return resp
}

func toMatchResponses(matches []model.Match, role model.Role) []matchResponse {
	out := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatchResponse(m, role))
	}
	return out
}

func toProfileResponse(p *model.Profile) *profileResponse {
	if p == nil {
		return nil
	}
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &profileResponse{UID: p.UID, Role: string(p.Role), Attributes: attrs}
}

// toSessionResponse はセッションのスナップショットを返す。
// マッチは役割に応じて表示するもののみを含む。
func toSessionResponse(s facade.Snapshot) sessionResponse {
	resp := sessionResponse{
		State:   string(s.State),
		UID:     s.User.UID,
		Email:   s.User.Email,
		Profile: toProfileResponse(s.Profile),
		Items:   toItemResponses(s.Items),
		Matches: []matchResponse{},
	}
	if s.Profile != nil {
		resp.Matches = toMatchResponses(s.Visible, s.Profile.Role)
	}
	if s.Error != nil {
		resp.Error = describeError(s.Error)
	}
	return resp
}

// describeError はfailed状態の原因をUI向けのエラー本文に変換する。
func describeError(err error) *middleware.ErrorResponseBody {
	rec := &bodyRecorder{header: http.Header{}}
	handleServiceError(rec, err)
	var body middleware.ErrorResponseBody
	if json.Unmarshal(rec.body, &body) != nil {
		return nil
	}
	return &body
}

// bodyRecorder はエラーレスポンスの本文だけを取り出すためのResponseWriter。
type bodyRecorder struct {
	header http.Header
	body   []byte
}

func (b *bodyRecorder) Header() http.Header { return b.header }

func (b *bodyRecorder) Write(p []byte) (int, error) {
	b.body = append(b.body, p...)
	return len(p), nil
}

func (b *bodyRecorder) WriteHeader(int) {}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// facadeFromRequest はセッションミドルウェアが注入したFacadeを返す。
// 見つからない場合は401を書き込みnilを返す。
func facadeFromRequest(w http.ResponseWriter, r *http.Request) *facade.Facade {
	entry, err := middleware.EntryFromContext(r.Context())
	if err != nil || entry.Facade == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil
	}
	return entry.Facade
}
