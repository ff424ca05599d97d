package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hitoshi/shelterlink/internal/model"
)

// itemWire は寄付・リクエストのJSON表現。
// 所有者フィールド名は種別によって donor_id / shelter_id に分かれる。
type itemWire struct {
	ID        flexString `json:"id,omitempty"`
	DonorID   flexString `json:"donor_id,omitempty"`
	ShelterID flexString `json:"shelter_id,omitempty"`
	ItemName  string     `json:"item_name"`
	Quantity  int        `json:"quantity"`
	Category  string     `json:"category"`
}

func newItemWire(kind model.ItemKind, ownerID string, in model.ItemInput) itemWire {
	w := itemWire{
		ItemName: in.ItemName,
		Quantity: in.Quantity,
		Category: in.Category,
	}
	if kind == model.ItemKindRequest {
		w.ShelterID = flexString(ownerID)
	} else {
		w.DonorID = flexString(ownerID)
	}
	return w
}

func (w itemWire) toModel(kind model.ItemKind) model.Item {
	owner := string(w.DonorID)
	if kind == model.ItemKindRequest {
		owner = string(w.ShelterID)
	}
	return model.Item{
		ID:       string(w.ID),
		Kind:     kind,
		OwnerID:  owner,
		ItemName: w.ItemName,
		Quantity: w.Quantity,
		Category: w.Category,
	}
}

// matchWire はマッチおよびbest_matchのJSON表現。
// 類似度エンジンのbest_matchにはidやstatusが含まれないことがあり、
// IDは数値・文字列のどちらでも返りうる。
type matchWire struct {
	ID         flexString `json:"id,omitempty"`
	DonorID    flexString `json:"donor_id"`
	DonationID flexString `json:"donation_id"`
	ShelterID  flexString `json:"shelter_id"`
	RequestID  flexString `json:"request_id"`
	ItemName   string     `json:"item_name"`
	Quantity   int        `json:"quantity"`
	Category   string     `json:"category"`
	MatchedAt  string     `json:"matched_at,omitempty"`
	Status     string     `json:"status,omitempty"`
	Similarity float64    `json:"similarity,omitempty"`
}

// toModel はマッチをドメインモデルに変換する。
// statusが無い場合はpending、matched_atが無い場合はnowを使う。
// idが無い場合は寄付IDとリクエストIDが揃っていれば決定的なIDを組み立て、
// 片側が欠けていれば空のままにする（呼び出し元が自分側を補ってから組み立てる）。
func (w matchWire) toModel(now time.Time) (model.Match, error) {
	status := model.MatchStatusPending
	if w.Status != "" {
		s, err := model.ParseMatchStatus(w.Status)
		if err != nil {
			return model.Match{}, err
		}
		status = s
	}

	matchedAt := parseTimestamp(w.MatchedAt)
	if matchedAt.IsZero() {
		matchedAt = now
	}

	id := string(w.ID)
	if id == "" && w.DonationID != "" && w.RequestID != "" {
		id = model.FallbackMatchID(string(w.DonationID), string(w.RequestID))
	}

	return model.Match{
		ID:         id,
		DonorID:    string(w.DonorID),
		DonationID: string(w.DonationID),
		ShelterID:  string(w.ShelterID),
		RequestID:  string(w.RequestID),
		ItemName:   w.ItemName,
		Quantity:   w.Quantity,
		Category:   w.Category,
		MatchedAt:  matchedAt,
		Status:     status,
	}, nil
}

// flexString は文字列・数値どちらのJSON値も文字列として受け取る。
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// timestampLayouts はバックエンドが返しうる日時フォーマット。
// タイムゾーン無しのISO 8601はUTCとして扱う。
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC()
	}
	return time.Time{}
}
