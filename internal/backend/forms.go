package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/shelterlink/internal/model"
)

// ItemResult はアイテム作成・更新の結果。
// BestMatchは類似度エンジンが候補を提案した場合のみ設定される。
type ItemResult struct {
	Item      model.Item
	BestMatch *model.Match
}

// itemMutationResponse は作成・更新レスポンス。
// アイテムのフィールドとbest_matchが同じ階層に並ぶ。
type itemMutationResponse struct {
	itemWire
	BestMatch *matchWire `json:"best_match"`
}

// CreateItem はアイテムを作成する。IDはバックエンドが採番する。
func (c *Client) CreateItem(ctx context.Context, kind model.ItemKind, ownerID string, in model.ItemInput) (*ItemResult, error) {
	var resp itemMutationResponse
	if err := c.do(ctx, "create_"+string(kind), http.MethodPost, "/forms/"+string(kind), nil, newItemWire(kind, ownerID, in), &resp); err != nil {
		return nil, err
	}
	return c.toItemResult(kind, ownerID, resp)
}

// UpdateItem はアイテムを更新する。
func (c *Client) UpdateItem(ctx context.Context, kind model.ItemKind, ownerID, itemID string, in model.ItemInput) (*ItemResult, error) {
	var resp itemMutationResponse
	path := fmt.Sprintf("/forms/%s/%s", kind, pathEscape(itemID))
	if err := c.do(ctx, "update_"+string(kind), http.MethodPut, path, nil, newItemWire(kind, ownerID, in), &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = flexString(itemID)
	}
	return c.toItemResult(kind, ownerID, resp)
}

// DeleteItem はアイテムを削除する。
func (c *Client) DeleteItem(ctx context.Context, kind model.ItemKind, ownerID, itemID string) error {
	path := fmt.Sprintf("/forms/%s/%s/%s", kind, pathEscape(itemID), pathEscape(ownerID))
	return c.do(ctx, "delete_"+string(kind), http.MethodDelete, path, nil, nil, nil)
}

// ListItems は所有者のアイテム一覧を取得する。
// レスポンスは配列、または {"donations": [...]} 形式のどちらも受け付ける。
func (c *Client) ListItems(ctx context.Context, kind model.ItemKind, ownerID string) ([]model.Item, error) {
	var raw json.RawMessage
	query := url.Values{"user_id": []string{ownerID}}
	if err := c.do(ctx, "list_"+string(kind), http.MethodGet, "/forms/"+string(kind)+"/", query, nil, &raw); err != nil {
		return nil, err
	}

	wires, err := decodeList[itemWire](raw, string(kind)+"s")
	if err != nil {
		return nil, fmt.Errorf("list_%s: %w", kind, err)
	}

	items := make([]model.Item, 0, len(wires))
	for _, w := range wires {
		item := w.toModel(kind)
		if item.OwnerID == "" {
			item.OwnerID = ownerID
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) toItemResult(kind model.ItemKind, ownerID string, resp itemMutationResponse) (*ItemResult, error) {
	item := resp.itemWire.toModel(kind)
	if item.OwnerID == "" {
		item.OwnerID = ownerID
	}
	result := &ItemResult{Item: item}

	if resp.BestMatch != nil {
		m, err := resp.BestMatch.toModel(time.Now())
		if err != nil {
			return nil, fmt.Errorf("best_match: %w", err)
		}
		result.BestMatch = &m
	}
	return result, nil
}

// decodeList は配列、または指定キー配下の配列をデコードする。
func decodeList[T any](raw json.RawMessage, key string) ([]T, error) {
	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	inner, ok := wrapped[key]
	if !ok {
		return nil, fmt.Errorf("response has no %q field", key)
	}
	if err := json.Unmarshal(inner, &list); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return list, nil
}
