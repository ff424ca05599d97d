// Package cache はサインイン中のユーザーのアイテムとマッチをメモリ上に保持する。
// どちらのキャッシュもゴルーチンセーフではなく、排他制御は呼び出し側（facade）が行う。
// バックエンドの確認後にのみ変更を適用するため、失敗時に巻き戻す処理は持たない。
package cache

import (
	"errors"
	"fmt"

	"github.com/hitoshi/shelterlink/internal/model"
)

// ErrItemNotFound はアイテムがキャッシュに存在しないことを表す。
var ErrItemNotFound = errors.New("item not found in cache")

// ItemCache はユーザー自身の寄付またはリクエストを保持する。
// 1つのキャッシュには1種類のアイテムしか入らない。
type ItemCache struct {
	ownerID string
	kind    model.ItemKind
	items   []model.Item
}

// NewItemCache は空のItemCacheを生成する。
func NewItemCache() *ItemCache {
	return &ItemCache{}
}

// LoadAll はキャッシュの内容を置き換える。
// 所有者や種別が一致しないアイテムは取り込まない。
func (c *ItemCache) LoadAll(ownerID string, role model.Role, items []model.Item) []model.Item {
	c.ownerID = ownerID
	c.kind = role.ItemKind()
	c.items = make([]model.Item, 0, len(items))
	for _, item := range items {
		if item.Kind != c.kind || item.OwnerID != ownerID {
			continue
		}
		c.items = append(c.items, item)
	}
	return c.List()
}

// Kind はキャッシュが保持するアイテム種別を返す。
func (c *ItemCache) Kind() model.ItemKind {
	return c.kind
}

// Create はバックエンドが採番したアイテムを追加する。
// 同じIDが既にあれば置き換える。
func (c *ItemCache) Create(item model.Item) (model.Item, error) {
	if err := c.check(item); err != nil {
		return model.Item{}, err
	}
	if item.ID == "" {
		return model.Item{}, fmt.Errorf("create %s: backend returned no id", item.Kind)
	}
	if i := c.index(item.ID); i >= 0 {
		c.items[i] = item
		return item, nil
	}
	c.items = append(c.items, item)
	return item, nil
}

// Update は同じIDのエントリを置き換える。
func (c *ItemCache) Update(item model.Item) (model.Item, error) {
	if err := c.check(item); err != nil {
		return model.Item{}, err
	}
	i := c.index(item.ID)
	if i < 0 {
		return model.Item{}, fmt.Errorf("update %s: %w", item.ID, ErrItemNotFound)
	}
	c.items[i] = item
	return item, nil
}

// Delete はエントリを削除する。
func (c *ItemCache) Delete(id string) error {
	i := c.index(id)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrItemNotFound)
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return nil
}

// Get はIDに一致するアイテムを返す。
func (c *ItemCache) Get(id string) (model.Item, error) {
	i := c.index(id)
	if i < 0 {
		return model.Item{}, fmt.Errorf("get %s: %w", id, ErrItemNotFound)
	}
	return c.items[i], nil
}

// Contains はIDに一致するアイテムがあるかを返す。
func (c *ItemCache) Contains(id string) bool {
	return c.index(id) >= 0
}

// List はアイテムのコピーを返す。
func (c *ItemCache) List() []model.Item {
	out := make([]model.Item, len(c.items))
	copy(out, c.items)
	return out
}

// Len はアイテム数を返す。
func (c *ItemCache) Len() int {
	return len(c.items)
}

// Clear はすべてのエントリと所有者情報を破棄する。
func (c *ItemCache) Clear() {
	c.ownerID = ""
	c.kind = ""
	c.items = nil
}

func (c *ItemCache) check(item model.Item) error {
	if item.Kind != c.kind {
		return fmt.Errorf("item kind %q does not match cache kind %q", item.Kind, c.kind)
	}
	if item.OwnerID != c.ownerID {
		return fmt.Errorf("item %s is not owned by %s", item.ID, c.ownerID)
	}
	return nil
}

func (c *ItemCache) index(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}
