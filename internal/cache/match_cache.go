package cache

import (
	"errors"
	"fmt"

	"github.com/hitoshi/shelterlink/internal/model"
)

// ErrMatchNotFound はマッチがキャッシュに存在しないことを表す。
var ErrMatchNotFound = errors.New("match not found in cache")

// ErrNotParticipant はユーザーが参加者でないマッチを取り込もうとしたことを表す。
var ErrNotParticipant = errors.New("user is not a participant of the match")

// MatchCache はユーザーが参加者であるマッチを保持する。
// 自分側のアイテム1つにつき、提案中のマッチは高々1つ。
type MatchCache struct {
	userID  string
	role    model.Role
	matches []model.Match
}

// NewMatchCache は空のMatchCacheを生成する。
func NewMatchCache() *MatchCache {
	return &MatchCache{}
}

// LoadAll はキャッシュの内容を置き換える。
// バックエンドが返した全マッチのうち、userIDがrole側の参加者であるものだけを残す。
func (c *MatchCache) LoadAll(userID string, role model.Role, matches []model.Match) []model.Match {
	c.userID = userID
	c.role = role
	c.matches = make([]model.Match, 0, len(matches))
	for _, m := range matches {
		if m.ParticipantID(role) != userID {
			continue
		}
		c.matches = append(c.matches, m)
	}
	return c.List()
}

// Merge はアイテム変更の副作用として生成されたマッチを取り込む。
// 同じ自分側アイテムを参照する既存のマッチは先に取り除く。
// 取り除いたマッチを返す。
func (c *MatchCache) Merge(m model.Match) ([]model.Match, error) {
	if m.ParticipantID(c.role) != c.userID {
		return nil, fmt.Errorf("merge %s: %w", m.ID, ErrNotParticipant)
	}

	itemID := m.ItemID(c.role)
	var removed []model.Match
	kept := c.matches[:0]
	for _, existing := range c.matches {
		if existing.ID == m.ID || existing.ItemID(c.role) == itemID {
			removed = append(removed, existing)
			continue
		}
		kept = append(kept, existing)
	}
	c.matches = append(kept, m)
	return removed, nil
}

// InvalidateByItem は指定アイテムを参照するマッチをすべて取り除き、取り除いた件数を返す。
func (c *MatchCache) InvalidateByItem(kind model.ItemKind, itemID string) int {
	return c.removeIf(func(m model.Match) bool {
		return m.References(kind, itemID)
	})
}

// RetainItems は自分側アイテムがexistsを満たさないマッチを取り除き、取り除いたマッチを返す。
func (c *MatchCache) RetainItems(exists func(itemID string) bool) []model.Match {
	var removed []model.Match
	kept := c.matches[:0]
	for _, m := range c.matches {
		if !exists(m.ItemID(c.role)) {
			removed = append(removed, m)
			continue
		}
		kept = append(kept, m)
	}
	c.matches = kept
	return removed
}

// ApplyResolution はマッチのstatusだけを置き換える。
// 単調でない遷移は model.ErrInvalidTransition を返し、キャッシュは変更しない。
func (c *MatchCache) ApplyResolution(matchID string, next model.MatchStatus) (model.Match, error) {
	i := c.index(matchID)
	if i < 0 {
		return model.Match{}, fmt.Errorf("resolve %s: %w", matchID, ErrMatchNotFound)
	}
	current := c.matches[i].Status
	if !model.CanTransition(current, next) {
		return model.Match{}, fmt.Errorf("resolve %s: %s -> %s: %w", matchID, current, next, model.ErrInvalidTransition)
	}
	c.matches[i].Status = next
	return c.matches[i], nil
}

// Get はIDに一致するマッチを返す。
func (c *MatchCache) Get(matchID string) (model.Match, error) {
	i := c.index(matchID)
	if i < 0 {
		return model.Match{}, fmt.Errorf("get %s: %w", matchID, ErrMatchNotFound)
	}
	return c.matches[i], nil
}

// ForItem は自分側アイテムを参照するマッチを返す。
func (c *MatchCache) ForItem(itemID string) (model.Match, bool) {
	for _, m := range c.matches {
		if m.ItemID(c.role) == itemID {
			return m, true
		}
	}
	return model.Match{}, false
}

// VisibleTo はRoleの画面に表示するマッチを返す。
func (c *MatchCache) VisibleTo(role model.Role) []model.Match {
	out := make([]model.Match, 0, len(c.matches))
	for _, m := range c.matches {
		if m.VisibleTo(role) {
			out = append(out, m)
		}
	}
	return out
}

// List はマッチのコピーを返す。
func (c *MatchCache) List() []model.Match {
	out := make([]model.Match, len(c.matches))
	copy(out, c.matches)
	return out
}

// Len はマッチ数を返す。
func (c *MatchCache) Len() int {
	return len(c.matches)
}

// Clear はすべてのエントリと参加者情報を破棄する。
func (c *MatchCache) Clear() {
	c.userID = ""
	c.role = ""
	c.matches = nil
}

func (c *MatchCache) removeIf(pred func(model.Match) bool) int {
	kept := c.matches[:0]
	removed := 0
	for _, m := range c.matches {
		if pred(m) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	c.matches = kept
	return removed
}

func (c *MatchCache) index(matchID string) int {
	for i := range c.matches {
		if c.matches[i].ID == matchID {
			return i
		}
	}
	return -1
}
