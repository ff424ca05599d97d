package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/shelterlink/internal/model"
)

type matchesResponse struct {
	Matches []matchWire `json:"matches"`
}

type bestMatchResponse struct {
	BestMatch *matchWire `json:"best_match"`
}

// ListMatches はユーザーのマッチ一覧を取得する。
// バックエンドは参加者以外のマッチを含めて返すことがあるため、絞り込みは呼び出し側で行う。
func (c *Client) ListMatches(ctx context.Context, userID string, role model.Role) ([]model.Match, error) {
	var resp matchesResponse
	path := fmt.Sprintf("/match/matches/%s/%s", pathEscape(userID), role)
	if err := c.do(ctx, "list_matches", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	matches := make([]model.Match, 0, len(resp.Matches))
	for _, w := range resp.Matches {
		m, err := w.toModel(now)
		if err != nil {
			return nil, fmt.Errorf("list_matches: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// ResolveMatch はユーザーの確認操作をバックエンドに送り、次の状態を返す。
// レスポンスはJSON文字列 "shelter" または {"status": "shelter"} のどちらも受け付ける。
func (c *Client) ResolveMatch(ctx context.Context, matchID, userID string) (model.MatchStatus, error) {
	const op = "resolve_match"

	var raw json.RawMessage
	path := fmt.Sprintf("/match/resolve/%s/%s", pathEscape(matchID), pathEscape(userID))
	if err := c.do(ctx, op, http.MethodPut, path, nil, nil, &raw); err != nil {
		return "", err
	}

	var status string
	if err := json.Unmarshal(raw, &status); err != nil {
		var obj struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%s: unexpected response: %s", op, strings.TrimSpace(string(raw)))
		}
		status = obj.Status
	}

	next, err := model.ParseMatchStatus(status)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return next, nil
}

// BestMatch は類似度エンジンにアイテムの最良マッチを問い合わせる。
// 候補が無い場合は nil を返す。
func (c *Client) BestMatch(ctx context.Context, kind model.ItemKind, itemID string) (*model.Match, error) {
	var resp bestMatchResponse
	path := fmt.Sprintf("/vector-match/%s/%s/best-match", kind, pathEscape(itemID))
	if err := c.do(ctx, "best_match_"+string(kind), http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.BestMatch == nil {
		return nil, nil
	}

	m, err := resp.BestMatch.toModel(time.Now())
	if err != nil {
		return nil, fmt.Errorf("best_match: %w", err)
	}
	return &m, nil
}
