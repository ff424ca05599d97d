package facade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/shelterlink/internal/model"
)

// ItemResult はアイテムの作成・編集の結果。
// Matchはバックエンドが最良マッチを提案し、キャッシュに取り込んだ場合のみ設定される。
type ItemResult struct {
	Item  model.Item
	Match *model.Match
}

// SubmitItem はアイテムを作成し、提案されたマッチがあれば取り込む。
// バックエンドがエラーを返した場合、キャッシュは変更されない。
func (f *Facade) SubmitItem(ctx context.Context, in model.ItemInput) (*ItemResult, error) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	t, err := f.begin()
	if err != nil {
		return nil, err
	}

	in = f.sanitizeItem(in)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	kind := t.role.ItemKind()
	res, err := f.backend.CreateItem(ctx, kind, t.uid, in)
	if err != nil {
		return nil, err
	}

	var result *ItemResult
	err = f.commit(t, func() error {
		created := in.Item(res.Item.ID, kind, t.uid).Overlay(res.Item)
		item, err := f.items.Create(created)
		if err != nil {
			return fmt.Errorf("submit %s: %w", kind, err)
		}
		result = &ItemResult{Item: item, Match: f.mergeLocked(t, res.BestMatch, item.ID)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Info("アイテムを作成しました",
		slog.String("uid", t.uid),
		slog.String("kind", string(kind)),
		slog.String("item_id", result.Item.ID),
		slog.Bool("matched", result.Match != nil),
	)
	return result, nil
}

// EditItem はアイテムを部分更新する。指定されていないフィールドは既存の値を引き継ぐ。
func (f *Facade) EditItem(ctx context.Context, itemID string, patch model.ItemPatch) (*ItemResult, error) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	t, err := f.begin()
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, model.NewValidationError("no fields to update")
	}

	current, err := f.cachedItem(itemID)
	if err != nil {
		return nil, err
	}

	in := f.sanitizeItem(patch.Apply(current))
	if err := in.Validate(); err != nil {
		return nil, err
	}

	res, err := f.backend.UpdateItem(ctx, current.Kind, t.uid, itemID, in)
	if err != nil {
		return nil, err
	}

	var result *ItemResult
	err = f.commit(t, func() error {
		updated := in.Item(itemID, current.Kind, current.OwnerID).Overlay(res.Item)
		updated.ID = itemID
		item, err := f.items.Update(updated)
		if err != nil {
			return err
		}
		result = &ItemResult{Item: item, Match: f.mergeLocked(t, res.BestMatch, itemID)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteItem はアイテムを削除し、同じ操作の中でそのアイテムを参照するマッチをすべて取り除く。
// 削除成功後にマッチの再照合を行い、失敗した場合はログに記録するのみとする。
func (f *Facade) DeleteItem(ctx context.Context, itemID string) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	t, err := f.begin()
	if err != nil {
		return err
	}

	current, err := f.cachedItem(itemID)
	if err != nil {
		return err
	}

	if err := f.backend.DeleteItem(ctx, current.Kind, t.uid, itemID); err != nil {
		return err
	}

	var invalidated int
	err = f.commit(t, func() error {
		if err := f.items.Delete(itemID); err != nil {
			return err
		}
		invalidated = f.matches.InvalidateByItem(current.Kind, itemID)
		return nil
	})
	if err != nil {
		return err
	}

	f.logger.Info("アイテムを削除しました",
		slog.String("uid", t.uid),
		slog.String("item_id", itemID),
		slog.Int("invalidated_matches", invalidated),
	)

	if _, err := f.reconcile(ctx, t); err != nil {
		f.logger.Warn("削除後のマッチ再照合に失敗しました",
			slog.String("uid", t.uid),
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ResolveMatch はユーザーの確認操作をバックエンドに送り、返された状態をキャッシュに適用する。
// 束を上に進まない状態が返された場合は model.ErrInvalidTransition を返し、キャッシュは変更しない。
func (f *Facade) ResolveMatch(ctx context.Context, matchID string) (model.Match, error) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	t, err := f.begin()
	if err != nil {
		return model.Match{}, err
	}

	f.mu.RLock()
	_, err = f.matches.Get(matchID)
	f.mu.RUnlock()
	if err != nil {
		return model.Match{}, err
	}

	next, err := f.backend.ResolveMatch(ctx, matchID, t.uid)
	if err != nil {
		return model.Match{}, err
	}

	var resolved model.Match
	err = f.commit(t, func() error {
		m, err := f.matches.ApplyResolution(matchID, next)
		if err != nil {
			return err
		}
		resolved = m
		return nil
	})
	if err != nil {
		f.logger.Warn("マッチの状態を適用できませんでした",
			slog.String("uid", t.uid),
			slog.String("match_id", matchID),
			slog.String("status", string(next)),
			slog.String("error", err.Error()),
		)
		return model.Match{}, err
	}

	f.recorder.RecordMatchResolution(string(next))
	return resolved, nil
}

// FindBestMatch は類似度エンジンにアイテムの最良マッチを問い合わせ、
// 候補があれば作成・編集の副作用と同じ規則で取り込む。候補が無い場合はnilを返す。
func (f *Facade) FindBestMatch(ctx context.Context, itemID string) (*model.Match, error) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	t, err := f.begin()
	if err != nil {
		return nil, err
	}

	current, err := f.cachedItem(itemID)
	if err != nil {
		return nil, err
	}

	proposed, err := f.backend.BestMatch(ctx, current.Kind, itemID)
	if err != nil {
		return nil, err
	}
	if proposed == nil {
		return nil, nil
	}

	var merged *model.Match
	err = f.commit(t, func() error {
		merged = f.mergeLocked(t, proposed, itemID)
		return nil
	})
	return merged, err
}

// Reconcile はマッチをバックエンドから読み直し、自分側のアイテムが
// キャッシュに存在しないマッチを取り除く。取り除いたマッチを返す。
func (f *Facade) Reconcile(ctx context.Context) ([]model.Match, error) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	t, err := f.begin()
	if err != nil {
		return nil, err
	}
	return f.reconcile(ctx, t)
}

// reconcile はReconcileの本体。opMuを保持して呼ぶこと。
func (f *Facade) reconcile(ctx context.Context, t ticket) ([]model.Match, error) {
	matches, err := f.backend.ListMatches(ctx, t.uid, t.role)
	if err != nil {
		return nil, err
	}

	var orphaned []model.Match
	err = f.commit(t, func() error {
		f.matches.LoadAll(t.uid, t.role, matches)
		orphaned = f.matches.RetainItems(f.items.Contains)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(orphaned) > 0 {
		f.recorder.RecordOrphanedMatches(len(orphaned))
		f.logger.Warn("孤立したマッチを取り除きました",
			slog.String("uid", t.uid),
			slog.Int("count", len(orphaned)),
		)
	}
	return orphaned, nil
}

// mergeLocked は itemID に対して提案されたマッチを取り込む。muを保持して呼ぶこと。
// 応答で省かれた自分側の参加者IDとアイテムIDは補う。
// 別の参加者のマッチは取り込まずにnilを返す。
func (f *Facade) mergeLocked(t ticket, proposed *model.Match, itemID string) *model.Match {
	if proposed == nil {
		return nil
	}
	m := proposed.WithOwnSide(t.role, t.uid, itemID)
	replaced, err := f.matches.Merge(m)
	if err != nil {
		f.logger.Warn("提案されたマッチを取り込めませんでした",
			slog.String("uid", t.uid),
			slog.String("match_id", m.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if len(replaced) > 0 {
		f.logger.Debug("既存のマッチを置き換えました",
			slog.String("match_id", m.ID),
			slog.Int("replaced", len(replaced)),
		)
	}
	return &m
}

func (f *Facade) cachedItem(itemID string) (model.Item, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.items.Get(itemID)
}

func (f *Facade) sanitizeItem(in model.ItemInput) model.ItemInput {
	in.ItemName = f.sanitizer.Sanitize(in.ItemName)
	in.Category = f.sanitizer.Sanitize(in.Category)
	return in
}
