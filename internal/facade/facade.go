// Package facade はセッション中のキャッシュを操作する唯一の入口を提供する。
//
// Facadeはサインイン時にプロフィールを解決し、アイテムとマッチを並行して読み込む。
// 以降の変更操作はすべてバックエンドの応答を確認してからキャッシュに適用する。
// サインアウト（Dispose）で世代番号を進め、それ以前に開始した処理の結果は破棄される。
package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/shelterlink/internal/backend"
	"github.com/hitoshi/shelterlink/internal/cache"
	"github.com/hitoshi/shelterlink/internal/model"
)

// State はFacadeのライフサイクル状態。
type State string

const (
	// StateSignedOut は初期状態および終端状態。キャッシュは空。
	StateSignedOut State = "signed_out"
	// StateResolving はプロフィール解決中。
	StateResolving State = "resolving"
	// StateLoading はアイテムとマッチの一括読み込み中。
	StateLoading State = "loading"
	// StateReady は読み込み完了。変更操作が許可される。
	StateReady State = "ready"
	// StateFailed は解決または読み込みに失敗した状態。
	StateFailed State = "failed"
)

var (
	// ErrNotReady はready以外の状態で変更操作が呼ばれたことを表す。
	ErrNotReady = errors.New("session is not ready")
	// ErrSessionEnded は処理中にサインアウトされ、結果が破棄されたことを表す。
	ErrSessionEnded = errors.New("session ended before the operation completed")
)

// Backend はFacadeが利用するバックエンドAPIのインターフェース。
// *backend.Client が実装する。
type Backend interface {
	ListItems(ctx context.Context, kind model.ItemKind, ownerID string) ([]model.Item, error)
	CreateItem(ctx context.Context, kind model.ItemKind, ownerID string, in model.ItemInput) (*backend.ItemResult, error)
	UpdateItem(ctx context.Context, kind model.ItemKind, ownerID, itemID string, in model.ItemInput) (*backend.ItemResult, error)
	DeleteItem(ctx context.Context, kind model.ItemKind, ownerID, itemID string) error
	ListMatches(ctx context.Context, userID string, role model.Role) ([]model.Match, error)
	ResolveMatch(ctx context.Context, matchID, userID string) (model.MatchStatus, error)
	BestMatch(ctx context.Context, kind model.ItemKind, itemID string) (*model.Match, error)
	UpdateProfile(ctx context.Context, role model.Role, uid string, attrs map[string]string) (map[string]string, error)
	DeleteProfile(ctx context.Context, role model.Role, uid string) error
}

// ProfileResolver はIdentityからプロフィールを解決するインターフェース。
type ProfileResolver interface {
	Resolve(ctx context.Context, uid string) (*model.Profile, error)
}

// IdentityDeleter は認証プロバイダーのユーザーを削除するインターフェース。
type IdentityDeleter interface {
	DeleteUser(ctx context.Context, uid string) error
}

// Sanitizer はユーザー入力テキストを正規化するインターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Recorder はFacadeの状態遷移や操作結果を記録するインターフェース。
type Recorder interface {
	RecordFacadeTransition(from, to string)
	RecordMatchResolution(status string)
	RecordOrphanedMatches(count int)
}

type noopRecorder struct{}

func (noopRecorder) RecordFacadeTransition(string, string) {}
func (noopRecorder) RecordMatchResolution(string)          {}
func (noopRecorder) RecordOrphanedMatches(int)             {}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string { return raw }

// Deps はFacadeの依存関係。
type Deps struct {
	Backend   Backend
	Resolver  ProfileResolver
	Identity  IdentityDeleter
	Sanitizer Sanitizer
	Recorder  Recorder
	Logger    *slog.Logger
}

// Facade は1つのセッションが所有するキャッシュとその操作を束ねる。
// 変更操作はopMuで直列化され、キャッシュの読み書きはmuで保護される。
type Facade struct {
	backend   Backend
	resolver  ProfileResolver
	identity  IdentityDeleter
	sanitizer Sanitizer
	recorder  Recorder
	logger    *slog.Logger

	opMu sync.Mutex

	mu         sync.RWMutex
	state      State
	generation uint64
	user       model.Identity
	profile    *model.Profile
	items      *cache.ItemCache
	matches    *cache.MatchCache
	lastErr    error
}

// New は新しいFacadeを生成する。初期状態はsigned_out。
func New(deps Deps) *Facade {
	f := &Facade{
		backend:   deps.Backend,
		resolver:  deps.Resolver,
		identity:  deps.Identity,
		sanitizer: deps.Sanitizer,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
		state:     StateSignedOut,
		items:     cache.NewItemCache(),
		matches:   cache.NewMatchCache(),
	}
	if f.sanitizer == nil {
		f.sanitizer = passthroughSanitizer{}
	}
	if f.recorder == nil {
		f.recorder = noopRecorder{}
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// ticket はready状態で開始した操作が参照するセッション情報。
type ticket struct {
	generation uint64
	uid        string
	role       model.Role
}

// Init はサインインを受けてプロフィールを解決し、アイテムとマッチを読み込む。
// 前のユーザーのキャッシュは読み込み開始前に必ず破棄される。
// 失敗した場合はfailed状態になり、自動では再試行しない。
func (f *Facade) Init(ctx context.Context, user model.Identity) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.mu.Lock()
	f.items.Clear()
	f.matches.Clear()
	f.generation++
	gen := f.generation
	f.user = user
	f.profile = nil
	f.lastErr = nil
	f.transitionLocked(StateResolving)
	f.mu.Unlock()

	profile, err := f.resolver.Resolve(ctx, user.UID)
	if err != nil {
		return f.fail(gen, err)
	}

	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		return ErrSessionEnded
	}
	f.profile = profile
	f.transitionLocked(StateLoading)
	f.mu.Unlock()

	var (
		items   []model.Item
		matches []model.Match
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = f.backend.ListItems(gctx, profile.Role.ItemKind(), user.UID)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = f.backend.ListMatches(gctx, user.UID, profile.Role)
		return err
	})
	if err := g.Wait(); err != nil {
		return f.fail(gen, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation {
		return ErrSessionEnded
	}
	f.items.LoadAll(user.UID, profile.Role, items)
	f.matches.LoadAll(user.UID, profile.Role, matches)
	f.transitionLocked(StateReady)

	f.logger.Info("セッションの読み込みが完了しました",
		slog.String("uid", user.UID),
		slog.String("role", string(profile.Role)),
		slog.Int("items", f.items.Len()),
		slog.Int("matches", f.matches.Len()),
	)
	return nil
}

// Dispose はサインアウトを受けてすべてのキャッシュを無条件に破棄する。
// 実行中の操作の結果は世代番号の不一致により適用されない。
func (f *Facade) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.generation++
	f.items.Clear()
	f.matches.Clear()
	f.user = model.Identity{}
	f.profile = nil
	f.lastErr = nil
	f.transitionLocked(StateSignedOut)
}

// State は現在の状態を返す。
func (f *Facade) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Err はfailed状態の原因を返す。
func (f *Facade) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastErr
}

func (f *Facade) fail(gen uint64, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation {
		return ErrSessionEnded
	}
	f.items.Clear()
	f.matches.Clear()
	f.lastErr = err
	f.transitionLocked(StateFailed)

	f.logger.Error("セッションの初期化に失敗しました",
		slog.String("uid", f.user.UID),
		slog.String("error", err.Error()),
	)
	return err
}

// transitionLocked は状態を遷移させる。muを保持して呼ぶこと。
func (f *Facade) transitionLocked(to State) {
	from := f.state
	f.state = to
	if from == to {
		return
	}
	f.recorder.RecordFacadeTransition(string(from), string(to))
	f.logger.Info("セッション状態が遷移しました",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("uid", f.user.UID),
	)
}

// begin はready状態であることを確認し、操作のticketを返す。
func (f *Facade) begin() (ticket, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state != StateReady {
		return ticket{}, fmt.Errorf("%w (state: %s)", ErrNotReady, f.state)
	}
	return ticket{
		generation: f.generation,
		uid:        f.user.UID,
		role:       f.profile.Role,
	}, nil
}

// commit は世代番号を確認してからapplyをmuの保持下で実行する。
func (f *Facade) commit(t ticket, apply func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.generation != f.generation {
		return ErrSessionEnded
	}
	return apply()
}
