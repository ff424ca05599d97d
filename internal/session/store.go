// Package session はブラウザセッションごとの認証状態とキャッシュの寿命を管理する。
//
// Storeは認証済みIdentityを保持し、サインイン・サインアウトの遷移を購読者に通知する。
// Managerはセッションごとに Store と facade.Facade を組にして保持し、
// セッションレコードの永続化と再起動後の復元を行う。
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/hitoshi/shelterlink/internal/model"
)

// ErrInvalidToken はIDトークンの検証に失敗したことを表す。
var ErrInvalidToken = errors.New("invalid id token")

// TokenVerifier は認証プロバイダーのIDトークンを検証するインターフェース。
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (model.Identity, error)
}

// EventKind はStoreが通知する遷移の種類。
type EventKind int

const (
	// EventSignedIn はサインインを表す。
	EventSignedIn EventKind = iota
	// EventSignedOut はサインアウトを表す。
	EventSignedOut
)

func (k EventKind) String() string {
	if k == EventSignedIn {
		return "signed_in"
	}
	return "signed_out"
}

// Event はStoreの遷移イベント。
// サインアウトの場合、Identityは直前までサインインしていたユーザー。
type Event struct {
	Kind     EventKind
	Identity model.Identity
}

// Listener はイベントを受け取る関数。Storeのロック外で同期的に呼ばれる。
type Listener func(ctx context.Context, ev Event)

// Store は1つのブラウザセッションの認証状態を保持する。
// 変更操作はSignIn系とSignOutのみ。
type Store struct {
	verifier TokenVerifier

	mu        sync.Mutex
	current   *model.Identity
	listeners []Listener
}

// NewStore はサインアウト状態のStoreを生成する。
func NewStore(verifier TokenVerifier) *Store {
	return &Store{verifier: verifier}
}

// Subscribe はイベントの購読者を登録する。
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Current はサインイン中のIdentityを返す。サインアウト状態ではfalseを返す。
func (s *Store) Current() (model.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.Identity{}, false
	}
	return *s.current, true
}

// SignIn はIDトークンを認証プロバイダーで検証してサインインする。
func (s *Store) SignIn(ctx context.Context, idToken string) (model.Identity, error) {
	if idToken == "" {
		return model.Identity{}, ErrInvalidToken
	}
	id, err := s.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return model.Identity{}, errors.Join(ErrInvalidToken, err)
	}
	s.Resume(ctx, id)
	return id, nil
}

// Resume は検証済みのIdentityでサインインする。
// 永続化済みセッションを再起動後に復元する場合に使う。
// 別のユーザーがサインイン中の場合は、先にサインアウトを通知する。
func (s *Store) Resume(ctx context.Context, id model.Identity) {
	s.mu.Lock()
	prev := s.current
	if prev != nil && prev.UID == id.UID {
		s.mu.Unlock()
		return
	}
	s.current = &id
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if prev != nil {
		notify(ctx, listeners, Event{Kind: EventSignedOut, Identity: *prev})
	}
	notify(ctx, listeners, Event{Kind: EventSignedIn, Identity: id})
}

// SignOut はサインアウトする。サインアウト状態では何もしない。
func (s *Store) SignOut(ctx context.Context) {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if prev == nil {
		return
	}
	notify(ctx, listeners, Event{Kind: EventSignedOut, Identity: *prev})
}

func (s *Store) snapshotListeners() []Listener {
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

func notify(ctx context.Context, listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ctx, ev)
	}
}
