package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/shelterlink/internal/facade"
	"github.com/hitoshi/shelterlink/internal/model"
)

// ErrSessionNotFound はセッションが存在しないか期限切れであることを表す。
var ErrSessionNotFound = errors.New("session not found")

// Repository はセッションレコードの永続化インターフェース。
// repository.SessionRepository が実装する。
type Repository interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Recorder はメモリ上のセッション数を記録するインターフェース。
type Recorder interface {
	RecordActiveSessions(count int)
}

type noopRecorder struct{}

func (noopRecorder) RecordActiveSessions(int) {}

// Entry は1つのブラウザセッションが所有するStoreとFacadeの組。
type Entry struct {
	Session model.Session
	Store   *Store
	Facade  *facade.Facade
}

// Config はManagerの設定。
type Config struct {
	// MaxAge はセッションの有効期間。
	MaxAge time.Duration
	// InitTimeout はサインイン時のプロフィール解決と一括読み込みの上限時間。
	InitTimeout time.Duration
}

// Manager はセッションIDからEntryを引く。
// メモリ上に無いが永続化済みで有効なセッションは、サインインし直して復元する。
type Manager struct {
	repo      Repository
	verifier  TokenVerifier
	newFacade func() *facade.Facade
	logger    *slog.Logger
	recorder  Recorder
	cfg       Config
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
	restore singleflight.Group
}

// NewManager は新しいManagerを生成する。
func NewManager(repo Repository, verifier TokenVerifier, newFacade func() *facade.Facade, logger *slog.Logger, cfg Config) *Manager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:      repo,
		verifier:  verifier,
		newFacade: newFacade,
		logger:    logger,
		recorder:  noopRecorder{},
		cfg:       cfg,
		now:       time.Now,
		entries:   make(map[string]*Entry),
	}
}

// SetRecorder はセッション数の記録先を設定する。
func (m *Manager) SetRecorder(r Recorder) {
	if r == nil {
		r = noopRecorder{}
	}
	m.recorder = r
}

// Create はIDトークンでサインインし、新しいセッションを作成する。
// プロフィール解決や読み込みに失敗してもセッションは作成され、Facadeはfailed状態になる。
func (m *Manager) Create(ctx context.Context, idToken string) (*Entry, error) {
	now := m.now()
	entry := m.newEntry(model.Session{
		ID:        uuid.NewString(),
		ExpiresAt: now.Add(m.cfg.MaxAge),
		CreatedAt: now,
	})

	initCtx, cancel := m.initContext(ctx)
	defer cancel()

	id, err := entry.Store.SignIn(initCtx, idToken)
	if err != nil {
		return nil, err
	}
	entry.Session.UserID = id.UID
	entry.Session.Email = id.Email

	if err := m.repo.Create(ctx, &entry.Session); err != nil {
		entry.Store.SignOut(ctx)
		return nil, fmt.Errorf("persist session: %w", err)
	}

	m.put(entry)
	m.logger.Info("セッションを作成しました",
		slog.String("user_id", id.UID),
		slog.String("state", string(entry.Facade.State())),
	)
	return entry, nil
}

// Get はセッションIDに対応するEntryを返す。
func (m *Manager) Get(ctx context.Context, sessionID string) (*Entry, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	if entry, ok := m.lookup(sessionID); ok {
		if entry.Session.Expired(m.now()) {
			m.Destroy(ctx, sessionID)
			return nil, ErrSessionNotFound
		}
		return entry, nil
	}

	v, err, _ := m.restore.Do(sessionID, func() (any, error) {
		return m.restoreEntry(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// restoreEntry は永続化済みのセッションからEntryを再構築する。
func (m *Manager) restoreEntry(ctx context.Context, sessionID string) (*Entry, error) {
	if entry, ok := m.lookup(sessionID); ok {
		return entry, nil
	}

	sess, err := m.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess == nil || sess.Expired(m.now()) {
		return nil, ErrSessionNotFound
	}

	entry := m.newEntry(*sess)
	initCtx, cancel := m.initContext(ctx)
	defer cancel()
	entry.Store.Resume(initCtx, model.Identity{UID: sess.UserID, Email: sess.Email})

	m.put(entry)
	m.logger.Info("セッションを復元しました",
		slog.String("user_id", sess.UserID),
		slog.String("state", string(entry.Facade.State())),
	)
	return entry, nil
}

// Destroy はサインアウトしてキャッシュを破棄し、セッションレコードを削除する。
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	entry := m.entries[sessionID]
	delete(m.entries, sessionID)
	count := len(m.entries)
	m.mu.Unlock()
	m.recorder.RecordActiveSessions(count)

	if entry != nil {
		entry.Store.SignOut(ctx)
	}
	if err := m.repo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteAccount はセッションのユーザーのアカウントを削除し、
// そのユーザーの全セッションを破棄する。プロフィール削除に失敗した場合は何も破棄しない。
func (m *Manager) DeleteAccount(ctx context.Context, sessionID string) error {
	entry, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	accountErr := entry.Facade.DeleteAccount(ctx)
	if accountErr != nil && entry.Facade.State() != facade.StateSignedOut {
		return accountErr
	}

	uid := entry.Session.UserID
	var others []*Entry
	m.mu.Lock()
	for id, e := range m.entries {
		if e.Session.UserID == uid {
			others = append(others, e)
			delete(m.entries, id)
		}
	}
	count := len(m.entries)
	m.mu.Unlock()
	m.recorder.RecordActiveSessions(count)

	for _, e := range others {
		e.Store.SignOut(ctx)
	}
	if err := m.repo.DeleteByUserID(ctx, uid); err != nil {
		return errors.Join(accountErr, fmt.Errorf("delete user sessions: %w", err))
	}
	return accountErr
}

// Sweep は期限切れのセッションを破棄し、永続化済みの期限切れレコードを削除する。
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	now := m.now()

	var expired []*Entry
	m.mu.Lock()
	for id, e := range m.entries {
		if e.Session.Expired(now) {
			expired = append(expired, e)
			delete(m.entries, id)
		}
	}
	count := len(m.entries)
	m.mu.Unlock()
	m.recorder.RecordActiveSessions(count)

	for _, e := range expired {
		e.Store.SignOut(ctx)
	}

	n, err := m.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Len はメモリ上のセッション数を返す。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) newEntry(sess model.Session) *Entry {
	store := NewStore(m.verifier)
	f := m.newFacade()
	store.Subscribe(func(ctx context.Context, ev Event) {
		switch ev.Kind {
		case EventSignedIn:
			if err := f.Init(ctx, ev.Identity); err != nil {
				m.logger.Warn("セッションの初期化に失敗しました",
					slog.String("user_id", ev.Identity.UID),
					slog.String("error", err.Error()),
				)
			}
		case EventSignedOut:
			f.Dispose()
		}
	})
	return &Entry{Session: sess, Store: store, Facade: f}
}

func (m *Manager) lookup(sessionID string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	return e, ok
}

func (m *Manager) put(entry *Entry) {
	m.mu.Lock()
	m.entries[entry.Session.ID] = entry
	count := len(m.entries)
	m.mu.Unlock()
	m.recorder.RecordActiveSessions(count)
}

// initContext はリクエストのキャンセルから切り離し、上限時間を設けたコンテキストを返す。
// クライアントが切断しても読み込みを最後まで行い、次のリクエストで結果を使えるようにする。
func (m *Manager) initContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.cfg.InitTimeout)
}
