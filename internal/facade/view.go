package facade

import "github.com/hitoshi/shelterlink/internal/model"

// Snapshot はある時点のセッション内容のコピー。
type Snapshot struct {
	State   State
	User    model.Identity
	Profile *model.Profile
	Items   []model.Item
	Matches []model.Match
	// Visible は役割に応じて表示するマッチ。
	Visible []model.Match
	Error   error
}

// Snapshot は現在のセッション内容を返す。ready以外の状態ではキャッシュは空。
func (f *Facade) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Snapshot{
		State:   f.state,
		User:    f.user,
		Items:   f.items.List(),
		Matches: f.matches.List(),
		Error:   f.lastErr,
	}
	if f.profile != nil {
		p := copyProfile(f.profile)
		s.Profile = &p
		s.Visible = f.matches.VisibleTo(p.Role)
	}
	return s
}

// Profile は解決済みのプロフィールを返す。
func (f *Facade) Profile() (*model.Profile, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.profile == nil {
		return nil, false
	}
	p := copyProfile(f.profile)
	return &p, true
}

// ItemView はアイテムと、そのアイテムに取り込まれているマッチ。
type ItemView struct {
	Item  model.Item
	Match *model.Match
}

// ItemViews はキャッシュ中のアイテムを、自分側アイテムとして参照するマッチと併せて返す。
func (f *Facade) ItemViews() ([]ItemView, error) {
	if _, err := f.begin(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	items := f.items.List()
	views := make([]ItemView, 0, len(items))
	for _, it := range items {
		v := ItemView{Item: it}
		if m, ok := f.matches.ForItem(it.ID); ok {
			v.Match = &m
		}
		views = append(views, v)
	}
	return views, nil
}

// VisibleMatches は役割に応じて表示するマッチを返す。
func (f *Facade) VisibleMatches() ([]model.Match, error) {
	t, err := f.begin()
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.matches.VisibleTo(t.role), nil
}

// AllMatches は表示条件によらずキャッシュ中の全マッチを返す。
func (f *Facade) AllMatches() ([]model.Match, error) {
	if _, err := f.begin(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.matches.List(), nil
}
