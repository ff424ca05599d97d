package facade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/shelterlink/internal/model"
)

// roleAttributeKeys はプロフィール属性の中で役割を表すキー。
// これらは更新できず、バックエンドが異なる値を返した場合は model.ErrRoleChanged とする。
var roleAttributeKeys = []string{"userType", "role"}

// UpdateProfile はプロフィール属性を更新する。役割は変更できない。
func (f *Facade) UpdateProfile(ctx context.Context, attrs map[string]string) (*model.Profile, error) {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	t, err := f.begin()
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, model.NewValidationError("no attributes to update")
	}

	clean := make(map[string]string, len(attrs))
	for k, v := range attrs {
		for _, key := range roleAttributeKeys {
			if k == key && v != string(t.role) {
				return nil, fmt.Errorf("update profile: %w", model.ErrRoleChanged)
			}
		}
		clean[k] = f.sanitizer.Sanitize(v)
	}

	updated, err := f.backend.UpdateProfile(ctx, t.role, t.uid, clean)
	if err != nil {
		return nil, err
	}
	for _, key := range roleAttributeKeys {
		if v, ok := updated[key]; ok && v != string(t.role) {
			return nil, fmt.Errorf("update profile: backend reported role %q: %w", v, model.ErrRoleChanged)
		}
	}

	var profile model.Profile
	err = f.commit(t, func() error {
		merged := make(map[string]string, len(f.profile.Attributes)+len(updated))
		for k, v := range f.profile.Attributes {
			merged[k] = v
		}
		for k, v := range updated {
			merged[k] = v
		}
		f.profile = &model.Profile{UID: t.uid, Role: t.role, Attributes: merged}
		profile = copyProfile(f.profile)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// DeleteAccount はバックエンドのプロフィールと認証プロバイダーのユーザーを削除し、
// キャッシュを破棄する。プロフィール削除に失敗した場合は何も変更しない。
func (f *Facade) DeleteAccount(ctx context.Context) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	t, err := f.begin()
	if err != nil {
		return err
	}

	if err := f.backend.DeleteProfile(ctx, t.role, t.uid); err != nil {
		return err
	}

	var identityErr error
	if f.identity != nil {
		if err := f.identity.DeleteUser(ctx, t.uid); err != nil {
			f.logger.Error("認証ユーザーの削除に失敗しました",
				slog.String("uid", t.uid),
				slog.String("error", err.Error()),
			)
			identityErr = fmt.Errorf("delete identity %s: %w", t.uid, err)
		}
	}

	f.Dispose()
	f.logger.Info("アカウントを削除しました", slog.String("uid", t.uid))
	return identityErr
}

func copyProfile(p *model.Profile) model.Profile {
	attrs := make(map[string]string, len(p.Attributes))
	for k, v := range p.Attributes {
		attrs[k] = v
	}
	return model.Profile{UID: p.UID, Role: p.Role, Attributes: attrs}
}
