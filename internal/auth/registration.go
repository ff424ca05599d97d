package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/shelterlink/internal/backend"
	"github.com/hitoshi/shelterlink/internal/model"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 6

// IdentityProvider は認証ユーザーの作成と削除を行うインターフェース。
// FirebaseAuthenticator が実装する。
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password string) (string, error)
	DeleteUser(ctx context.Context, uid string) error
}

// ProfileRegistrar はバックエンドにプロフィールを作成するインターフェース。
// backend.Client が実装する。
type ProfileRegistrar interface {
	Register(ctx context.Context, role model.Role, reg backend.Registration) error
}

// Sanitizer はユーザー入力テキストを正規化するインターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// RegisterParams はユーザー登録の入力値。
type RegisterParams struct {
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
	PhoneNumber     string
	Role            model.Role
	ShelterName     string
}

// Validate はネットワーク呼び出し前に入力値を検証する。
func (p RegisterParams) Validate() error {
	if p.Password != p.ConfirmPassword {
		return model.NewPasswordMismatchError()
	}
	if len(p.Password) < minPasswordLength {
		return model.NewPasswordTooShortError(minPasswordLength)
	}
	if strings.TrimSpace(p.Email) == "" {
		return model.NewValidationError("email is required")
	}
	if !p.Role.Valid() {
		return model.NewValidationError(fmt.Sprintf("user type must be donor or shelter, got %q", p.Role))
	}
	if p.Role == model.RoleShelter && strings.TrimSpace(p.ShelterName) == "" {
		return model.NewValidationError("shelter_name is required for shelters")
	}
	return nil
}

// RegistrationService は認証ユーザーとバックエンドのプロフィールを作成する。
// プロフィール作成に失敗した場合は作成済みの認証ユーザーを削除する。
type RegistrationService struct {
	identities IdentityProvider
	profiles   ProfileRegistrar
	sanitizer  Sanitizer
	logger     *slog.Logger
}

// NewRegistrationService はRegistrationServiceを生成する。
func NewRegistrationService(identities IdentityProvider, profiles ProfileRegistrar, sanitizer Sanitizer, logger *slog.Logger) *RegistrationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationService{
		identities: identities,
		profiles:   profiles,
		sanitizer:  sanitizer,
		logger:     logger,
	}
}

// Register はユーザーを登録し、作成したIdentityを返す。
// バックエンドのエラーはdetailをそのまま返す。ロールバックの失敗は結合して返す。
func (s *RegistrationService) Register(ctx context.Context, p RegisterParams) (model.Identity, error) {
	p.Email = strings.TrimSpace(p.Email)
	if err := p.Validate(); err != nil {
		return model.Identity{}, err
	}

	uid, err := s.identities.CreateIdentity(ctx, p.Email, p.Password)
	if err != nil {
		return model.Identity{}, err
	}

	reg := backend.Registration{
		UserID:      uid,
		Username:    s.clean(p.Name),
		Email:       p.Email,
		PhoneNumber: s.clean(p.PhoneNumber),
	}
	if p.Role == model.RoleShelter {
		reg.ShelterName = s.clean(p.ShelterName)
	}

	if err := s.profiles.Register(ctx, p.Role, reg); err != nil {
		s.logger.Warn("プロフィール作成に失敗したため認証ユーザーを削除します",
			slog.String("uid", uid),
			slog.String("role", string(p.Role)),
			slog.String("error", err.Error()),
		)
		if rbErr := s.identities.DeleteUser(context.WithoutCancel(ctx), uid); rbErr != nil {
			s.logger.Error("認証ユーザーのロールバックに失敗しました",
				slog.String("uid", uid),
				slog.String("error", rbErr.Error()),
			)
			return model.Identity{}, errors.Join(err, fmt.Errorf("rollback identity %s: %w", uid, rbErr))
		}
		return model.Identity{}, err
	}

	s.logger.Info("ユーザーを登録しました",
		slog.String("uid", uid),
		slog.String("role", string(p.Role)),
	)
	return model.Identity{UID: uid, Email: p.Email}, nil
}

func (s *RegistrationService) clean(v string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(v)
	}
	return s.sanitizer.Sanitize(v)
}
