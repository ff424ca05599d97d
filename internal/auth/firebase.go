// Package auth は認証プロバイダー（Firebase Authentication）との連携と、
// バックエンドのプロフィール作成を含むユーザー登録を提供する。
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/hitoshi/shelterlink/internal/model"
)

// FirebaseConfig はFirebaseアプリの初期化設定。
type FirebaseConfig struct {
	ProjectID string
	// CredentialsFile はサービスアカウントJSONのパス。
	CredentialsFile string
	// CredentialsJSONBase64 はBase64エンコードしたサービスアカウントJSON。
	// CredentialsFile が空の場合のみ使う。
	CredentialsJSONBase64 string
}

// firebaseClient は利用する firebase auth.Client のメソッド。
type firebaseClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
	CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
}

// FirebaseAuthenticator はFirebase Authenticationを使ったIDトークン検証とユーザー管理を行う。
type FirebaseAuthenticator struct {
	client firebaseClient
}

// NewFirebaseAuthenticator はFirebaseアプリを初期化し、FirebaseAuthenticatorを生成する。
// 認証情報が指定されていない場合はApplication Default Credentialsを使う。
func NewFirebaseAuthenticator(ctx context.Context, cfg FirebaseConfig) (*FirebaseAuthenticator, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.CredentialsJSONBase64 != "":
		jsonKey, err := base64.StdEncoding.DecodeString(cfg.CredentialsJSONBase64)
		if err != nil {
			return nil, fmt.Errorf("service account json is not valid base64: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(jsonKey))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}
	return &FirebaseAuthenticator{client: client}, nil
}

// VerifyIDToken はIDトークンを検証し、Identityを返す。
func (a *FirebaseAuthenticator) VerifyIDToken(ctx context.Context, idToken string) (model.Identity, error) {
	token, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return model.Identity{}, fmt.Errorf("verify id token: %w", err)
	}
	email, _ := token.Claims["email"].(string)
	return model.Identity{UID: token.UID, Email: email}, nil
}

// CreateIdentity はメールアドレスとパスワードで認証ユーザーを作成し、UIDを返す。
func (a *FirebaseAuthenticator) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	params := (&fbauth.UserToCreate{}).Email(email).Password(password)
	rec, err := a.client.CreateUser(ctx, params)
	if err != nil {
		if fbauth.IsEmailAlreadyExists(err) {
			return "", model.NewValidationError("The email address is already in use by another account.")
		}
		return "", fmt.Errorf("create identity: %w", err)
	}
	return rec.UID, nil
}

// DeleteUser は認証ユーザーを削除する。既に存在しない場合は成功とみなす。
func (a *FirebaseAuthenticator) DeleteUser(ctx context.Context, uid string) error {
	if err := a.client.DeleteUser(ctx, uid); err != nil {
		if fbauth.IsUserNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete identity %s: %w", uid, err)
	}
	return nil
}
