package auth

import (
	"context"
	"errors"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"
)

type mockFirebaseClient struct {
	verifyFn func(ctx context.Context, idToken string) (*fbauth.Token, error)
	createFn func(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	deleteFn func(ctx context.Context, uid string) error
}

func (m *mockFirebaseClient) VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error) {
	return m.verifyFn(ctx, idToken)
}

func (m *mockFirebaseClient) CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error) {
	return m.createFn(ctx, user)
}

func (m *mockFirebaseClient) DeleteUser(ctx context.Context, uid string) error {
	return m.deleteFn(ctx, uid)
}

func TestFirebaseAuthenticator_VerifyIDToken(t *testing.T) {
	a := &FirebaseAuthenticator{client: &mockFirebaseClient{
		verifyFn: func(ctx context.Context, idToken string) (*fbauth.Token, error) {
			if idToken != "token-1" {
				t.Errorf("idToken = %q", idToken)
			}
			return &fbauth.Token{UID: "uid-1", Claims: map[string]interface{}{"email": "a@example.com"}}, nil
		},
	}}

	id, err := a.VerifyIDToken(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("VerifyIDToken がエラーを返した: %v", err)
	}
	if id.UID != "uid-1" || id.Email != "a@example.com" {
		t.Errorf("Identity = %+v", id)
	}
}

func TestFirebaseAuthenticator_VerifyIDToken_NoEmailClaim(t *testing.T) {
	a := &FirebaseAuthenticator{client: &mockFirebaseClient{
		verifyFn: func(ctx context.Context, idToken string) (*fbauth.Token, error) {
			return &fbauth.Token{UID: "uid-1"}, nil
		},
	}}

	id, err := a.VerifyIDToken(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("VerifyIDToken がエラーを返した: %v", err)
	}
	if id.Email != "" {
		t.Errorf("Email = %q, want 空", id.Email)
	}
}

func TestFirebaseAuthenticator_VerifyIDToken_Invalid(t *testing.T) {
	a := &FirebaseAuthenticator{client: &mockFirebaseClient{
		verifyFn: func(ctx context.Context, idToken string) (*fbauth.Token, error) {
			return nil, errors.New("token has expired")
		},
	}}

	if _, err := a.VerifyIDToken(context.Background(), "expired"); err == nil {
		t.Error("検証失敗時はエラーを返すべき")
	}
}

func TestFirebaseAuthenticator_CreateIdentity(t *testing.T) {
	a := &FirebaseAuthenticator{client: &mockFirebaseClient{
		createFn: func(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error) {
			return &fbauth.UserRecord{UserInfo: &fbauth.UserInfo{UID: "uid-9"}}, nil
		},
	}}

	uid, err := a.CreateIdentity(context.Background(), "a@example.com", "secret1")
	if err != nil {
		t.Fatalf("CreateIdentity がエラーを返した: %v", err)
	}
	if uid != "uid-9" {
		t.Errorf("uid = %q, want uid-9", uid)
	}
}

func TestFirebaseAuthenticator_DeleteUser_Error(t *testing.T) {
	a := &FirebaseAuthenticator{client: &mockFirebaseClient{
		deleteFn: func(ctx context.Context, uid string) error {
			return errors.New("unavailable")
		},
	}}

	if err := a.DeleteUser(context.Background(), "uid-1"); err == nil {
		t.Error("削除失敗時はエラーを返すべき")
	}
}

func TestNewFirebaseAuthenticator_RequiresProjectID(t *testing.T) {
	if _, err := NewFirebaseAuthenticator(context.Background(), FirebaseConfig{}); err == nil {
		t.Error("プロジェクトIDが空の場合はエラーを返すべき")
	}
}

func TestNewFirebaseAuthenticator_InvalidBase64(t *testing.T) {
	_, err := NewFirebaseAuthenticator(context.Background(), FirebaseConfig{
		ProjectID:             "shelterlink-test",
		CredentialsJSONBase64: "not base64!!",
	})
	if err == nil {
		t.Error("不正なBase64はエラーを返すべき")
	}
}
