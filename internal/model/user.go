// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Role はユーザーの役割（寄付者または保護施設）を表す。
type Role string

const (
	// RoleDonor は寄付を投稿する寄付者。
	RoleDonor Role = "donor"
	// RoleShelter は物資をリクエストする保護施設。
	RoleShelter Role = "shelter"
)

// Valid はRoleが既知の値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleDonor || r == RoleShelter
}

// ParseRole は文字列をRoleに変換する。未知の値はエラーを返す。
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// ItemKind はこのRoleが所有するアイテムの種別を返す。
// donorはdonation、shelterはrequestのみを所有する。
func (r Role) ItemKind() ItemKind {
	if r == RoleShelter {
		return ItemKindRequest
	}
	return ItemKindDonation
}

// Identity は認証プロバイダーが発行したユーザー識別情報を表す。
// Session Storeが排他的に所有し、サインアウトで破棄される。
type Identity struct {
	UID   string
	Email string
}

// Profile はIdentityに紐づく役割とプロフィール属性を表す。
// 一度解決されたRoleはセッション中に変化しない。
type Profile struct {
	UID        string
	Role       Role
	Attributes map[string]string
}

// Attribute は指定キーのプロフィール属性を返す。存在しない場合は空文字列。
func (p *Profile) Attribute(key string) string {
	if p == nil || p.Attributes == nil {
		return ""
	}
	return p.Attributes[key]
}

// Session はブラウザセッションの永続化レコードを表す。
// キャッシュ本体はメモリ上にのみ存在し、このレコードからは再構築される。
type Session struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが指定時刻に期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
