package model

import (
	"errors"
	"fmt"
	"time"
)

// MatchStatus はマッチの解決状態を表す4状態の束。
type MatchStatus string

const (
	// MatchStatusPending はどちらも確認していない状態。
	MatchStatusPending MatchStatus = "pending"
	// MatchStatusDonor は寄付者のみ確認済みの状態。
	MatchStatusDonor MatchStatus = "donor"
	// MatchStatusShelter は保護施設のみ確認済みの状態。
	MatchStatusShelter MatchStatus = "shelter"
	// MatchStatusBoth は双方が確認済みの終端状態。
	MatchStatusBoth MatchStatus = "both"
)

// ErrInvalidTransition は単調でない状態遷移を表す。
var ErrInvalidTransition = errors.New("invalid match status transition")

// ParseMatchStatus は文字列をMatchStatusに変換する。
func ParseMatchStatus(s string) (MatchStatus, error) {
	switch st := MatchStatus(s); st {
	case MatchStatusPending, MatchStatusDonor, MatchStatusShelter, MatchStatusBoth:
		return st, nil
	}
	return "", fmt.Errorf("unknown match status: %q", s)
}

// ConfirmedBy は指定Roleがこの状態で確認済みかどうかを返す。
func (s MatchStatus) ConfirmedBy(role Role) bool {
	switch s {
	case MatchStatusBoth:
		return true
	case MatchStatusDonor:
		return role == RoleDonor
	case MatchStatusShelter:
		return role == RoleShelter
	}
	return false
}

// rank は束の中の高さを返す。donorとshelterは同じ高さで比較できない。
func (s MatchStatus) rank() int {
	switch s {
	case MatchStatusDonor, MatchStatusShelter:
		return 1
	case MatchStatusBoth:
		return 2
	}
	return 0
}

// CanTransition は from から to への遷移が許可されるかを返す。
// 束を上に進む遷移はすべて許可する。相手が先に確認していれば pending → both もありうる。
// 同じ状態への遷移（確認の繰り返し）は変化なしとして許可し、
// pendingへの後退とdonor・shelter間の入れ替わりは拒否する。
func CanTransition(from, to MatchStatus) bool {
	if from == to {
		return true
	}
	return to.rank() > from.rank()
}

// FallbackMatchID はidを持たない提案マッチのために、寄付IDとリクエストIDから決定的なIDを作る。
func FallbackMatchID(donationID, requestID string) string {
	return donationID + ":" + requestID
}

// Match は寄付とリクエストの組み合わせの提案を表す。
// 外部の類似度エンジンが生成する派生エンティティで、
// アイテムの作成・編集の副作用としてのみ作られる。
type Match struct {
	ID         string
	DonorID    string
	DonationID string
	ShelterID  string
	RequestID  string
	ItemName   string
	Quantity   int
	Category   string
	MatchedAt  time.Time
	Status     MatchStatus
}

// ParticipantID はRole側の参加者IDを返す。
func (m Match) ParticipantID(role Role) string {
	if role == RoleShelter {
		return m.ShelterID
	}
	return m.DonorID
}

// ItemID はRole側が所有するアイテムのIDを返す。
func (m Match) ItemID(role Role) string {
	if role == RoleShelter {
		return m.RequestID
	}
	return m.DonationID
}

// WithOwnSide は自分側の参加者IDとアイテムIDが欠けていれば補ったマッチを返す。
// 類似度エンジンは呼び出し元側のフィールドを省いてbest_matchを返す。
// IDが無ければ補った後の寄付IDとリクエストIDから組み立てる。
func (m Match) WithOwnSide(role Role, userID, itemID string) Match {
	if role == RoleShelter {
		if m.ShelterID == "" {
			m.ShelterID = userID
		}
		if m.RequestID == "" {
			m.RequestID = itemID
		}
	} else {
		if m.DonorID == "" {
			m.DonorID = userID
		}
		if m.DonationID == "" {
			m.DonationID = itemID
		}
	}
	if m.ID == "" && m.DonationID != "" && m.RequestID != "" {
		m.ID = FallbackMatchID(m.DonationID, m.RequestID)
	}
	return m
}

// References はこのマッチが指定アイテムを参照しているかを返す。
func (m Match) References(kind ItemKind, itemID string) bool {
	if kind == ItemKindRequest {
		return m.RequestID == itemID
	}
	return m.DonationID == itemID
}

// VisibleTo はRoleの画面にこのマッチを表示するかを返す。
// pendingとbothは双方に表示し、片側確認済みの場合は
// まだ確認していない側（相手の確認を待っていない側）にのみ表示する。
func (m Match) VisibleTo(role Role) bool {
	switch m.Status {
	case MatchStatusPending, MatchStatusBoth:
		return true
	case MatchStatusDonor:
		return role == RoleShelter
	case MatchStatusShelter:
		return role == RoleDonor
	}
	return false
}

// AwaitingAction はRoleの確認待ちかどうかを返す。
func (m Match) AwaitingAction(role Role) bool {
	return m.Status != MatchStatusBoth && !m.Status.ConfirmedBy(role)
}
