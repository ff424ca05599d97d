package model

import "strings"

// ItemKind はアイテムの種別（寄付またはリクエスト）を表す。
type ItemKind string

const (
	// ItemKindDonation は寄付者が所有する寄付。
	ItemKindDonation ItemKind = "donation"
	// ItemKindRequest は保護施設が所有するリクエスト。
	ItemKindRequest ItemKind = "request"
)

// Categories はアイテムに指定可能なカテゴリの固定リスト。
var Categories = []string{
	"Food",
	"Clothing",
	"Bedding",
	"Medical Supplies",
	"Hygiene",
	"Baby Care",
	"Educational",
	"Emergency Supplies",
	"Other",
}

// ValidCategory はカテゴリが固定リストに含まれるかを返す。
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Item は寄付またはリクエストを表す。同じ形で所有者の役割だけが異なる。
type Item struct {
	ID       string
	Kind     ItemKind
	OwnerID  string
	ItemName string
	Quantity int
	Category string
}

// Overlay はreturnedのうち値を持つフィールドだけを重ねたアイテムを返す。
// 更新応答がアイテムを返さない場合でも元のフィールドは残る。Kindは変えない。
func (it Item) Overlay(returned Item) Item {
	if returned.ID != "" {
		it.ID = returned.ID
	}
	if returned.OwnerID != "" {
		it.OwnerID = returned.OwnerID
	}
	if returned.ItemName != "" {
		it.ItemName = returned.ItemName
	}
	if returned.Quantity > 0 {
		it.Quantity = returned.Quantity
	}
	if returned.Category != "" {
		it.Category = returned.Category
	}
	return it
}

// ItemInput はアイテム作成・編集時の入力値。
type ItemInput struct {
	ItemName string
	Quantity int
	Category string
}

// Item は入力値から指定IDのアイテムを組み立てる。
func (in ItemInput) Item(id string, kind ItemKind, ownerID string) Item {
	return Item{
		ID:       id,
		Kind:     kind,
		OwnerID:  ownerID,
		ItemName: in.ItemName,
		Quantity: in.Quantity,
		Category: in.Category,
	}
}

// Validate はネットワーク呼び出し前に入力値を検証する。
func (in ItemInput) Validate() error {
	if strings.TrimSpace(in.ItemName) == "" {
		return NewValidationError("item_name is required")
	}
	if in.Quantity <= 0 {
		return NewValidationError("quantity must be greater than 0")
	}
	if !ValidCategory(in.Category) {
		return NewInvalidCategoryError(in.Category)
	}
	return nil
}

// ItemPatch はアイテムの部分更新を表す。nilフィールドは変更しない。
type ItemPatch struct {
	ItemName *string
	Quantity *int
	Category *string
}

// Empty は変更対象のフィールドが1つもないかを返す。
func (p ItemPatch) Empty() bool {
	return p.ItemName == nil && p.Quantity == nil && p.Category == nil
}

// Apply はパッチを既存アイテムに適用した入力値を返す。
// 指定されていないフィールドは既存の値を引き継ぐ。
func (p ItemPatch) Apply(item Item) ItemInput {
	in := ItemInput{
		ItemName: item.ItemName,
		Quantity: item.Quantity,
		Category: item.Category,
	}
	if p.ItemName != nil {
		in.ItemName = *p.ItemName
	}
	if p.Quantity != nil {
		in.Quantity = *p.Quantity
	}
	if p.Category != nil {
		in.Category = *p.Category
	}
	return in
}
