package model

import (
	"errors"
	"testing"
)

func TestItemInput_Validate(t *testing.T) {
	valid := ItemInput{ItemName: "Blankets", Quantity: 20, Category: "Bedding"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("有効な入力でエラーが返された: %v", err)
	}

	tests := []struct {
		name string
		in   ItemInput
		code string
	}{
		{"empty name", ItemInput{ItemName: "  ", Quantity: 1, Category: "Food"}, ErrCodeValidation},
		{"zero quantity", ItemInput{ItemName: "Rice", Quantity: 0, Category: "Food"}, ErrCodeValidation},
		{"negative quantity", ItemInput{ItemName: "Rice", Quantity: -3, Category: "Food"}, ErrCodeValidation},
		{"unknown category", ItemInput{ItemName: "Rice", Quantity: 1, Category: "Toys"}, ErrCodeInvalidCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("APIError が返されるべき: %v", err)
			}
			if apiErr.Code != tt.code {
				t.Errorf("Code = %s, want %s", apiErr.Code, tt.code)
			}
			if apiErr.Category != "validation" {
				t.Errorf("Category = %s, want validation", apiErr.Category)
			}
		})
	}
}

func TestItemPatch_ApplyKeepsUnaffectedFields(t *testing.T) {
	item := Item{ID: "d1", ItemName: "Blankets", Quantity: 20, Category: "Bedding"}
	qty := 5

	in := ItemPatch{Quantity: &qty}.Apply(item)

	if in.ItemName != "Blankets" || in.Category != "Bedding" {
		t.Errorf("未指定フィールドが変更された: %+v", in)
	}
	if in.Quantity != 5 {
		t.Errorf("Quantity = %d, want 5", in.Quantity)
	}
}

func TestItemPatch_Empty(t *testing.T) {
	if !(ItemPatch{}).Empty() {
		t.Error("空のパッチは Empty() == true であるべき")
	}
	name := "Coats"
	if (ItemPatch{ItemName: &name}).Empty() {
		t.Error("フィールド指定ありのパッチは Empty() == false であるべき")
	}
}

func TestRole_ItemKind(t *testing.T) {
	if RoleDonor.ItemKind() != ItemKindDonation {
		t.Error("donor は donation を所有する")
	}
	if RoleShelter.ItemKind() != ItemKindRequest {
		t.Error("shelter は request を所有する")
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Error("未知のRoleはエラーになるべき")
	}
}

func TestItem_Overlay_KeepsFieldsMissingFromResponse(t *testing.T) {
	base := ItemInput{ItemName: "Blankets", Quantity: 5, Category: "Bedding"}.Item("D1", ItemKindDonation, "donor-1")

	got := base.Overlay(Item{})
	if got != base {
		t.Errorf("空の応答で値が失われた: %+v", got)
	}
	if got.Quantity <= 0 {
		t.Errorf("Quantity = %d, 0より大きいべき", got.Quantity)
	}
}

func TestItem_Overlay_TakesReturnedValues(t *testing.T) {
	base := ItemInput{ItemName: "Blankets", Quantity: 5, Category: "Bedding"}.Item("", ItemKindDonation, "donor-1")

	got := base.Overlay(Item{ID: "D9", Kind: ItemKindRequest, ItemName: "Wool Blankets"})
	want := Item{ID: "D9", Kind: ItemKindDonation, OwnerID: "donor-1", ItemName: "Wool Blankets", Quantity: 5, Category: "Bedding"}
	if got != want {
		t.Errorf("Overlay = %+v, want %+v", got, want)
	}
}
