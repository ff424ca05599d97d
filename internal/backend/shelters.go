package backend

import (
	"context"
	"net/http"
	"strconv"
)

// Shelter はGET /shelters/ が返す保護施設。
// 座標は未登録の場合がある。
type Shelter struct {
	UID         string
	ShelterName string
	Address     string
	PhoneNumber string
	Latitude    *float64
	Longitude   *float64
}

type shelterWire struct {
	UID         flexString `json:"uid"`
	ShelterName string     `json:"shelter_name"`
	Address     string     `json:"address"`
	PhoneNumber string     `json:"phone_number"`
	Latitude    flexString `json:"latitude"`
	Longitude   flexString `json:"longitude"`
}

type sheltersResponse struct {
	Shelters []shelterWire `json:"shelters"`
	Count    int           `json:"count"`
}

// ListShelters は登録済みの保護施設一覧を取得する。
func (c *Client) ListShelters(ctx context.Context) ([]Shelter, error) {
	var resp sheltersResponse
	if err := c.do(ctx, "list_shelters", http.MethodGet, "/shelters/", nil, nil, &resp); err != nil {
		return nil, err
	}

	shelters := make([]Shelter, 0, len(resp.Shelters))
	for _, w := range resp.Shelters {
		shelters = append(shelters, Shelter{
			UID:         string(w.UID),
			ShelterName: w.ShelterName,
			Address:     w.Address,
			PhoneNumber: w.PhoneNumber,
			Latitude:    parseCoordinate(string(w.Latitude)),
			Longitude:   parseCoordinate(string(w.Longitude)),
		})
	}
	return shelters, nil
}

// parseCoordinate は文字列の座標をパースする。空や不正な値はnilを返す。
func parseCoordinate(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
