// Package shelter は保護施設一覧の取得と距離による絞り込みを提供する。
package shelter

import (
	"context"
	"math"
	"sort"

	"github.com/hitoshi/shelterlink/internal/backend"
)

// earthRadiusMiles は地球の半径（マイル）。
const earthRadiusMiles = 3959.0

// Lister は保護施設一覧を取得するインターフェース。
// backend.Client が実装する。
type Lister interface {
	ListShelters(ctx context.Context) ([]backend.Shelter, error)
}

// Position は緯度経度。
type Position struct {
	Latitude  float64
	Longitude float64
}

// Query は検索条件。Origin が nil の場合は距離を計算しない。
// RadiusMiles が0以下の場合は半径で絞り込まない。
type Query struct {
	Origin      *Position
	RadiusMiles float64
}

// Shelter は座標を持つ保護施設。
type Shelter struct {
	UID           string   `json:"uid"`
	Name          string   `json:"shelter_name"`
	Address       string   `json:"address"`
	PhoneNumber   string   `json:"phone_number"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
}

// Locator は保護施設を検索する。
type Locator struct {
	lister Lister
}

// NewLocator はLocatorを生成する。
func NewLocator(lister Lister) *Locator {
	return &Locator{lister: lister}
}

// Nearby は座標を持つ保護施設を返す。
// 起点が指定された場合は距離の近い順に並べ、半径外の施設を除外する。
func (l *Locator) Nearby(ctx context.Context, q Query) ([]Shelter, error) {
	all, err := l.lister.ListShelters(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Shelter, 0, len(all))
	for _, s := range all {
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		out := Shelter{
			UID:         s.UID,
			Name:        s.ShelterName,
			Address:     s.Address,
			PhoneNumber: s.PhoneNumber,
			Latitude:    *s.Latitude,
			Longitude:   *s.Longitude,
		}
		if q.Origin != nil {
			d := Distance(*q.Origin, Position{Latitude: out.Latitude, Longitude: out.Longitude})
			if q.RadiusMiles > 0 && d > q.RadiusMiles {
				continue
			}
			out.DistanceMiles = &d
		}
		result = append(result, out)
	}

	if q.Origin != nil {
		sort.SliceStable(result, func(i, j int) bool {
			return *result[i].DistanceMiles < *result[j].DistanceMiles
		})
	}
	return result, nil
}

// Distance は2点間の大圏距離（マイル）をハーバーサイン公式で求める。
func Distance(a, b Position) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLng := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
