package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/shelterlink/internal/model"
	"github.com/hitoshi/shelterlink/internal/shelter"
)

// ShelterFinder は保護施設を検索するインターフェース。
// shelter.Locator が実装する。
type ShelterFinder interface {
	Nearby(ctx context.Context, q shelter.Query) ([]shelter.Shelter, error)
}

// ShelterHandler は保護施設検索のHTTPハンドラー。
type ShelterHandler struct {
	finder ShelterFinder
}

// NewShelterHandler はShelterHandlerを生成する。
func NewShelterHandler(finder ShelterFinder) *ShelterHandler {
	return &ShelterHandler{finder: finder}
}

// ListShelters は座標を持つ保護施設を返す。
// lat と lng が指定された場合は距離順に並べ、radius_miles で絞り込む。
// GET /api/shelters?lat=&lng=&radius_miles=
func (h *ShelterHandler) ListShelters(w http.ResponseWriter, r *http.Request) {
	q, apiErr := parseShelterQuery(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	shelters, err := h.finder.Nearby(r.Context(), q)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if shelters == nil {
		shelters = []shelter.Shelter{}
	}
	writeJSON(w, http.StatusOK, shelters)
}

func parseShelterQuery(r *http.Request) (shelter.Query, *model.APIError) {
	var q shelter.Query
	values := r.URL.Query()

	latRaw, lngRaw := values.Get("lat"), values.Get("lng")
	if (latRaw == "") != (lngRaw == "") {
		return q, model.NewValidationError("lat and lng must be given together")
	}
	if latRaw != "" {
		lat, err := strconv.ParseFloat(latRaw, 64)
		if err != nil || lat < -90 || lat > 90 {
			return q, model.NewValidationError("lat must be a number between -90 and 90")
		}
		lng, err := strconv.ParseFloat(lngRaw, 64)
		if err != nil || lng < -180 || lng > 180 {
			return q, model.NewValidationError("lng must be a number between -180 and 180")
		}
		q.Origin = &shelter.Position{Latitude: lat, Longitude: lng}
	}

	if raw := values.Get("radius_miles"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || radius < 0 {
			return q, model.NewValidationError("radius_miles must be a non-negative number")
		}
		q.RadiusMiles = radius
	}
	return q, nil
}
