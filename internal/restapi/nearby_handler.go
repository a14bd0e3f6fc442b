package restapi

import (
	"net/http"

	"livetrack.cityline.org/internal/geo"
	"livetrack.cityline.org/internal/models"
	"livetrack.cityline.org/internal/proximity"
	"livetrack.cityline.org/internal/tracker"
	"livetrack.cityline.org/internal/utils"
)

// nearbyHandler returns online buses near a point, closest first.
func (api *RestAPI) nearbyHandler(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()

	lat, fieldErrors := utils.ParseFloatParam(queryParams, "lat", nil)
	lon, _ := utils.ParseFloatParam(queryParams, "lon", fieldErrors)
	radius, _ := utils.ParseFloatParam(queryParams, "radius", fieldErrors)

	if queryParams.Get("lat") == "" {
		fieldErrors["lat"] = append(fieldErrors["lat"], "lat is required")
	}
	if queryParams.Get("lon") == "" {
		fieldErrors["lon"] = append(fieldErrors["lon"], "lon is required")
	}

	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	locationErrors := utils.ValidateLocationParams(lat, lon, radius)
	if len(locationErrors) > 0 {
		api.validationErrorResponse(w, r, locationErrors)
		return
	}

	filter := tracker.Filter{RouteID: queryParams.Get("route")}
	if raw := queryParams.Get("direction"); raw != "" {
		switch models.Direction(raw) {
		case models.DirectionOutbound, models.DirectionInbound, models.DirectionUnknown:
			filter.Direction = models.Direction(raw)
		default:
			api.validationErrorResponse(w, r, map[string][]string{
				"direction": {"must be one of outbound, inbound, unknown"},
			})
			return
		}
	}

	matches := api.Searcher.Nearby(geo.Point{Lat: lat, Lon: lon}, radius, filter)
	if matches == nil {
		matches = []proximity.Match{}
	}

	api.sendResponse(w, r, models.NewOKResponse(struct {
		List []proximity.Match `json:"list"`
	}{matches}))
}
