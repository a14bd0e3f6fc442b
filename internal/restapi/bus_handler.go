package restapi

import (
	"net/http"

	"livetrack.cityline.org/internal/models"
	"livetrack.cityline.org/internal/tracker"
	"livetrack.cityline.org/internal/utils"
)

// busHandler returns the current record for one bus.
func (api *RestAPI) busHandler(w http.ResponseWriter, r *http.Request) {
	id := utils.ExtractIDFromParams(r, "id")
	if err := utils.ValidateID(id); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{
			"id": {err.Error()},
		})
		return
	}

	rec, err := api.Store.Get(id)
	if err != nil {
		api.sendDomainError(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewOKResponse(struct {
		Entry models.BusLocationRecord `json:"entry"`
	}{rec}))
}

// busesHandler returns the current records for all buses, optionally
// filtered by route, direction, and online status.
func (api *RestAPI) busesHandler(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()

	filter := tracker.Filter{
		RouteID:    queryParams.Get("route"),
		OnlineOnly: queryParams.Get("onlineOnly") == "true",
	}

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

	records := api.Store.GetAll(filter)
	if records == nil {
		records = []models.BusLocationRecord{}
	}

	api.sendResponse(w, r, models.NewOKResponse(struct {
		List []models.BusLocationRecord `json:"list"`
	}{records}))
}
