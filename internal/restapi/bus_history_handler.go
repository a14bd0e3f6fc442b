package restapi

import (
	"net/http"

	"livetrack.cityline.org/internal/models"
	"livetrack.cityline.org/internal/utils"
)

// busHistoryHandler returns a bus's recorded trail, oldest first,
// optionally bounded below by the since parameter (epoch millis or
// RFC 3339).
func (api *RestAPI) busHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id := utils.ExtractIDFromParams(r, "id")
	if err := utils.ValidateID(id); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{
			"id": {err.Error()},
		})
		return
	}

	since, fieldErrors := utils.ParseTimeParam(r.URL.Query(), "since", nil)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	entries := api.Store.History(id, since)
	if entries == nil {
		entries = []models.LocationHistoryEntry{}
	}

	api.sendResponse(w, r, models.NewOKResponse(struct {
		List []models.LocationHistoryEntry `json:"list"`
	}{entries}))
}
