package restapi

import (
	"encoding/json"
	"net/http"

	"livetrack.cityline.org/internal/models"
)

// fixAckEntry is the payload returned to the driver app after a fix commits.
type fixAckEntry struct {
	Record models.BusLocationRecord `json:"record"`
	Stale  bool                     `json:"stale"`
}

// submitFixHandler ingests one GPS fix from a driver session. The session
// key arrives in the X-Session-Key header; the fix is the JSON body.
func (api *RestAPI) submitFixHandler(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.Header.Get("X-Session-Key")
	if sessionKey == "" {
		api.unauthorizedResponse(w, r)
		return
	}

	sess, err := api.Gateway.Authenticate(r.Context(), sessionKey)
	if err != nil {
		api.sendDomainError(w, r, err)
		return
	}

	var fix models.Fix
	if err := json.NewDecoder(r.Body).Decode(&fix); err != nil {
		api.badRequestResponse(w, r, "malformed fix payload")
		return
	}

	ack, err := api.Gateway.SubmitFix(r.Context(), sess, fix)
	if err != nil {
		api.sendDomainError(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewOKResponse(fixAckEntry{
		Record: ack.Record,
		Stale:  ack.Stale,
	}))
}
