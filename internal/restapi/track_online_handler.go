package restapi

import (
	"encoding/json"
	"net/http"

	"livetrack.cityline.org/internal/models"
)

type onlineRequest struct {
	Online bool `json:"online"`
}

// setOnlineHandler applies an explicit online/offline toggle for the
// authenticated driver session's bus.
func (api *RestAPI) setOnlineHandler(w http.ResponseWriter, r *http.Request) {
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

	var req onlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.badRequestResponse(w, r, "malformed request payload")
		return
	}

	rec, err := api.Gateway.SetOnline(r.Context(), sess, req.Online)
	if err != nil {
		api.sendDomainError(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewOKResponse(struct {
		Entry models.BusLocationRecord `json:"entry"`
	}{rec}))
}
