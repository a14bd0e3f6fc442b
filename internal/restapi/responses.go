package restapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"livetrack.cityline.org/internal/ingest"
	"livetrack.cityline.org/internal/models"
)

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, response models.ResponseModel) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(response); err != nil {
		api.serverErrorResponse(w, r, err)
	}
}

// sendDomainError maps service-layer errors onto HTTP responses.
func (api *RestAPI) sendDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ingest.ValidationError

	switch {
	case errors.As(err, &verr):
		api.validationErrorResponse(w, r, verr.FieldErrors)
	case errors.Is(err, models.ErrUnauthorized):
		api.unauthorizedResponse(w, r)
	case errors.Is(err, models.ErrNotFound):
		api.notFoundResponse(w, r)
	case errors.Is(err, models.ErrInvalidFix):
		api.badRequestResponse(w, r, "invalid fix")
	default:
		api.serverErrorResponse(w, r, err)
	}
}
