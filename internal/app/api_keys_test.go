package app

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"livetrack.cityline.org/internal/appconf"
)

func TestIsInvalidAPIKey(t *testing.T) {
	app := &Application{
		Config: appconf.Config{ApiKeys: []string{"TEST", "mobile"}},
	}

	assert.False(t, app.IsInvalidAPIKey("TEST"))
	assert.False(t, app.IsInvalidAPIKey("mobile"))
	assert.True(t, app.IsInvalidAPIKey(""))
	assert.True(t, app.IsInvalidAPIKey("nope"))
}

func TestRequestHasInvalidAPIKey(t *testing.T) {
	app := &Application{
		Config: appconf.Config{ApiKeys: []string{"TEST"}},
	}

	r, _ := http.NewRequest(http.MethodGet, "/api/track/buses?key=TEST", nil)
	assert.False(t, app.RequestHasInvalidAPIKey(r))

	r, _ = http.NewRequest(http.MethodGet, "/api/track/buses", nil)
	assert.True(t, app.RequestHasInvalidAPIKey(r))
}
