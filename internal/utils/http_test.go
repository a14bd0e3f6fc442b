package utils

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFloatParam(t *testing.T) {
	params := url.Values{}
	params.Set("lat", "47.61")
	params.Set("radius", "abc")

	lat, fieldErrors := ParseFloatParam(params, "lat", nil)
	assert.Equal(t, 47.61, lat)
	assert.Empty(t, fieldErrors)

	_, fieldErrors = ParseFloatParam(params, "radius", fieldErrors)
	assert.Contains(t, fieldErrors, "radius")

	missing, fieldErrors := ParseFloatParam(params, "lon", nil)
	assert.Zero(t, missing)
	assert.Empty(t, fieldErrors)
}

func TestParseTimeParamEpochMillis(t *testing.T) {
	params := url.Values{}
	params.Set("since", "1700000000000")

	got, fieldErrors := ParseTimeParam(params, "since", nil)
	assert.Empty(t, fieldErrors)
	assert.Equal(t, time.UnixMilli(1700000000000), got)
}

func TestParseTimeParamRFC3339(t *testing.T) {
	params := url.Values{}
	params.Set("since", "2026-08-01T12:00:00Z")

	got, fieldErrors := ParseTimeParam(params, "since", nil)
	assert.Empty(t, fieldErrors)
	assert.Equal(t, 2026, got.Year())
}

func TestParseTimeParamInvalid(t *testing.T) {
	params := url.Values{}
	params.Set("since", "yesterday")

	got, fieldErrors := ParseTimeParam(params, "since", nil)
	assert.True(t, got.IsZero())
	assert.Contains(t, fieldErrors, "since")
}

func TestParseTimeParamEmpty(t *testing.T) {
	got, fieldErrors := ParseTimeParam(url.Values{}, "since", nil)
	assert.True(t, got.IsZero())
	assert.Empty(t, fieldErrors)
}
