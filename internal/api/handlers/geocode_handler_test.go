package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-map-api-server/internal/geocode"
)

func newGeocodeRouter(gc *fakeGeocoder) *gin.Engine {
	r := gin.New()
	h := &GeocodeHandler{Geocoder: gc}
	r.GET("/geocode/search", h.SearchLocations)
	return r
}

func TestSearchLocations(t *testing.T) {
	gc := &fakeGeocoder{suggestions: []geocode.Suggestion{{
		PlaceID:     101,
		DisplayName: "Austin, Travis County, Texas, United States",
		Label:       "Austin, Texas, United States",
		Latitude:    30.27,
		Longitude:   -97.74,
	}}}

	w := serve(newGeocodeRouter(gc), httptest.NewRequest(http.MethodGet, "/geocode/search?q=austin", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "austin", gc.lastQuery)
	assert.Contains(t, w.Body.String(), `"label":"Austin, Texas, United States"`)
	assert.Contains(t, w.Body.String(), `"place_id":101`)
}

func TestSearchLocations_EmptyIsArray(t *testing.T) {
	w := serve(newGeocodeRouter(&fakeGeocoder{}), httptest.NewRequest(http.MethodGet, "/geocode/search?q=ab", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSearchLocations_Errors(t *testing.T) {
	w := serve(newGeocodeRouter(&fakeGeocoder{err: eris.Wrap(geocode.ErrProvider, "status 503")}),
		httptest.NewRequest(http.MethodGet, "/geocode/search?q=austin", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = serve(newGeocodeRouter(&fakeGeocoder{err: errors.New("context canceled")}),
		httptest.NewRequest(http.MethodGet, "/geocode/search?q=austin", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
