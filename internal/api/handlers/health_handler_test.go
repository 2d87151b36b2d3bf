package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks []HealthCheck
		status int
		body   string
	}{
		{"all up", []HealthCheck{{"mongo", ok}, {"redis", ok}}, http.StatusOK,
			`{"status":"ok","checks":{"mongo":"ok","redis":"ok"}}`},
		{"redis down", []HealthCheck{{"mongo", ok}, {"redis", down}}, http.StatusServiceUnavailable,
			`{"status":"unavailable","checks":{"mongo":"ok","redis":"connection refused"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/healthz", (&HealthHandler{Checks: tt.checks}).Health)
			w := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}
