package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fulfillment-be/internal/app"
	"fulfillment-be/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	cfg := &config.Config{
		AppPort:          "8080",
		CORSOrigin:       "http://localhost:3000",
		ReservationTTL:   time.Minute,
		ReaperSchedule:   "@every 1m",
		OutboxSchedule:   "@every 10s",
		MaxOrderQuantity: 10,
	}
	srv := newServer(":"+cfg.AppPort, app.Build(context.Background(), cfg, conn).Handler())

	assert.Equal(t, ":8080", srv.Addr)
	assert.NotZero(t, srv.ReadHeaderTimeout)

	t.Run("Health Check", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "OK")
	})

	t.Run("Unknown route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/query", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
