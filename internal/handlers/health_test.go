package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	rec := serve(Health(nil), requestSpec{target: "/health"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeResponse(t, rec, &body)
	require.Equal(t, "ok", body["status"])

	rec = serve(Health(pingerFunc(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		require.True(t, ok)
		return nil
	})), requestSpec{target: "/health"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReportsDatabaseOutage(t *testing.T) {
	rec := serve(Health(pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	})), requestSpec{target: "/health"})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	payload := decodeResponse(t, rec, nil)
	require.Equal(t, "UNAVAILABLE", payload.Error.Code)
	require.NotContains(t, rec.Body.String(), "connection refused")
}
