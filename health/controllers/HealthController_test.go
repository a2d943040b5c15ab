package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthResponse(t *testing.T, hc *HealthController) (int, map[string]string) {
	t.Helper()
	app := fiber.New()
	app.Get("/health", hc.Health)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	return resp.StatusCode, payload
}

func up(context.Context) error { return nil }

func TestHealth_AllUp(t *testing.T) {
	code, payload := healthResponse(t, &HealthController{Database: up, Redis: up})
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, "up", payload["database"])
	assert.Equal(t, "up", payload["redis"])
	assert.NotEmpty(t, payload["timestamp"])
}

func TestHealth_Degraded(t *testing.T) {
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	code, payload := healthResponse(t, &HealthController{Database: up, Redis: down})
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", payload["status"])
	assert.Equal(t, "down", payload["redis"])

	code, payload = healthResponse(t, &HealthController{Redis: up})
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "unknown", payload["database"])
}

func probe(t *testing.T, handler fiber.Handler) (int, map[string]string) {
	t.Helper()
	app := fiber.New()
	app.Get("/probe", handler)

	resp, err := app.Test(httptest.NewRequest("GET", "/probe", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestLiveness(t *testing.T) {
	code, payload := probe(t, (&HealthController{}).Liveness)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, map[string]string{"status": "ok"}, payload)
}

func TestReadiness(t *testing.T) {
	code, payload := probe(t, (&HealthController{Database: up}).Readiness)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ready", payload["status"])

	down := func(context.Context) error { return errors.New("database closed") }
	code, payload = probe(t, (&HealthController{Database: down, Redis: up}).Readiness)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", payload["status"])

	code, _ = probe(t, (&HealthController{}).Readiness)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
}
