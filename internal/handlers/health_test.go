package handlers_test

import (
	"testing"

	"github.com/shridarpatil/queuebot/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := adminApp(t)
	req := testutil.NewGETRequest(t)
	require.NoError(t, app.HealthCheck(req))

	var data map[string]string
	testutil.ParseEnvelopeResponse(t, req, &data)
	assert.Equal(t, "ok", data["status"])
}

func TestReadyCheck(t *testing.T) {
	t.Parallel()

	rdb, mr := testutil.SetupTestRedis(t)
	app, _ := adminApp(t)
	app.Redis = rdb

	req := testutil.NewGETRequest(t)
	require.NoError(t, app.ReadyCheck(req))
	require.Equal(t, fasthttp.StatusOK, testutil.GetResponseStatusCode(req))

	var data map[string]string
	testutil.ParseEnvelopeResponse(t, req, &data)
	assert.Equal(t, "ok", data["redis"])

	mr.Close()
	req = testutil.NewGETRequest(t)
	require.NoError(t, app.ReadyCheck(req))
	testutil.AssertErrorResponse(t, req, fasthttp.StatusServiceUnavailable, "Not ready")
	assert.Contains(t, string(testutil.GetResponseBody(req)), `"redis":"unavailable"`)
}

func TestReadyCheck_Database(t *testing.T) {
	db := testutil.SetupTestDB(t)
	app, _ := adminApp(t)
	app.DB = db

	req := testutil.NewGETRequest(t)
	require.NoError(t, app.ReadyCheck(req))
	require.Equal(t, fasthttp.StatusOK, testutil.GetResponseStatusCode(req))
	assert.Contains(t, string(testutil.GetResponseBody(req)), `"database":"ok"`)
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	app, _ := adminApp(t)
	app.Metrics.ObserveWebhook("processed")

	req := testutil.NewGETRequest(t)
	req.RequestCtx.Request.SetRequestURI("/metrics")
	require.NoError(t, app.MetricsHandler()(req))
	assert.Equal(t, fasthttp.StatusOK, testutil.GetResponseStatusCode(req))
	assert.Contains(t, string(testutil.GetResponseBody(req)), `queuebot_webhook_events_total{result="processed"} 1`)
}

func TestWebSocketHandler_RequiresCredentials(t *testing.T) {
	t.Parallel()

	app, _ := adminApp(t)
	app.Config.JWT.Secret = "test-secret"

	req := testutil.NewGETRequest(t)
	req.RequestCtx.Request.SetRequestURI("/ws")
	require.NoError(t, app.WebSocketHandler(req))
	assert.Equal(t, fasthttp.StatusUnauthorized, testutil.GetResponseStatusCode(req))

	req = testutil.NewGETRequest(t)
	req.RequestCtx.Request.SetRequestURI("/ws?token=garbage")
	require.NoError(t, app.WebSocketHandler(req))
	testutil.AssertErrorResponse(t, req, fasthttp.StatusUnauthorized, "Invalid or expired token")
}
