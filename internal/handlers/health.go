package handlers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"github.com/zerodha/fastglue"
)

const readyTimeout = 3 * time.Second

// HealthCheck reports that the process is up
func (a *App) HealthCheck(r *fastglue.Request) error {
	return r.SendEnvelope(map[string]string{"status": "ok"})
}

// ReadyCheck pings the database and redis
func (a *App) ReadyCheck(r *fastglue.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if a.DB != nil {
		checks["database"] = "ok"
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			a.Log.Error("Database not ready", "error", err)
			checks["database"] = "unavailable"
			ready = false
		}
	}

	if a.Redis != nil {
		checks["redis"] = "ok"
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Log.Error("Redis not ready", "error", err)
			checks["redis"] = "unavailable"
			ready = false
		}
	}

	if !ready {
		return r.SendErrorEnvelope(fasthttp.StatusServiceUnavailable, "Not ready", checks, "")
	}
	return r.SendEnvelope(checks)
}

// MetricsHandler serves the prometheus registry
func (a *App) MetricsHandler() fastglue.FastRequestHandler {
	gatherer := a.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return func(r *fastglue.Request) error {
		h(r.RequestCtx)
		return nil
	}
}
