package handlers

import (
	"context"

	fws "github.com/fasthttp/websocket"
	"github.com/shridarpatil/queuebot/internal/middleware"
	"github.com/shridarpatil/queuebot/internal/queue"
	"github.com/shridarpatil/queuebot/internal/websocket"
	"github.com/valyala/fasthttp"
	"github.com/zerodha/fastglue"
)

var upgrader = fws.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
		return true
	},
}

// WebSocketHandler upgrades a dashboard connection. Browsers cannot set
// headers on websocket requests, so credentials come as ?token= or ?api_key=.
func (a *App) WebSocketHandler(r *fastglue.Request) error {
	args := r.RequestCtx.QueryArgs()
	if token := string(args.Peek("token")); token != "" {
		r.RequestCtx.Request.Header.Set("Authorization", "Bearer "+token)
	}
	if key := string(args.Peek("api_key")); key != "" {
		r.RequestCtx.Request.Header.Set("X-API-Key", key)
	}
	if middleware.Auth(a.Config.JWT.Secret, a.DB)(r) == nil {
		return nil
	}

	orgID, _ := middleware.GetOrganizationID(r)
	principal, _ := middleware.GetPrincipalID(r)

	err := upgrader.Upgrade(r.RequestCtx, func(conn *fws.Conn) {
		client := websocket.NewClient(a.WSHub, conn, principal, orgID)
		a.WSHub.Register(client)
		go client.WritePump()
		client.ReadPump()
	})
	if err != nil {
		a.Log.Error("WebSocket upgrade failed", "error", err)
	}
	return nil
}

// StartTicketEventSubscriber forwards ticket events published by any
// process to this server's dashboards.
func (a *App) StartTicketEventSubscriber(ctx context.Context) error {
	return queue.SubscribeTicketEvents(ctx, a.Redis, a.Log, a.WSHub.BroadcastTicketEvent)
}
