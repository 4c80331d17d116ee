package httpserver

import (
	"net/http"
	"time"

	"github.com/yndnr/chatmesh-go/internal/core/service"
	"github.com/yndnr/chatmesh-go/internal/delivery"
	"github.com/yndnr/chatmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Sessions *service.SessionCoordinator
	Messages *service.MessageService
	Limiter  *service.RateLimiter
	Hub      *delivery.Hub
	Store    handler.Pinger
	Metrics  *metric.Registry
	Logger   logger.Logger

	// HTTPRateMax requests per HTTPRateWindow are allowed per client IP.
	// Zero disables the limit.
	HTTPRateMax    int
	HTTPRateWindow time.Duration

	// AdminToken guards session management and POST /rooms/{room_id}/events.
	// Those routes are called by the application backend, never by chat
	// clients directly.
	AdminToken string
	// AdminAllowList restricts the admin and metrics routes.
	AdminAllowList []string
	// CORSOrigins lists allowed browser origins (empty = all).
	CORSOrigins []string

	// Heartbeat is the event stream keep-alive interval.
	Heartbeat time.Duration
}

// NewRouter creates the HTTP router with all routes and middleware.
//
// Order: Recover -> CORS -> RequestID -> Audit -> RateLimit -> mux -> route chain.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	h := handler.New(handler.Config{
		Sessions:  cfg.Sessions,
		Messages:  cfg.Messages,
		Hub:       cfg.Hub,
		Store:     cfg.Store,
		Logger:    log,
		Heartbeat: cfg.Heartbeat,
	})

	authed := SessionAuth(cfg.Sessions)
	admin := func(fn http.HandlerFunc) http.Handler {
		return Chain(fn, NetworkACL(cfg.AdminAllowList, log), AdminAuth(cfg.AdminToken))
	}

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /ready", h.HandleReady)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", NetworkACL(cfg.AdminAllowList, log)(cfg.Metrics.Handler()))
	}

	// Sessions
	mux.Handle("POST /sessions", admin(h.HandleCreateSession))
	mux.Handle("POST /sessions/validate", admin(h.HandleValidateSession))
	mux.Handle("POST /sessions/touch", admin(h.HandleTouchSession))
	mux.Handle("POST /sessions/remove", admin(h.HandleRemoveSession))

	// Messaging
	mux.Handle("POST /rooms/{room_id}/messages", authed(http.HandlerFunc(h.HandleSendMessage)))
	mux.Handle("POST /rooms/{room_id}/read", authed(http.HandlerFunc(h.HandleMarkRead)))
	mux.Handle("POST /messages/{id}/reactions", authed(http.HandlerFunc(h.HandleReact)))
	mux.Handle("GET /rooms/{room_id}/stream", authed(http.HandlerFunc(h.HandleStream)))

	// Room lifecycle fan-out
	mux.Handle("POST /rooms/{room_id}/events", admin(h.HandleRoomEvent))

	return Chain(mux,
		Recover(log),
		CORS(cfg.CORSOrigins),
		RequestID(),
		Audit(log, cfg.Metrics),
		RateLimit(cfg.Limiter, cfg.HTTPRateMax, cfg.HTTPRateWindow, log),
	)
}
