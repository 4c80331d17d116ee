package httpserver

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/core/service"
	"github.com/yndnr/chatmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
	"github.com/yndnr/chatmesh-go/pkg/token"
)

// Session credential headers. Browsers cannot set headers on an
// EventSource, so the stream route also accepts the query parameters.
const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
	QueryUserID     = "user_id"
	QuerySessionID  = "session_id"
)

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is the
// outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID assigns every request an id, reusing X-Request-ID when the
// caller sent one, and stores it on the context for logging.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = ulid.Make().String()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.Error("panic recovered",
						"request_id", logger.RequestIDFromContext(r.Context()),
						"error", err,
						"path", r.URL.Path,
					)
					handler.WriteError(w, r, http.StatusInternalServerError,
						domain.ErrInternalServer.Code, domain.ErrInternalServer.Message)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Audit logs each request and records the request metrics. The route label
// is the matched ServeMux pattern, so Audit must wrap the mux without any
// middleware in between that replaces the request.
func Audit(log logger.Logger, metrics *metric.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			if metrics != nil {
				metrics.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
				metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
			}

			attrs := []any{
				"request_id", logger.RequestIDFromContext(r.Context()),
				"method", r.Method,
				"route", route,
				"status", wrapped.statusCode,
				"duration_ms", duration.Milliseconds(),
				"client_ip", handler.ClientIP(r),
			}
			switch {
			case wrapped.statusCode >= 500:
				log.Error("request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.Warn("request completed with client error", attrs...)
			default:
				log.Debug("request completed", attrs...)
			}
		})
	}
}

// RateLimit applies the per-client HTTP budget through the shared limiter.
// A limiter failure lets the request through.
func RateLimit(limiter *service.RateLimiter, max int, window time.Duration, log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil || max <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Check(r.Context(), "http:"+handler.ClientIP(r), max, window)
			if err != nil {
				log.Warn("http rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			handler.SetRateLimitHeaders(w, res)
			if !res.Allowed {
				handler.WriteError(w, r, http.StatusTooManyRequests, domain.ErrRateLimited.Code, domain.ErrRateLimited.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionAuth validates the caller's (user id, session id) pair and puts
// the session on the request context.
func SessionAuth(sessions *service.SessionCoordinator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, sessionID := sessionCredentials(r)
			res := sessions.Validate(r.Context(), userID, sessionID)
			if !res.Valid {
				code := domain.GetErrorCode(res.Err())
				status := handler.ErrorCodeToHTTPStatus(code)
				if status < 500 {
					status = http.StatusUnauthorized
				}
				handler.WriteError(w, r, status, code, res.Message)
				return
			}

			ctx := handler.WithSession(r.Context(), res.Session)
			ctx = logger.WithUserID(ctx, res.Session.UserID)
			if room := r.PathValue("room_id"); room != "" {
				ctx = logger.WithRoomID(ctx, room)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionCredentials(r *http.Request) (userID, sessionID string) {
	userID = r.Header.Get(HeaderUserID)
	sessionID = r.Header.Get(HeaderSessionID)
	if userID == "" && sessionID == "" {
		q := r.URL.Query()
		userID, sessionID = q.Get(QueryUserID), q.Get(QuerySessionID)
	}
	return userID, sessionID
}

// AdminAuth requires "Authorization: Bearer <token>". An empty token
// disables the guarded routes.
func AdminAuth(adminToken string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" {
				handler.WriteError(w, r, http.StatusForbidden, domain.ErrForbidden.Code, "admin api disabled")
				return
			}
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !token.Equal(presented, adminToken) {
				handler.WriteError(w, r, http.StatusUnauthorized, domain.ErrUnauthorized.Code, domain.ErrUnauthorized.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NetworkACL restricts a route to the given IPs and CIDR blocks. Invalid
// entries are skipped; an empty list allows everyone.
func NetworkACL(allowList []string, log logger.Logger) Middleware {
	var networks []*net.IPNet
	var singleIPs []net.IP
	for _, entry := range allowList {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				log.Warn("invalid CIDR in allowlist", "entry", entry, "error", err)
				continue
			}
			networks = append(networks, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			log.Warn("invalid IP in allowlist", "entry", entry)
			continue
		}
		singleIPs = append(singleIPs, ip)
	}

	return func(next http.Handler) http.Handler {
		if len(networks) == 0 && len(singleIPs) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := handler.ClientIP(r)
			if ip := net.ParseIP(clientIP); ip != nil {
				for _, allowed := range singleIPs {
					if allowed.Equal(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
				for _, n := range networks {
					if n.Contains(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			log.Warn("request denied by network ACL", "client_ip", clientIP, "path", r.URL.Path)
			handler.WriteError(w, r, http.StatusForbidden, domain.ErrForbidden.Code, "address not allowed")
		})
	}
}

// CORS adds Cross-Origin Resource Sharing headers and answers preflight
// requests. An empty origin list allows every origin.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := len(allowedOrigins) == 0
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User-ID, X-Session-ID")
				w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter captures the status code. It forwards Flush so that the
// event stream keeps working behind Audit.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.wroteHeader = true
		f.Flush()
	}
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
