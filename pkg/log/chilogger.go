package log

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shovel-house/shovel-api/pkg/requestid"
	"go.uber.org/zap"
)

// Logger logs every request. Health checks go to debug.
func Logger(l *zap.Logger, name string) func(next http.Handler) http.Handler {
	return requestLogger(l, name, func(r *http.Request, status int) bool { return true })
}

// ConditionalLogger logs every request at debug/trace level. Otherwise only
// failed requests and webhook deliveries are logged; the latter move money
// and are always worth a line.
func ConditionalLogger(logLevel string, l *zap.Logger, name string) func(next http.Handler) http.Handler {
	level := strings.ToLower(logLevel)
	if level == "debug" || level == "trace" {
		l.Named(name).Info("HTTP request logging enabled (debug mode)")
		return Logger(l, name)
	}

	l.Named(name).Info("HTTP request logging limited to failures and webhooks")
	return requestLogger(l, name, func(r *http.Request, status int) bool {
		return status >= 400 || isWebhook(r.URL.Path)
	})
}

func requestLogger(l *zap.Logger, name string, keep func(r *http.Request, status int) bool) func(next http.Handler) http.Handler {
	if l == nil {
		panic("log: request logger needs a *zap.Logger")
	}
	logger := l.WithOptions(zap.AddCallerSkip(1)).Named(name)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if !keep(r, status) {
					return
				}

				fields := []zap.Field{
					zap.String("request_id", requestid.FromRequest(r)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("route", routePattern(r)),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
					zap.String("remote_addr", r.RemoteAddr),
				}

				switch {
				case status >= 500:
					logger.Error("request failed", fields...)
				case status >= 400:
					logger.Warn("request rejected", fields...)
				case isHealthCheck(r.Method, r.URL.Path):
					logger.Debug("request served", fields...)
				default:
					logger.Info("request served", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// routePattern groups requests by route, e.g. /api/v1/jobs/{id}/complete.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func isHealthCheck(method, path string) bool {
	return method == http.MethodGet && path == "/health"
}

func isWebhook(path string) bool {
	return strings.HasPrefix(path, "/webhooks/")
}
