// Package httptransport exposes the checkout pipeline over HTTP with gin.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/ratelimit"
	"storefront-checkout/internal/infrastructure/storage"
	"storefront-checkout/internal/pkg/logging"
	"storefront-checkout/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"
	actorKey        = "actor"
)

// EventVerifier authenticates a raw processor notification.
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (domain.PaymentEvent, error)
}

type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

type Deps struct {
	Orders     service.OrderService
	Delivery   service.DeliveryService
	Settlement service.SettlementService
	Verifier   EventVerifier
	Limiter    ratelimit.Limiter
	Files      storage.FileStore
	Auth       Authenticator
	// Health may be nil for the memory backend.
	Health         HealthChecker
	MetricsHandler http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Server struct {
	Deps
	log *zap.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	s := &Server{Deps: deps, log: deps.Logger.Named("http")}
	if s.MetricsHandler == nil {
		s.MetricsHandler = promhttp.Handler()
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestContext())

	corsCfg := cors.DefaultConfig()
	if len(deps.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = deps.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, headerUserID, headerUserRole, headerRequestID)
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(s.MetricsHandler))

	api := r.Group("/api")
	api.POST("/webhooks/payments", s.paymentWebhook)
	api.GET("/downloads/:token", s.download)

	authed := api.Group("", s.authenticate())
	authed.POST("/checkout", s.checkout)
	authed.GET("/orders/:id", s.getOrder)
	authed.GET("/orders/:id/downloads", s.orderDownloads)
	authed.POST("/orders/:id/payment-intent", s.createPaymentIntent)
	authed.POST("/orders/:id/cancel", s.cancelOrder)

	admin := authed.Group("/admin")
	admin.PATCH("/orders/:id", s.updateFulfillment)
	admin.POST("/deliveries/:id/revoke", s.revokeGrant)

	return r
}

// requestContext injects a request id, a server span and a request-scoped
// logger, then writes one access log line.
func (s *Server) requestContext() gin.HandlerFunc {
	tracer := otel.Tracer("storefront-checkout/http")
	prop := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(headerRequestID, rid)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx := prop.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.route", route)))
		defer span.End()

		fields := []zap.Field{zap.String("request_id", rid)}
		if sc := span.SpanContext(); sc.IsValid() {
			fields = append(fields, zap.String("trace_id", sc.TraceID().String()), zap.String("span_id", sc.SpanID().String()))
		}
		reqLog := s.log.With(fields...)
		c.Request = c.Request.WithContext(logging.ContextWithLogger(ctx, reqLog))

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		reqLog.Info("http_access",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()))
	}
}

func (s *Server) health(c *gin.Context) {
	if s.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "up", "store": "memory"})
		return
	}
	stats := s.Health.Health(c.Request.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}

func actorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(domain.Actor); ok {
			return a
		}
	}
	return domain.Actor{}
}
