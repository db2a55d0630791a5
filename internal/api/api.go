// Package api exposes the engine over HTTP. Callers are identified by the
// X-Member-ID header, which an upstream gateway sets after authentication;
// administrative routes are only reachable from the configured networks.
package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sendhelp/internal/engine"
	"sendhelp/internal/utils"
)

const (
	memberHeader    = "X-Member-ID"
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	callerKey       = "caller"
)

type Options struct {
	Logger     *slog.Logger
	Admin      *utils.Allowlist
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

type Handler struct {
	Engine   *engine.Engine
	Logger   *slog.Logger
	Admin    *utils.Allowlist
	Gatherer prometheus.Gatherer
	requests *prometheus.CounterVec
}

func NewHandler(e *engine.Engine, opts Options) *Handler {
	h := &Handler{
		Engine:   e,
		Logger:   opts.Logger,
		Admin:    opts.Admin,
		Gatherer: opts.Gatherer,
	}
	if h.Logger == nil {
		h.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h.requests = promauto.With(opts.Registerer).NewCounterVec(prometheus.CounterOpts{
		Namespace: "sendhelp",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"method", "route", "status"})
	return h
}

// NewRouter builds a gin engine with the middleware chain and every route.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	// Client addresses come from the connection, never from forwarded headers.
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery(), h.requestID, h.accessLog)
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/members", h.register)
	r.GET("/members/:id", h.getMember)
	r.GET("/members/:id/eligibility", h.eligibility)

	member := r.Group("/", h.requireMember)
	member.POST("/members/:id/advance", h.advance)
	member.GET("/members/:id/obligations", h.listObligations)
	member.POST("/obligations", h.assign)
	member.POST("/obligations/unblock", h.assignUnblock)
	member.GET("/obligations/:id", h.getObligation)
	member.POST("/obligations/:id/proof", h.submitProof)
	member.POST("/obligations/:id/confirm", h.confirm)
	member.POST("/obligations/:id/dispute", h.dispute)

	admin := r.Group("/admin", h.requireAdmin)
	admin.PATCH("/members/:id/flags", h.setFlags)
	admin.POST("/obligations/:id/cancel", h.cancel)
	admin.POST("/obligations/:id/force-confirm", h.forceConfirm)
}

func (h *Handler) requestID(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(requestIDHeader, id)
	c.Next()
}

func (h *Handler) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	h.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
	h.Logger.Debug("http request",
		"method", c.Request.Method, "route", route, "status", status,
		"duration", time.Since(start), "request_id", c.GetString(requestIDKey))
}

func (h *Handler) requireMember(c *gin.Context) {
	raw := c.GetHeader(memberHeader)
	id, err := strconv.ParseUint(raw, 10, 64)
	if raw == "" || err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
			Error: "missing or malformed " + memberHeader,
			Code:  "unauthenticated",
		})
		return
	}
	c.Set(callerKey, uint(id))
	c.Next()
}

func (h *Handler) requireAdmin(c *gin.Context) {
	ip := c.ClientIP()
	if !h.Admin.Allows(ip) {
		h.Logger.Warn("admin route refused", "ip", ip, "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: "forbidden", Code: "forbidden"})
		return
	}
	c.Next()
}

func caller(c *gin.Context) uint {
	return c.GetUint(callerKey)
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "member id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// self resolves the path member and insists it is the caller.
func (h *Handler) self(c *gin.Context) (uint, bool) {
	id, ok := pathID(c)
	if !ok {
		return 0, false
	}
	if id != caller(c) {
		h.fail(c, engine.ErrNotParticipant)
		return 0, false
	}
	return id, true
}
