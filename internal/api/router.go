package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/branchwise/branchwise/internal/cache"
	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/pkg/logging"
)

// Options holds the router settings taken from config
type Options struct {
	DefaultDepth int
	DepthLimit   int
}

// Router sets up API routes
type Router struct {
	handler *JSONRPCHandler
	service *content.Service
	cache   *cache.Cache
	limiter *cache.Limiter
	opts    Options
	logger  *zap.Logger
}

// NewRouter creates a new API router. limiter may be nil.
func NewRouter(service *content.Service, redisCache *cache.Cache, limiter *cache.Limiter, opts Options) *Router {
	router := &Router{
		handler: NewJSONRPCHandler(),
		service: service,
		cache:   redisCache,
		limiter: limiter,
		opts:    opts,
		logger:  logging.GetLogger().With(zap.String("component", "api-router")),
	}

	router.registerMethods()

	return router
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	// JSON-RPC endpoint
	engine.POST("/", r.handler.Handle)
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	contentAPI := NewContentAPI(r.service)
	lineageAPI := NewLineageAPI(r.service.Store(), r.opts.DefaultDepth, r.opts.DepthLimit)

	// Content API
	r.handler.RegisterMethod("content.create", contentAPI.Create)
	r.handler.RegisterMethod("content.get", contentAPI.Get)
	r.handler.RegisterMethod("content.children", contentAPI.Children)
	r.handler.RegisterMethod("content.edit", contentAPI.Edit)

	// Engagement, throttled per user
	r.handler.RegisterMethod("content.toggle_like", r.throttled("content.toggle_like", contentAPI.ToggleLike))
	r.handler.RegisterMethod("content.report", r.throttled("content.report", contentAPI.Report))
	r.handler.RegisterMethod("content.unreport", r.throttled("content.unreport", contentAPI.Unreport))

	// Lineage API
	r.handler.RegisterMethod("lineage.get", lineageAPI.Get)
	r.handler.RegisterMethod("lineage.versions", lineageAPI.Versions)
	r.handler.RegisterMethod("lineage.splice", lineageAPI.Splice)
	r.handler.RegisterMethod("lineage.save", lineageAPI.Save)
	r.handler.RegisterMethod("lineage.list_saved", lineageAPI.ListSaved)
	r.handler.RegisterMethod("lineage.delete_saved", lineageAPI.DeleteSaved)

	// Admin API
	r.handler.RegisterMethod("admin.delete_cascade", contentAPI.DeleteCascade)
}

// throttled counts the call against the caller's user_id before running next
func (r *Router) throttled(method string, next MethodHandler) MethodHandler {
	return func(c *gin.Context, params json.RawMessage) (interface{}, error) {
		var p struct {
			UserID string `json:"user_id"`
		}
		// Malformed params are reported by next
		if err := json.Unmarshal(params, &p); err == nil && p.UserID != "" {
			if !r.limiter.Allow(c.Request.Context(), method, p.UserID) {
				r.logger.Debug("Engagement throttled",
					zap.String("method", method),
					zap.String("user_id", p.UserID))
				return nil, ErrThrottled
			}
		}
		return next(c, params)
	}
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status":  "OK",
		"service": "branchwise-api",
	}

	if err := r.service.Store().Health(ctx); err != nil {
		r.logger.Warn("Store health check failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		body["status"] = "UNAVAILABLE"
		body["store"] = err.Error()
	}
	if r.cache.Enabled() {
		if err := r.cache.Health(ctx); err != nil {
			r.logger.Warn("Cache health check failed", zap.Error(err))
			body["cache"] = err.Error()
		}
	}

	c.JSON(status, body)
}
