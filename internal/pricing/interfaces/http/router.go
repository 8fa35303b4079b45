package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/lsmc/pkg/config"
	"github.com/wyfcoding/lsmc/pkg/metrics"
	"github.com/wyfcoding/lsmc/pkg/middleware"
	"github.com/wyfcoding/lsmc/pkg/ratelimit"
)

// RouterOptions 路由构建选项
type RouterOptions struct {
	ServiceName string
	Version     string
	HTTP        config.HTTPConfig
	Metrics     config.MetricsConfig
	// 为空时使用进程内限流
	RateLimiter ratelimit.RateLimiter
}

// NewRouter 组装中间件、健康检查、指标与定价路由
func NewRouter(h *PricingHandler, m *metrics.Metrics, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware(), middleware.GinLoggingMiddleware())
	if len(opts.HTTP.CORSOrigins) > 0 {
		r.Use(middleware.GinCORSMiddleware(opts.HTTP.CORSOrigins))
	}
	if m != nil {
		r.Use(middleware.GinMetricsMiddleware(m))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": opts.ServiceName,
			"version": opts.Version,
		})
	})
	if m != nil && opts.Metrics.Enabled {
		path := opts.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(m.Handler()))
	}

	api := r.Group("")
	if opts.HTTP.RateLimit.Enabled {
		limiter := opts.RateLimiter
		if limiter == nil {
			limiter = ratelimit.NewMemoryRateLimiter()
		}
		api.Use(middleware.RateLimitMiddleware(limiter, opts.HTTP.RateLimit))
	}
	h.RegisterRoutes(api)
	return r
}
