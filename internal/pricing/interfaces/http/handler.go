package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/lsmc/internal/pricing/application"
	"github.com/wyfcoding/lsmc/internal/pricing/domain"
	"github.com/wyfcoding/lsmc/pkg/config"
	"github.com/wyfcoding/lsmc/pkg/logger"
)

// HTTP 处理器
// 负责处理与美式期权 LSMC 定价相关的 HTTP 请求
type PricingHandler struct {
	svc      *application.PricingService
	defaults domain.SimulationParameters
	limits   config.RequestLimitConfig
}

// 创建 HTTP 处理器实例，defaults 为请求未给出字段时使用的参数，limits 约束单次请求的规模
func NewPricingHandler(svc *application.PricingService, defaults domain.SimulationParameters, limits config.RequestLimitConfig) *PricingHandler {
	return &PricingHandler{svc: svc, defaults: defaults, limits: limits}
}

// 注册路由
// 将处理器方法绑定到 Gin 路由引擎
func (h *PricingHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/pricing/american/lsmc")
	{
		api.POST("", h.PriceAmericanPut)
		api.GET("/:symbol/latest", h.GetLatest)
		api.GET("/:symbol/history", h.GetHistory)
	}
}

// PriceAmericanPut 运行一次 LSMC 定价，空请求体使用默认参数
func (h *PricingHandler) PriceAmericanPut(c *gin.Context) {
	var req application.PricingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorWithStatus(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
	}

	cmd := req.Command(h.defaults)
	if err := application.CheckRequestLimits(h.limits, cmd.Params); err != nil {
		writePricingError(c, err)
		return
	}
	result, err := h.svc.PriceAmericanPut(c.Request.Context(), cmd)
	if err != nil {
		writePricingError(c, err)
		return
	}
	success(c, application.NewPricingResponse(result))
}

// GetLatest 获取标的最新定价结果
func (h *PricingHandler) GetLatest(c *gin.Context) {
	symbol := c.Param("symbol")
	result, err := h.svc.GetLatest(c.Request.Context(), symbol)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	if result == nil {
		errorWithStatus(c, http.StatusNotFound, "NOT_FOUND", "no pricing result for "+symbol)
		return
	}
	success(c, application.NewPricingResponse(result))
}

// GetHistory 获取标的定价历史，limit 由查询参数给出
func (h *PricingHandler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errorWithStatus(c, http.StatusBadRequest, "BAD_REQUEST", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	results, err := h.svc.GetHistory(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	success(c, gin.H{
		"symbol":  c.Param("symbol"),
		"count":   len(results),
		"results": results,
	})
}

func writePricingError(c *gin.Context, err error) {
	code := application.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case application.ErrorCodeInvalidConfiguration:
		status = http.StatusBadRequest
	case application.ErrorCodeNumericalOverflow:
		status = http.StatusUnprocessableEntity
	case application.ErrorCodeCanceled:
		status = http.StatusServiceUnavailable
	default:
		logger.Error(c.Request.Context(), "Failed to price american put", "error", err)
	}

	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		c.JSON(status, gin.H{
			"code":    code,
			"message": err.Error(),
			"field":   cfgErr.Field,
		})
		return
	}
	errorWithStatus(c, status, code, err.Error())
}

func writeQueryError(c *gin.Context, err error) {
	if errors.Is(err, application.ErrHistoryDisabled) {
		errorWithStatus(c, http.StatusNotImplemented, "HISTORY_DISABLED", err.Error())
		return
	}
	logger.Error(c.Request.Context(), "Failed to query pricing results", "error", err)
	errorWithStatus(c, http.StatusInternalServerError, application.ErrorCodeInternal, err.Error())
}
