// Package http 交易上下文的 HTTP 接口
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cryptocustody/internal/trading/application"
	"github.com/wyfcoding/cryptocustody/internal/trading/domain"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
	"github.com/wyfcoding/cryptocustody/pkg/utils"
)

type Handler struct {
	service *application.TradingService
}

func NewHandler(service *application.TradingService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes 注册用户侧路由，要求登录
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/trade")
	{
		g.POST("", h.ExecuteTrade)
		g.GET("/history", h.TradeHistory)
	}
}

// RegisterPublicRoutes 注册公开路由，报价无需登录
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/market/prices", h.Prices)
}

type TradeReq struct {
	Symbol string `json:"symbol" binding:"required"`
	Side   string `json:"side" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) ExecuteTrade(c *gin.Context) {
	var req TradeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	userID := c.GetString("user_id")
	trade, err := h.service.ExecuteTrade(c.Request.Context(), userID, req.Symbol, domain.TradeSide(req.Side), amount)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trade": trade})
}

func (h *Handler) TradeHistory(c *gin.Context) {
	userID := c.GetString("user_id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	p := utils.NewPagination(page, pageSize, 0)

	trades, err := h.service.TradeHistory(c.Request.Context(), userID, p.Limit(), p.Offset())
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (h *Handler) Prices(c *gin.Context) {
	quotes, err := h.service.Prices(c.Request.Context())
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": quotes})
}
