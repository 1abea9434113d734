// Package http 账务上下文的 HTTP 接口
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cryptocustody/internal/ledger/application"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
	"github.com/wyfcoding/cryptocustody/pkg/utils"
)

type Handler struct {
	engine  *application.Engine
	service *application.LedgerService
}

func NewHandler(engine *application.Engine, service *application.LedgerService) *Handler {
	return &Handler{engine: engine, service: service}
}

// RegisterRoutes 注册用户侧路由，要求登录
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/wallet")
	{
		g.GET("", h.ListWallets)
		g.POST("/deposit", h.RequestDeposit)
		g.POST("/withdraw", h.Transfer)
		g.GET("/transactions", h.TransactionHistory)
		g.GET("/reconciliation", h.Reconcile)
	}
}

// RegisterAdminRoutes 注册管理员侧路由
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	g := r.Group("/deposits")
	{
		g.GET("/pending", h.ListPendingDeposits)
		g.POST("/:id/approve", h.ApproveDeposit)
		g.DELETE("/:id", h.DeleteDeposit)
	}
}

func (h *Handler) ListWallets(c *gin.Context) {
	userID := c.GetString("user_id")
	wallets, err := h.service.WalletsOf(c.Request.Context(), userID)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

type DepositReq struct {
	Currency string `json:"currency" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	TxID     string `json:"txid" binding:"required"`
}

func (h *Handler) RequestDeposit(c *gin.Context) {
	var req DepositReq
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
	deposit, err := h.engine.RequestDeposit(c.Request.Context(), userID, req.Currency, amount, req.TxID)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"deposit": deposit})
}

type TransferReq struct {
	Currency string `json:"currency" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Address  string `json:"address" binding:"required"`
}

func (h *Handler) Transfer(c *gin.Context) {
	var req TransferReq
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
	result, err := h.engine.Transfer(c.Request.Context(), userID, req.Currency, amount, req.Address)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"route": result.Route}
	if result.Withdrawal != nil {
		resp["withdrawal"] = result.Withdrawal
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) TransactionHistory(c *gin.Context) {
	userID := c.GetString("user_id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	p := utils.NewPagination(page, pageSize, 0)

	views, err := h.service.TransactionHistory(c.Request.Context(), userID, p.Limit(), p.Offset())
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": views})
}

func (h *Handler) Reconcile(c *gin.Context) {
	userID := c.GetString("user_id")
	reports, err := h.service.Reconcile(c.Request.Context(), userID)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *Handler) ListPendingDeposits(c *gin.Context) {
	deposits, err := h.service.PendingDeposits(c.Request.Context())
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": deposits})
}

func (h *Handler) ApproveDeposit(c *gin.Context) {
	deposit, err := h.engine.ApproveDeposit(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposit": deposit})
}

func (h *Handler) DeleteDeposit(c *gin.Context) {
	if err := h.engine.DeleteDeposit(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
