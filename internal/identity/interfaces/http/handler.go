// Package http 身份上下文的 HTTP 接口
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/cryptocustody/internal/identity/application"
	"github.com/wyfcoding/cryptocustody/internal/identity/domain"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
	"github.com/wyfcoding/cryptocustody/pkg/utils"
)

type Handler struct {
	service *application.IdentityService
}

func NewHandler(service *application.IdentityService) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes 注册公开路由
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	g := r.Group("/auth")
	{
		g.POST("/register", h.Register)
		g.POST("/login", h.Login)
		g.POST("/refresh", h.Refresh)
	}
}

// RegisterRoutes 注册用户侧路由，要求登录
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/user/profile", h.Profile)
}

// RegisterAdminRoutes 注册管理员侧路由
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	g := r.Group("/users")
	{
		g.GET("", h.ListUsers)
		g.PUT("/:id/status", h.UpdateStatus)
		g.PUT("/:id/role", h.UpdateRole)
	}
}

type RegisterReq struct {
	Username   string `json:"username" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	ReferredBy string `json:"referred_by"`
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.ReferredBy)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

type LoginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type RefreshReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Profile(c *gin.Context) {
	user, err := h.service.Profile(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	p := utils.NewPagination(page, pageSize, 0)

	users, total, err := h.service.ListUsers(c.Request.Context(), p.Limit(), p.Offset())
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total})
}

type StatusReq struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.UpdateUserStatus(c.Request.Context(), c.Param("id"), domain.Status(req.Status)); err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

type RoleReq struct {
	Role string `json:"role" binding:"required"`
}

func (h *Handler) UpdateRole(c *gin.Context) {
	var req RoleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.PromoteUser(c.Request.Context(), c.Param("id"), domain.Role(req.Role)); err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
