package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/invoiceflow/internal/config"
	"github.com/bitfantasy/invoiceflow/internal/repository"
	"github.com/bitfantasy/invoiceflow/internal/service"
	"github.com/bitfantasy/invoiceflow/internal/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 处理器集合
type Handlers struct {
	Auth     *AuthHandler
	Invoice  *InvoiceHandler
	Activity *ActivityHandler
	Org      *OrgHandler
	User     *UserHandler
	Events   *EventsHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, hub *sse.Hub, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		Auth:     NewAuthHandler(svc.Auth),
		Invoice:  NewInvoiceHandler(svc.Invoice, logger),
		Activity: NewActivityHandler(svc.Activity),
		Org:      NewOrgHandler(svc.Org),
		User:     NewUserHandler(svc.User),
		Events:   NewEventsHandler(hub),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination 创建分页信息
func NewPagination(page, pageSize, total int) *Pagination {
	totalPages := total / pageSize
	if total%pageSize > 0 {
		totalPages++
	}
	return &Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Unauthorized 未授权响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

// Forbidden 禁止访问响应
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// ValidationFailed 字段校验错误响应，data里带字段错误表
func ValidationFailed(c *gin.Context, fields map[string]string) {
	c.JSON(400, Response{
		Code:    40001,
		Message: "validation failed",
		Data:    gin.H{"fields": fields},
	})
}

// HandleServiceError 把服务层错误映射为HTTP响应
func HandleServiceError(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		ValidationFailed(c, verr.Fields)
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		NotFound(c, "Resource not found")
		return
	}
	InternalError(c, err.Error())
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetOrgID 从上下文获取组织ID
func GetOrgID(c *gin.Context) string {
	orgID, _ := c.Get("org_id")
	if id, ok := orgID.(string); ok {
		return id
	}
	return ""
}

// GetActor 从上下文获取操作者
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{
		ID:   GetUserID(c),
		Name: c.GetString("user_name"),
	}
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
