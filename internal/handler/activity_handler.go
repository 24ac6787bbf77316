package handler

import (
	"github.com/bitfantasy/invoiceflow/internal/service"
	"github.com/gin-gonic/gin"
)

// ActivityHandler 操作日志处理器
type ActivityHandler struct {
	svc *service.ActivityService
}

// NewActivityHandler 创建操作日志处理器
func NewActivityHandler(svc *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{svc: svc}
}

// ListByOrg 组织操作日志流，时间倒序
// GET /api/v1/activities
func (h *ActivityHandler) ListByOrg(c *gin.Context) {
	page, pageSize := GetPagination(c)

	logs, total, err := h.svc.ListByOrg(c.Request.Context(), GetOrgID(c), page, pageSize)
	if err != nil {
		InternalError(c, "获取操作日志失败: "+err.Error())
		return
	}

	Success(c, ListResponse{
		Items:      logs,
		Pagination: NewPagination(page, pageSize, int(total)),
	})
}

// ListByInvoice 单张发票的操作日志
// GET /api/v1/invoices/:id/activities
func (h *ActivityHandler) ListByInvoice(c *gin.Context) {
	page, pageSize := GetPagination(c)

	logs, total, err := h.svc.ListByTarget(c.Request.Context(), GetOrgID(c), "invoice", c.Param("id"), page, pageSize)
	if err != nil {
		InternalError(c, "获取操作日志失败: "+err.Error())
		return
	}

	Success(c, ListResponse{
		Items:      logs,
		Pagination: NewPagination(page, pageSize, int(total)),
	})
}
