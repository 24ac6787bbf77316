package handler

import (
	"errors"

	"github.com/bitfantasy/invoiceflow/internal/service"
	"github.com/gin-gonic/gin"
)

// OrgHandler 组织处理器
type OrgHandler struct {
	svc *service.OrgService
}

// NewOrgHandler 创建组织处理器
func NewOrgHandler(svc *service.OrgService) *OrgHandler {
	return &OrgHandler{svc: svc}
}

// Get 获取当前组织详情
// GET /api/v1/organization
func (h *OrgHandler) Get(c *gin.Context) {
	org, err := h.svc.Get(c.Request.Context(), GetOrgID(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, org)
}

// Update 更新组织设置（仅管理员）
// PUT /api/v1/organization
func (h *OrgHandler) Update(c *gin.Context) {
	var req service.UpdateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	org, err := h.svc.Update(c.Request.Context(), GetOrgID(c), &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, org)
}

// ListMembers 列出组织成员
// GET /api/v1/organization/members
func (h *OrgHandler) ListMembers(c *gin.Context) {
	members, err := h.svc.ListMembers(c.Request.Context(), GetOrgID(c))
	if err != nil {
		InternalError(c, "获取成员列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"members": members})
}

// InviteMember 邀请成员（仅管理员）
// POST /api/v1/organization/members
func (h *OrgHandler) InviteMember(c *gin.Context) {
	var req service.InviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.svc.InviteMember(c.Request.Context(), GetOrgID(c), GetActor(c), &req)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			Error(c, 40910, err.Error())
			return
		}
		HandleServiceError(c, err)
		return
	}
	Created(c, user)
}

// RemoveMember 移除成员（仅管理员）
// DELETE /api/v1/organization/members/:userId
func (h *OrgHandler) RemoveMember(c *gin.Context) {
	err := h.svc.RemoveMember(c.Request.Context(), GetOrgID(c), GetActor(c), c.Param("userId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{"removed": true})
}
