package entity

import "time"

// 活动类型
const (
	ActionInvoiceCreated    = "invoice_created"
	ActionInvoiceUpdated    = "invoice_updated"
	ActionStatusChanged     = "status_changed"
	ActionInvoiceDeleted    = "invoice_deleted"
	ActionAttachmentAdded   = "attachment_added"
	ActionAttachmentRemoved = "attachment_removed"
	ActionMemberAdded       = "member_added"
	ActionMemberRemoved     = "member_removed"
)

// ActivityLog 组织操作日志，只追加，不更新不删除
type ActivityLog struct {
	ID             string `json:"id" gorm:"primaryKey;size:32"`
	OrganizationID string `json:"organization_id" gorm:"size:32;not null;index:idx_activity_org"`
	Action         string `json:"action" gorm:"size:50;not null"`
	TargetType     string `json:"target_type" gorm:"size:50;not null;index:idx_activity_target"` // invoice/attachment/organization/user
	TargetID       string `json:"target_id" gorm:"size:32;index:idx_activity_target"`
	FromStatus     string `json:"from_status" gorm:"size:20"`
	ToStatus       string `json:"to_status" gorm:"size:20"`

	Details JSONB `json:"details" gorm:"type:jsonb"`

	OperatorID   string    `json:"operator_id" gorm:"size:32"`
	OperatorName string    `json:"operator_name" gorm:"size:100"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
