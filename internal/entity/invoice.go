package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// 发票状态
const (
	InvoiceStatusDraft    = "draft"
	InvoiceStatusPending  = "pending"
	InvoiceStatusApproved = "approved"
	InvoiceStatusRejected = "rejected"
	InvoiceStatusPaid     = "paid"
)

// ValidInvoiceStatus 判断是否为合法发票状态
func ValidInvoiceStatus(s string) bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusPending, InvoiceStatusApproved,
		InvoiceStatusRejected, InvoiceStatusPaid:
		return true
	}
	return false
}

// Invoice 发票
type Invoice struct {
	ID             string          `json:"id" gorm:"primaryKey;size:32"`
	OrganizationID string          `json:"organization_id" gorm:"size:32;not null;index:idx_invoices_org"`
	InvoiceNumber  string          `json:"invoice_number" gorm:"size:50;not null;index"`
	VendorName     string          `json:"vendor_name" gorm:"size:200;not null"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(15,2);not null"`
	Currency       string          `json:"currency" gorm:"size:10;default:USD"`
	InvoiceDate    time.Time       `json:"invoice_date" gorm:"not null"`
	DueDate        *time.Time      `json:"due_date"`
	Description    string          `json:"description" gorm:"type:text"`
	Status         string          `json:"status" gorm:"size:20;default:pending;index"` // draft/pending/approved/rejected/paid
	Notes          string          `json:"notes" gorm:"type:text"`

	CustomFields CustomFieldList `json:"custom_fields" gorm:"type:jsonb"`
	Reviewers    StringList      `json:"reviewers" gorm:"type:jsonb"` // user ids

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 状态变更审计
	StatusUpdatedBy string     `json:"status_updated_by" gorm:"size:32"`
	StatusUpdatedAt *time.Time `json:"status_updated_at"`
	StatusNote      string     `json:"status_note" gorm:"type:text"`

	Attachments []Attachment `json:"attachments" gorm:"foreignKey:InvoiceID"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// Attachment 发票附件，上传成功后不可变
type Attachment struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	InvoiceID   string    `json:"invoice_id" gorm:"size:32;not null;index"`
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	ContentType string    `json:"content_type" gorm:"size:100"`
	Size        int64     `json:"size"`
	ObjectPath  string    `json:"object_path" gorm:"size:512;not null"`
	URL         string    `json:"url" gorm:"size:1024"`
	UploadedBy  string    `json:"uploaded_by" gorm:"size:32"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func (Attachment) TableName() string {
	return "invoice_attachments"
}
