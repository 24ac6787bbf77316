package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceRepository 发票仓库。所有查询都按组织ID限定，
// 发票不可能从其他组织的路径下读到。
type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// FindAllByOrg 拉取组织下全部发票（过滤/排序/分页在服务层内存中做）
func (r *InvoiceRepository) FindAllByOrg(ctx context.Context, orgID string) ([]entity.Invoice, error) {
	var items []entity.Invoice
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// FindByID 根据(组织ID, 发票ID)查找发票
func (r *InvoiceRepository) FindByID(ctx context.Context, orgID, id string) (*entity.Invoice, error) {
	var inv entity.Invoice
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// Create 创建发票
func (r *InvoiceRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(inv).Error
}

// Update 保存发票（含附件关联）
func (r *InvoiceRepository) Update(ctx context.Context, inv *entity.Invoice) error {
	inv.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(inv).Error
}

// UpdateFields 浅合并部分字段并盖updated_at时间戳
func (r *InvoiceRepository) UpdateFields(ctx context.Context, orgID, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).
		Model(&entity.Invoice{}).
		Where("organization_id = ? AND id = ?", orgID, id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除发票及其附件记录
func (r *InvoiceRepository) Delete(ctx context.Context, orgID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&entity.Attachment{}).Error; err != nil {
			return err
		}
		result := tx.Where("organization_id = ? AND id = ?", orgID, id).Delete(&entity.Invoice{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CountByOrg 统计组织发票数
func (r *InvoiceRepository) CountByOrg(ctx context.Context, orgID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Invoice{}).
		Where("organization_id = ?", orgID).
		Count(&count).Error
	return count, err
}

// AddAttachments 追加附件记录
func (r *InvoiceRepository) AddAttachments(ctx context.Context, atts []entity.Attachment) error {
	if len(atts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&atts).Error
}

// FindAttachment 查找附件记录
func (r *InvoiceRepository) FindAttachment(ctx context.Context, invoiceID, attachmentID string) (*entity.Attachment, error) {
	var att entity.Attachment
	err := r.db.WithContext(ctx).
		Where("invoice_id = ? AND id = ?", invoiceID, attachmentID).
		First(&att).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &att, nil
}

// DeleteAttachment 删除附件记录
func (r *InvoiceRepository) DeleteAttachment(ctx context.Context, invoiceID, attachmentID string) error {
	result := r.db.WithContext(ctx).
		Where("invoice_id = ? AND id = ?", invoiceID, attachmentID).
		Delete(&entity.Attachment{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
