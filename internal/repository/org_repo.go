package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrgRepository 组织仓库
type OrgRepository struct {
	db *gorm.DB
}

func NewOrgRepository(db *gorm.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

// ProvisionWithAdmin 在一个事务里创建管理员用户、组织和成员关系
func (r *OrgRepository) ProvisionWithAdmin(ctx context.Context, org *entity.Organization, admin *entity.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(admin).Error; err != nil {
			return err
		}
		if err := tx.Create(org).Error; err != nil {
			return err
		}
		admin.OrganizationID = org.ID
		if err := tx.Model(admin).Update("organization_id", org.ID).Error; err != nil {
			return err
		}
		member := &entity.OrgMember{
			ID:             uuid.New().String()[:32],
			OrganizationID: org.ID,
			UserID:         admin.ID,
			Role:           entity.RoleAdmin,
			JoinedAt:       time.Now(),
		}
		return tx.Create(member).Error
	})
}

// Create 创建组织
func (r *OrgRepository) Create(ctx context.Context, org *entity.Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(org).Error
}

// FindByID 根据ID查找组织
func (r *OrgRepository) FindByID(ctx context.Context, id string) (*entity.Organization, error) {
	var org entity.Organization
	err := r.db.WithContext(ctx).
		Preload("Members").
		Preload("Members.User").
		Where("id = ?", id).
		First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// Update 更新组织
func (r *OrgRepository) Update(ctx context.Context, org *entity.Organization) error {
	org.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(org).Error
}

// AddMember 添加成员
func (r *OrgRepository) AddMember(ctx context.Context, m *entity.OrgMember) error {
	if m.ID == "" {
		m.ID = uuid.New().String()[:32]
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// FindMember 查找成员关系
func (r *OrgRepository) FindMember(ctx context.Context, orgID, userID string) (*entity.OrgMember, error) {
	var m entity.OrgMember
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// RemoveMember 移除成员
func (r *OrgRepository) RemoveMember(ctx context.Context, orgID, userID string) error {
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Delete(&entity.OrgMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMembers 列出组织成员
func (r *OrgRepository) ListMembers(ctx context.Context, orgID string) ([]entity.OrgMember, error) {
	var members []entity.OrgMember
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("organization_id = ?", orgID).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}
