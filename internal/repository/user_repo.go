package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository 用户仓库
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID 根据ID查找用户
func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail 根据邮箱查找用户
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Update 更新用户
func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	user.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(user).Error
}

// ListByOrg 列出组织下的用户
func (r *UserRepository) ListByOrg(ctx context.Context, orgID string) ([]entity.User, error) {
	var users []entity.User
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&users).Error
	return users, err
}

// Search 按名字或邮箱模糊搜索组织内用户
func (r *UserRepository) Search(ctx context.Context, orgID, keyword string) ([]entity.User, error) {
	var users []entity.User
	like := "%" + keyword + "%"
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Where("display_name ILIKE ? OR email ILIKE ?", like, like).
		Limit(20).
		Find(&users).Error
	return users, err
}
