package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/bitfantasy/invoiceflow/internal/repository"
)

// UserService 用户服务
type UserService struct {
	repo *repository.UserRepository
}

func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Get 获取用户
func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByOrg 列出组织用户
func (s *UserService) ListByOrg(ctx context.Context, orgID string) ([]entity.User, error) {
	return s.repo.ListByOrg(ctx, orgID)
}

// Search 搜索组织内用户（审核人选择器用）
func (s *UserService) Search(ctx context.Context, orgID, keyword string) ([]entity.User, error) {
	return s.repo.Search(ctx, orgID, keyword)
}

// UpdateUserRequest 更新用户请求
type UpdateUserRequest struct {
	DisplayName *string `json:"display_name"`
	Role        *string `json:"role"`
	Department  *string `json:"department"`
}

// Update 更新用户资料
func (s *UserService) Update(ctx context.Context, id string, req *UpdateUserRequest) (*entity.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Role != nil {
		if *req.Role != entity.RoleAdmin && *req.Role != entity.RoleReviewer {
			return nil, fmt.Errorf("invalid role %q", *req.Role)
		}
		user.Role = *req.Role
	}
	if req.Department != nil {
		user.Department = *req.Department
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}
