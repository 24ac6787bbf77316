package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/bitfantasy/invoiceflow/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// OrgService 组织服务
type OrgService struct {
	orgRepo     *repository.OrgRepository
	userRepo    *repository.UserRepository
	activitySvc *ActivityService
	logger      *zap.Logger
}

func NewOrgService(orgRepo *repository.OrgRepository, userRepo *repository.UserRepository, activitySvc *ActivityService, logger *zap.Logger) *OrgService {
	return &OrgService{
		orgRepo:     orgRepo,
		userRepo:    userRepo,
		activitySvc: activitySvc,
		logger:      logger,
	}
}

// Get 获取组织详情
func (s *OrgService) Get(ctx context.Context, orgID string) (*entity.Organization, error) {
	return s.orgRepo.FindByID(ctx, orgID)
}

// UpdateOrgRequest 更新组织请求
type UpdateOrgRequest struct {
	Name string `json:"name" binding:"required"`
}

// Update 更新组织设置
func (s *OrgService) Update(ctx context.Context, orgID string, req *UpdateOrgRequest) (*entity.Organization, error) {
	org, err := s.orgRepo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	org.Name = req.Name
	if err := s.orgRepo.Update(ctx, org); err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}
	return org, nil
}

// InviteMemberRequest 邀请成员请求，创建审核人账号并加入组织
type InviteMemberRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
	Department  string `json:"department"`
}

// InviteMember 管理员邀请成员：创建reviewer用户并建立成员关系
func (s *OrgService) InviteMember(ctx context.Context, orgID string, actor Actor, req *InviteMemberRequest) (*entity.User, error) {
	if _, err := s.userRepo.FindByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &entity.User{
		ID:             uuid.New().String()[:32],
		Email:          req.Email,
		PasswordHash:   string(hash),
		DisplayName:    req.DisplayName,
		Role:           entity.RoleReviewer,
		OrganizationID: orgID,
		Department:     req.Department,
		Status:         "active",
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	member := &entity.OrgMember{
		OrganizationID: orgID,
		UserID:         user.ID,
		Role:           entity.RoleReviewer,
	}
	if err := s.orgRepo.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}

	s.activitySvc.Log(ctx, orgID, actor, ActivityEntry{
		Action:     entity.ActionMemberAdded,
		TargetType: "user",
		TargetID:   user.ID,
		Details:    entity.JSONB{"email": user.Email},
	})

	return user, nil
}

// RemoveMember 移除成员（不能移除自己）
func (s *OrgService) RemoveMember(ctx context.Context, orgID string, actor Actor, userID string) error {
	if userID == actor.ID {
		return errors.New("cannot remove yourself from the organization")
	}

	if err := s.orgRepo.RemoveMember(ctx, orgID, userID); err != nil {
		return err
	}

	s.activitySvc.Log(ctx, orgID, actor, ActivityEntry{
		Action:     entity.ActionMemberRemoved,
		TargetType: "user",
		TargetID:   userID,
	})

	return nil
}

// ListMembers 列出组织成员
func (s *OrgService) ListMembers(ctx context.Context, orgID string) ([]entity.OrgMember, error) {
	return s.orgRepo.ListMembers(ctx, orgID)
}
