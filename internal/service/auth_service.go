package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/config"
	"github.com/bitfantasy/invoiceflow/internal/entity"
	"github.com/bitfantasy/invoiceflow/internal/middleware"
	"github.com/bitfantasy/invoiceflow/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// AuthService 认证服务
type AuthService struct {
	userRepo *repository.UserRepository
	orgRepo  *repository.OrgRepository
	rdb      *redis.Client
	cfg      *config.Config
	logger   *zap.Logger
}

func NewAuthService(userRepo *repository.UserRepository, orgRepo *repository.OrgRepository, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		orgRepo:  orgRepo,
		rdb:      rdb,
		cfg:      cfg,
		logger:   logger,
	}
}

// TokenPair Token对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RegisterRequest 管理员注册请求，注册同时创建组织
type RegisterRequest struct {
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=8"`
	DisplayName      string `json:"display_name" binding:"required"`
	OrganizationName string `json:"organization_name" binding:"required"`
	Department       string `json:"department"`
}

// Register 管理员注册：在一个事务里创建用户、组织和成员关系
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*entity.User, *entity.Organization, error) {
	if _, err := s.userRepo.FindByEmail(ctx, req.Email); err == nil {
		return nil, nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	admin := &entity.User{
		ID:           uuid.New().String()[:32],
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		Role:         entity.RoleAdmin,
		Department:   req.Department,
		Status:       "active",
	}
	org := &entity.Organization{
		ID:        uuid.New().String()[:32],
		Name:      req.OrganizationName,
		CreatedBy: admin.ID,
	}

	if err := s.orgRepo.ProvisionWithAdmin(ctx, org, admin); err != nil {
		return nil, nil, fmt.Errorf("provision organization: %w", err)
	}

	s.logger.Info("organization registered",
		zap.String("org_id", org.ID),
		zap.String("admin_id", admin.ID),
	)
	return admin, org, nil
}

// Login 邮箱密码登录
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, *entity.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Refresh 用refresh token换新的token对
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(refreshToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	// 没有redis时refresh token从未落库，视为无效
	if s.rdb == nil {
		return nil, ErrInvalidToken
	}

	userID, err := s.rdb.Get(ctx, "token:refresh:"+claims.ID).Result()
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// 旧refresh token作废，换发新对
	s.rdb.Del(ctx, "token:refresh:"+claims.ID)
	return s.issueTokens(ctx, user)
}

// Logout 吊销refresh token
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(refreshToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil || !token.Valid || claims.ID == "" {
		return ErrInvalidToken
	}
	if s.rdb != nil {
		s.rdb.Del(ctx, "token:refresh:"+claims.ID)
	}
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *entity.User) (*TokenPair, error) {
	now := time.Now()

	accessClaims := middleware.JWTClaims{
		UserID: user.ID,
		Name:   user.DisplayName,
		Email:  user.Email,
		OrgID:  user.OrganizationID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.JWT.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTokenExpire)),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshJti := uuid.New().String()
	refreshClaims := jwt.RegisteredClaims{
		Issuer:    s.cfg.JWT.Issuer,
		Subject:   user.ID,
		ID:        refreshJti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.RefreshTokenExpire)),
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if s.rdb != nil {
		s.rdb.Set(ctx, "token:refresh:"+refreshJti, user.ID, s.cfg.JWT.RefreshTokenExpire)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.JWT.AccessTokenExpire.Seconds()),
	}, nil
}
