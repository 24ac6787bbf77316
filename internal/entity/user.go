package entity

import "time"

// 用户角色
const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
)

// User 用户
type User struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	Email          string    `json:"email" gorm:"size:200;uniqueIndex;not null"`
	PasswordHash   string    `json:"-" gorm:"size:100;not null"`
	DisplayName    string    `json:"display_name" gorm:"size:100"`
	Role           string    `json:"role" gorm:"size:20;not null;default:reviewer"` // admin/reviewer
	OrganizationID string    `json:"organization_id" gorm:"size:32;index"`
	Department     string    `json:"department" gorm:"size:100"`
	Status         string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
