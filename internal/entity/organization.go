package entity

import "time"

// Organization 组织
type Organization struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Members []OrgMember `json:"members,omitempty" gorm:"foreignKey:OrganizationID"`
}

func (Organization) TableName() string {
	return "organizations"
}

// OrgMember 组织成员关系
type OrgMember struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	OrganizationID string    `json:"organization_id" gorm:"size:32;not null;uniqueIndex:idx_org_member"`
	UserID         string    `json:"user_id" gorm:"size:32;not null;uniqueIndex:idx_org_member"`
	Role           string    `json:"role" gorm:"size:20;not null"` // admin/reviewer
	JoinedAt       time.Time `json:"joined_at"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (OrgMember) TableName() string {
	return "org_members"
}
