package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	Invoice     *InvoiceRepository
	ActivityLog *ActivityLogRepository
	Org         *OrgRepository
	User        *UserRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Invoice:     NewInvoiceRepository(db),
		ActivityLog: NewActivityLogRepository(db),
		Org:         NewOrgRepository(db),
		User:        NewUserRepository(db),
	}
}
