package rpaudit

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
)

// Entry 一条待写入的审计记录
type Entry struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Reason       string
	Before       interface{}
	After        interface{}
}

// Write 在给定事务中写入审计记录
func Write(tx *gorm.DB, e Entry) error {
	before, err := json.Marshal(e.Before)
	if err != nil {
		return err
	}
	after, err := json.Marshal(e.After)
	if err != nil {
		return err
	}
	return tx.Create(&entity.AuditLog{
		Actor:        e.Actor,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Reason:       e.Reason,
		Before:       before,
		After:        after,
		CreatedAt:    time.Now(),
	}).Error
}

// AuditRepository 审计查询
type AuditRepository interface {
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]entity.AuditLog, error)
}

type auditRepositoryImpl struct {
	db *gorm.DB
}

// NewAuditRepository 创建审计仓储
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepositoryImpl{db: db}
}

// ListByResource 按资源查询审计记录，按写入顺序返回
func (r *auditRepositoryImpl) ListByResource(ctx context.Context, resourceType, resourceID string) ([]entity.AuditLog, error) {
	var logs []entity.AuditLog
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}
