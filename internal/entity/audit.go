package entity

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog 状态迁移审计记录
type AuditLog struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Actor        string         `gorm:"column:actor;type:varchar(64);not null"`
	Action       string         `gorm:"column:action;type:varchar(64);not null;index:idx_audit_logs_action"`
	ResourceType string         `gorm:"column:resource_type;type:varchar(32);not null;index:idx_audit_logs_resource,priority:1"`
	ResourceID   string         `gorm:"column:resource_id;type:varchar(64);not null;index:idx_audit_logs_resource,priority:2"`
	Reason       string         `gorm:"column:reason;type:varchar(255)"`
	Before       datatypes.JSON `gorm:"column:before;type:json"`
	After        datatypes.JSON `gorm:"column:after;type:json"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "audit_logs"
}

// 审计动作与资源类型
const (
	AuditActionOrderStatus   = "ORDER_STATUS"
	AuditActionPaymentStatus = "PAYMENT_STATUS"

	AuditResourceOrder   = "order"
	AuditResourcePayment = "payment"
)

// Models 需要迁移的全部表
func Models() []interface{} {
	return []interface{}{
		&Order{},
		&OrderLine{},
		&PaymentAuthorization{},
		&DeliveryAttemptLog{},
		&RecurringSchedule{},
		&AuditLog{},
	}
}
