package entity

import (
	"time"

	"gorm.io/datatypes"
)

// DeliveryAttemptLog 上游投递记录，(order_line_id, external_attempt_id) 唯一，重试时原地更新
type DeliveryAttemptLog struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID           string `gorm:"column:order_id;type:varchar(64);not null;index:idx_delivery_logs_order"`
	OrderLineID       string `gorm:"column:order_line_id;type:varchar(64);not null;uniqueIndex:uk_line_attempt"`
	ExternalAttemptID string `gorm:"column:external_attempt_id;type:varchar(160);not null;uniqueIndex:uk_line_attempt"`
	Provider          string `gorm:"column:provider;type:varchar(32);not null"`
	TryNumber         int    `gorm:"column:try_number;not null"`

	Status          string         `gorm:"column:status;type:varchar(16);not null"`
	ProviderTxnID   string         `gorm:"column:provider_txn_id;type:varchar(128)"`
	ErrorCode       string         `gorm:"column:error_code;type:varchar(64)"`
	ErrorMessage    string         `gorm:"column:error_message;type:varchar(512)"`
	RawRequest      datatypes.JSON `gorm:"column:raw_request;type:json"`
	RawResponse     datatypes.JSON `gorm:"column:raw_response;type:json"`
	LastAttemptedAt time.Time      `gorm:"column:last_attempted_at;not null"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;index:idx_delivery_logs_updated_at"`
}

// TableName 指定表名
func (DeliveryAttemptLog) TableName() string {
	return "delivery_attempt_logs"
}
