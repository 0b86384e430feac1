package entity

import (
	"time"

	"gorm.io/datatypes"
)

// RecurringSchedule 周期充值计划
type RecurringSchedule struct {
	ID          string `gorm:"column:id;primaryKey;type:varchar(64)"`
	CustomerID  string `gorm:"column:customer_id;type:varchar(64);not null;index:idx_recurring_customer"`
	ProductID   string `gorm:"column:product_id;type:varchar(64);not null"`
	VariantID   string `gorm:"column:variant_id;type:varchar(64);not null"`
	Operator    string `gorm:"column:operator;type:varchar(32);not null"`
	Destination string `gorm:"column:destination;type:varchar(32);not null"`

	// 金额配置：结算币种金额，可选保存的美元金额
	AmountMinor int64  `gorm:"column:amount_minor;not null"`
	Currency    string `gorm:"column:currency;type:varchar(8);not null"`
	USDMinor    *int64 `gorm:"column:usd_minor"`

	Cadence   string     `gorm:"column:cadence;type:varchar(16);not null"`
	StartAt   *time.Time `gorm:"column:start_at"`
	NextRunAt time.Time  `gorm:"column:next_run_at;not null;index:idx_recurring_active_next,priority:2"`
	Active    bool       `gorm:"column:active;not null;default:true;index:idx_recurring_active_next,priority:1"`

	RunCount  int        `gorm:"column:run_count;not null;default:0"`
	LastRunAt *time.Time `gorm:"column:last_run_at"`
	LastError string     `gorm:"column:last_error;type:varchar(512)"`

	// 离线扣款所需的已保存支付方式
	PaymentCustomerRef string `gorm:"column:payment_customer_ref;type:varchar(128)"`
	PaymentMethodRef   string `gorm:"column:payment_method_ref;type:varchar(128)"`

	// 最近一次运行的摘要
	LastRun datatypes.JSON `gorm:"column:last_run;type:json"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (RecurringSchedule) TableName() string {
	return "recurring_schedules"
}
