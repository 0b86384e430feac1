package entity

import (
	"time"
)

// Order 订单实体，一次购买意图
type Order struct {
	ID         string  `gorm:"column:id;primaryKey;type:varchar(64)"`
	CustomerID *string `gorm:"column:customer_id;type:varchar(64);index:idx_orders_customer"`

	// 订单状态与金额（结算币种最小单位）
	Status      string `gorm:"column:status;type:varchar(16);not null;default:'created';index:idx_orders_status"`
	TotalMinor  int64  `gorm:"column:total_minor;not null"`
	Currency    string `gorm:"column:currency;type:varchar(8);not null"`
	Source      string `gorm:"column:source;type:varchar(16);not null;default:'checkout'"`
	ScheduleID  string `gorm:"column:schedule_id;type:varchar(64);index:idx_orders_schedule"`
	GuestEmail  string `gorm:"column:guest_email;type:varchar(255)"`
	GuestPhone  string `gorm:"column:guest_phone;type:varchar(32)"`
	LastMessage string `gorm:"column:last_message;type:varchar(512)"`

	Lines []OrderLine `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_orders_created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// OrderLine 订单行，价格与目标号码创建后不可变
type OrderLine struct {
	ID          string `gorm:"column:id;primaryKey;type:varchar(64)"`
	OrderID     string `gorm:"column:order_id;type:varchar(64);not null;index:idx_order_lines_order"`
	ProductID   string `gorm:"column:product_id;type:varchar(64);not null"`
	VariantID   string `gorm:"column:variant_id;type:varchar(64);not null"`
	Operator    string `gorm:"column:operator;type:varchar(32);not null"`
	Destination string `gorm:"column:destination;type:varchar(32);not null"`
	Quantity    int    `gorm:"column:quantity;not null;default:1"`
	UnitMinor   int64  `gorm:"column:unit_minor;not null"`

	// 展示币种金额与定价时的汇率快照
	DisplayMinor    *int64  `gorm:"column:display_minor"`
	DisplayCurrency string  `gorm:"column:display_currency;type:varchar(8)"`
	CustomAmount    bool    `gorm:"column:custom_amount;not null;default:false"`
	FXRate          float64 `gorm:"column:fx_rate;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (OrderLine) TableName() string {
	return "order_lines"
}

// 订单来源
const (
	OrderSourceCheckout  = "checkout"
	OrderSourceRecurring = "recurring"
)
