package entity

import "time"

// PaymentAuthorization 支付授权，一个订单同一时刻仅有一条有效授权
type PaymentAuthorization struct {
	ID          string `gorm:"column:id;primaryKey;type:varchar(64)"`
	OrderID     string `gorm:"column:order_id;type:varchar(64);not null;index:idx_payment_auth_order"`
	Provider    string `gorm:"column:provider;type:varchar(32);not null"`
	ProviderRef string `gorm:"column:provider_ref;type:varchar(128);index:idx_payment_auth_provider_ref"`
	AmountMinor int64  `gorm:"column:amount_minor;not null"`
	Currency    string `gorm:"column:currency;type:varchar(8);not null"`
	Status      string `gorm:"column:status;type:varchar(16);not null;default:'created'"`

	ErrorCode    string `gorm:"column:error_code;type:varchar(64)"`
	ErrorMessage string `gorm:"column:error_message;type:varchar(512)"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (PaymentAuthorization) TableName() string {
	return "payment_authorizations"
}
