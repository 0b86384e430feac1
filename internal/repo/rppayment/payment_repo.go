package rppayment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rpaudit"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/errorutil"
)

var (
	// ErrNotFound 授权记录不存在
	ErrNotFound = fmt.Errorf("payment: %w", gorm.ErrRecordNotFound)
	// ErrActiveExists 订单已有有效授权
	ErrActiveExists = errors.New("payment: order already has an active authorization")
	// ErrConcurrentUpdate 状态在读写之间被修改
	ErrConcurrentUpdate = errors.New("payment: concurrent status update")
)

// Failure 授权失败原因
type Failure struct {
	Code    string
	Message string
}

// PaymentRepository 支付授权仓储
type PaymentRepository interface {
	Create(ctx context.Context, auth *entity.PaymentAuthorization) error
	GetActiveByOrder(ctx context.Context, orderID string) (*entity.PaymentAuthorization, error)
	GetLatestByOrder(ctx context.Context, orderID string) (*entity.PaymentAuthorization, error)
	GetByProviderRef(ctx context.Context, provider, ref string) (*entity.PaymentAuthorization, error)
	Transition(ctx context.Context, id string, to model.PaymentStatus, failure *Failure, actor string) (*entity.PaymentAuthorization, error)
}

type paymentRepositoryImpl struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付授权仓储
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepositoryImpl{db: db}
}

// Create 新建授权；若订单已有有效授权且新记录也为有效状态则拒绝
func (r *paymentRepositoryImpl) Create(ctx context.Context, auth *entity.PaymentAuthorization) error {
	if auth.Status == "" {
		auth.Status = string(model.PaymentStatusCreated)
	}
	if !model.PaymentStatus(auth.Status).Valid() {
		return &model.TransitionError{Kind: "payment", To: auth.Status}
	}
	auth.ErrorMessage = errorutil.Truncate(auth.ErrorMessage, errorutil.MaxMessageLen)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if model.PaymentStatus(auth.Status).Active() {
			var n int64
			err := tx.Model(&entity.PaymentAuthorization{}).
				Where("order_id = ? AND status IN ?", auth.OrderID, activeStatuses()).
				Count(&n).Error
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrActiveExists
			}
		}
		return tx.Create(auth).Error
	})
}

// GetActiveByOrder 查询订单当前有效授权（pending/succeeded）
func (r *paymentRepositoryImpl) GetActiveByOrder(ctx context.Context, orderID string) (*entity.PaymentAuthorization, error) {
	var po entity.PaymentAuthorization
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, activeStatuses()).
		Order("created_at DESC").
		First(&po).Error
	if err != nil {
		return nil, translate(err)
	}
	return &po, nil
}

// GetLatestByOrder 查询订单最近一条授权，不论状态
func (r *paymentRepositoryImpl) GetLatestByOrder(ctx context.Context, orderID string) (*entity.PaymentAuthorization, error) {
	var po entity.PaymentAuthorization
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&po).Error
	if err != nil {
		return nil, translate(err)
	}
	return &po, nil
}

// GetByProviderRef 按支付渠道引用查询
func (r *paymentRepositoryImpl) GetByProviderRef(ctx context.Context, provider, ref string) (*entity.PaymentAuthorization, error) {
	var po entity.PaymentAuthorization
	q := r.db.WithContext(ctx).Where("provider_ref = ?", ref)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if err := q.First(&po).Error; err != nil {
		return nil, translate(err)
	}
	return &po, nil
}

// Transition 校验并迁移授权状态，同事务写审计
func (r *paymentRepositoryImpl) Transition(ctx context.Context, id string, to model.PaymentStatus, failure *Failure, actor string) (*entity.PaymentAuthorization, error) {
	var out entity.PaymentAuthorization
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
			return translate(err)
		}
		from := model.PaymentStatus(out.Status)
		if err := model.ValidatePaymentTransition(from, to); err != nil {
			return err
		}
		if from == to {
			return nil
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":     string(to),
			"updated_at": now,
		}
		if failure != nil {
			msg := errorutil.Truncate(failure.Message, errorutil.MaxMessageLen)
			updates["error_code"] = failure.Code
			updates["error_message"] = msg
			out.ErrorCode = failure.Code
			out.ErrorMessage = msg
		}
		res := tx.Model(&entity.PaymentAuthorization{}).
			Where("id = ? AND status = ?", id, string(from)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}

		out.Status = string(to)
		out.UpdatedAt = now
		return rpaudit.Write(tx, rpaudit.Entry{
			Actor:        actor,
			Action:       entity.AuditActionPaymentStatus,
			ResourceType: entity.AuditResourcePayment,
			ResourceID:   id,
			Before:       map[string]string{"status": string(from)},
			After:        updates,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func activeStatuses() []string {
	return []string{string(model.PaymentStatusPending), string(model.PaymentStatusSucceeded)}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
