package rporder

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/repo/rpaudit"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/errorutil"
)

// OrderRepositoryImpl 订单仓储实现（GORM）
type OrderRepositoryImpl struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储实例
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &OrderRepositoryImpl{db: db}
}

// Create 创建订单，订单行随订单一并写入
func (r *OrderRepositoryImpl) Create(ctx context.Context, order *entity.Order) error {
	if order.Status == "" {
		order.Status = string(model.OrderStatusCreated)
	}
	if !model.OrderStatus(order.Status).Valid() {
		return &model.TransitionError{Kind: "order", From: "", To: order.Status}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(order).Error
	})
}

// GetByID 根据ID查询订单
func (r *OrderRepositoryImpl) GetByID(ctx context.Context, orderID string) (*entity.Order, error) {
	var po entity.Order
	err := r.db.WithContext(ctx).Preload("Lines").Where("id = ?", orderID).First(&po).Error
	if err != nil {
		return nil, translate(err)
	}
	return &po, nil
}

// GetLine 查询订单行
func (r *OrderRepositoryImpl) GetLine(ctx context.Context, orderID, lineID string) (*entity.OrderLine, error) {
	var line entity.OrderLine
	err := r.db.WithContext(ctx).Where("id = ? AND order_id = ?", lineID, orderID).First(&line).Error
	if err != nil {
		return nil, translate(err)
	}
	return &line, nil
}

// Transition 状态迁移必须经过迁移表校验，更新以旧状态为条件
func (r *OrderRepositoryImpl) Transition(ctx context.Context, orderID string, to model.OrderStatus, actor, reason string) (*entity.Order, error) {
	var out entity.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", orderID).First(&out).Error; err != nil {
			return translate(err)
		}
		from := model.OrderStatus(out.Status)
		if err := model.ValidateOrderTransition(from, to); err != nil {
			return err
		}
		if from == to {
			return nil
		}

		now := time.Now()
		res := tx.Model(&entity.Order{}).
			Where("id = ? AND status = ?", orderID, string(from)).
			Updates(map[string]interface{}{
				"status":     string(to),
				"updated_at": now,
			})
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
			Action:       entity.AuditActionOrderStatus,
			ResourceType: entity.AuditResourceOrder,
			ResourceID:   orderID,
			Reason:       reason,
			Before:       map[string]string{"status": string(from)},
			After:        map[string]string{"status": string(to)},
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetMessage 更新订单的最近错误信息
func (r *OrderRepositoryImpl) SetMessage(ctx context.Context, orderID, message string) error {
	res := r.db.WithContext(ctx).
		Model(&entity.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"last_message": errorutil.Truncate(message, errorutil.MaxMessageLen),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
