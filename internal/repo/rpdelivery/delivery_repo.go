package rpdelivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/errorutil"
)

// ErrNotFound 无投递记录
var ErrNotFound = fmt.Errorf("delivery log: %w", gorm.ErrRecordNotFound)

// DeliveryRepository 投递记录仓储
type DeliveryRepository interface {
	// Upsert 按 (order_line_id, external_attempt_id) 插入或原地更新
	Upsert(ctx context.Context, log *entity.DeliveryAttemptLog) error
	Get(ctx context.Context, lineID, externalAttemptID string) (*entity.DeliveryAttemptLog, error)
	LatestByOrder(ctx context.Context, orderID string) (*entity.DeliveryAttemptLog, error)
	ListByLine(ctx context.Context, lineID string) ([]entity.DeliveryAttemptLog, error)
}

type deliveryRepositoryImpl struct {
	db *gorm.DB
}

// NewDeliveryRepository 创建投递记录仓储
func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &deliveryRepositoryImpl{db: db}
}

func (r *deliveryRepositoryImpl) Upsert(ctx context.Context, log *entity.DeliveryAttemptLog) error {
	now := time.Now()
	log.ID = 0
	if log.LastAttemptedAt.IsZero() {
		log.LastAttemptedAt = now
	}
	log.CreatedAt = now
	log.UpdatedAt = now
	log.ErrorMessage = errorutil.Truncate(log.ErrorMessage, errorutil.MaxMessageLen)

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_line_id"}, {Name: "external_attempt_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider", "try_number", "status", "provider_txn_id",
			"error_code", "error_message", "raw_request", "raw_response",
			"last_attempted_at", "updated_at",
		}),
	}).Create(log).Error
}

func (r *deliveryRepositoryImpl) Get(ctx context.Context, lineID, externalAttemptID string) (*entity.DeliveryAttemptLog, error) {
	var po entity.DeliveryAttemptLog
	err := r.db.WithContext(ctx).
		Where("order_line_id = ? AND external_attempt_id = ?", lineID, externalAttemptID).
		First(&po).Error
	if err != nil {
		return nil, translate(err)
	}
	return &po, nil
}

// LatestByOrder 订单最近一次投递记录
func (r *deliveryRepositoryImpl) LatestByOrder(ctx context.Context, orderID string) (*entity.DeliveryAttemptLog, error) {
	var po entity.DeliveryAttemptLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("last_attempted_at DESC").
		Order("id DESC").
		First(&po).Error
	if err != nil {
		return nil, translate(err)
	}
	return &po, nil
}

func (r *deliveryRepositoryImpl) ListByLine(ctx context.Context, lineID string) ([]entity.DeliveryAttemptLog, error) {
	var logs []entity.DeliveryAttemptLog
	err := r.db.WithContext(ctx).
		Where("order_line_id = ?", lineID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
