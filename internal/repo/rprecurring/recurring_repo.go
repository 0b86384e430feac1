package rprecurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
)

// ErrNotFound 计划不存在
var ErrNotFound = fmt.Errorf("recurring schedule: %w", gorm.ErrRecordNotFound)

// RunUpdate 一次运行后的计划簿记
type RunUpdate struct {
	// NextRunAt 为 nil 表示不推进
	NextRunAt *time.Time
	// Deactivate 一次性计划执行后停用
	Deactivate bool
	// Succeeded 成功时 run_count+1 并清空 last_error
	Succeeded bool
	LastRunAt time.Time
	LastError string
	Summary   datatypes.JSON
}

// RecurringRepository 周期计划仓储
type RecurringRepository interface {
	Create(ctx context.Context, s *entity.RecurringSchedule) error
	Get(ctx context.Context, id string) (*entity.RecurringSchedule, error)
	// ListDue 返回 active 且 next_run_at <= now 的计划，按 next_run_at 升序
	ListDue(ctx context.Context, now time.Time, limit int) ([]entity.RecurringSchedule, error)
	SaveRun(ctx context.Context, id string, u RunUpdate) error
}

type recurringRepositoryImpl struct {
	db *gorm.DB
}

// NewRecurringRepository 创建周期计划仓储
func NewRecurringRepository(db *gorm.DB) RecurringRepository {
	return &recurringRepositoryImpl{db: db}
}

func (r *recurringRepositoryImpl) Create(ctx context.Context, s *entity.RecurringSchedule) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *recurringRepositoryImpl) Get(ctx context.Context, id string) (*entity.RecurringSchedule, error) {
	var po entity.RecurringSchedule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

func (r *recurringRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]entity.RecurringSchedule, error) {
	var out []entity.RecurringSchedule
	q := r.db.WithContext(ctx).
		Where("active = ? AND next_run_at <= ?", true, now).
		Order("next_run_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// SaveRun next_run_at 只允许向后推进
func (r *recurringRepositoryImpl) SaveRun(ctx context.Context, id string, u RunUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur entity.RecurringSchedule
		if err := tx.Where("id = ?", id).First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		lastRunAt := u.LastRunAt
		updates := map[string]interface{}{
			"last_run_at": &lastRunAt,
			"last_error":  u.LastError,
			"updated_at":  time.Now(),
		}
		if u.NextRunAt != nil {
			if !u.NextRunAt.After(cur.NextRunAt) {
				return fmt.Errorf("recurring schedule %s: next_run_at %s does not advance past %s",
					id, u.NextRunAt.Format(time.RFC3339), cur.NextRunAt.Format(time.RFC3339))
			}
			updates["next_run_at"] = *u.NextRunAt
		}
		if u.Deactivate {
			updates["active"] = false
		}
		if u.Succeeded {
			updates["run_count"] = gorm.Expr("run_count + ?", 1)
			updates["last_error"] = ""
		}
		if len(u.Summary) > 0 {
			updates["last_run"] = u.Summary
		}
		return tx.Model(&entity.RecurringSchedule{}).Where("id = ?", id).Updates(updates).Error
	})
}
