package rporder

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/entity"
	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
)

var (
	// ErrNotFound 订单或订单行不存在
	ErrNotFound = fmt.Errorf("order: %w", gorm.ErrRecordNotFound)
	// ErrConcurrentUpdate 状态在读写之间被其他请求修改
	ErrConcurrentUpdate = errors.New("order: concurrent status update")
)

// OrderRepository 订单仓储接口
type OrderRepository interface {
	// Create 创建订单及其订单行（同一事务）
	Create(ctx context.Context, order *entity.Order) error

	// GetByID 根据ID查询订单，包含订单行
	GetByID(ctx context.Context, orderID string) (*entity.Order, error)

	// GetLine 查询订单行，订单行必须属于该订单
	GetLine(ctx context.Context, orderID, lineID string) (*entity.OrderLine, error)

	// Transition 校验并迁移订单状态，同事务写审计
	Transition(ctx context.Context, orderID string, to model.OrderStatus, actor, reason string) (*entity.Order, error)

	// SetMessage 记录面向用户的最近一条错误信息
	SetMessage(ctx context.Context, orderID, message string) error
}
