package model

import (
	"fmt"
	"time"
)

// Action types routed by the worker
const (
	ActionTopupAttempt = "topup_attempt"
	ActionRecurringRun = "recurring_run"
)

// AttemptJob 延迟投递任务负载
type AttemptJob struct {
	OrderID            string `json:"order_id"`
	OrderLineID        string `json:"order_line_id"`
	TryNumber          int    `json:"try_number"`
	PaymentProvider    string `json:"payment_provider,omitempty"`
	PaymentProviderRef string `json:"payment_provider_ref,omitempty"`
}

// RecurringRunJob 周期任务负载
type RecurringRunJob struct {
	ScheduleID string    `json:"schedule_id"`
	DueAt      time.Time `json:"due_at"`
}

// AttemptJobKey 任务去重键，同一 (order, line, try) 只会入队一次
func AttemptJobKey(orderID, lineID string, try int) string {
	return fmt.Sprintf("topup:%s:%s:try%d", orderID, lineID, try)
}

// AttemptLockKey 单行投递互斥锁键
func AttemptLockKey(orderID, lineID string) string {
	return fmt.Sprintf("topup:lock:%s:%s", orderID, lineID)
}

// ExternalAttemptID 上游幂等 ID，对同一订单行的所有重试保持不变
func ExternalAttemptID(orderID, lineID string) string {
	return fmt.Sprintf("%s-%s", orderID, lineID)
}

// RecurringJobKey 周期任务去重键，同一计划的同一次到期只入队一次
func RecurringJobKey(scheduleID string, dueAt time.Time) string {
	return fmt.Sprintf("recurring:%s:%d", scheduleID, dueAt.UTC().Unix())
}

// OrderStatusChannel Redis 通知频道
func OrderStatusChannel(orderID string) string {
	return "order:status:" + orderID
}
