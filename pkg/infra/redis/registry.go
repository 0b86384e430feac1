package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobStatus 任务记录状态
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusActive  JobStatus = "active"
	JobStatusDone    JobStatus = "done"
)

const jobIndexKey = "topup:jobs:index"

// 记录与索引一起写入；ZADD 出错时脚本中止，记录不会落下
var reserveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("ZADD", KEYS[2], ARGV[3], KEYS[1])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// ErrJobNotFound 任务记录不存在或已过期
var ErrJobNotFound = errors.New("job record not found")

// JobRecord 延迟任务的去重与查询记录
type JobRecord struct {
	Key         string    `json:"key"`
	Kind        string    `json:"kind"`
	Queue       string    `json:"queue"`
	JobID       string    `json:"job_id,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	OrderLineID string    `json:"order_line_id,omitempty"`
	ScheduleID  string    `json:"schedule_id,omitempty"`
	TryNumber   int       `json:"try_number,omitempty"`
	Status      JobStatus `json:"status"`
	RunAt       time.Time `json:"run_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobFilter 查询条件，空字段不过滤
type JobFilter struct {
	Kind        string
	OrderID     string
	OrderLineID string
	IncludeDone bool
	Limit       int
}

func (f JobFilter) match(rec *JobRecord) bool {
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.OrderID != "" && rec.OrderID != f.OrderID {
		return false
	}
	if f.OrderLineID != "" && rec.OrderLineID != f.OrderLineID {
		return false
	}
	if !f.IncludeDone && rec.Status == JobStatusDone {
		return false
	}
	return true
}

// JobRegistry 任务键登记表：每个任务键一条记录，附带按执行时间排序的索引
type JobRegistry struct {
	rdb       redis.UniversalClient
	retention time.Duration
}

// NewJobRegistry retention 为记录在 run_at 之后的保留时长
func NewJobRegistry(rdb redis.UniversalClient, retention time.Duration) *JobRegistry {
	return &JobRegistry{rdb: rdb, retention: retention}
}

func (r *JobRegistry) ttl(runAt time.Time) time.Duration {
	ttl := time.Until(runAt) + r.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Reserve 原子登记任务键及索引；键已存在返回 false
func (r *JobRegistry) Reserve(ctx context.Context, rec *JobRecord) (bool, error) {
	now := time.Now()
	rec.Status = JobStatusPending
	rec.CreatedAt = now
	rec.UpdatedAt = now

	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	ttl := r.ttl(rec.RunAt).Milliseconds()
	n, err := reserveScript.Run(ctx, r.rdb, []string{rec.Key, jobIndexKey}, data, ttl, rec.RunAt.Unix()).Int()
	if err != nil {
		return false, fmt.Errorf("reserve job %s: %w", rec.Key, err)
	}
	return n == 1, nil
}

// Get 读取任务记录
func (r *JobRegistry) Get(ctx context.Context, key string) (*JobRecord, error) {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", key, err)
	}
	var rec JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", key, err)
	}
	return &rec, nil
}

// Update 乐观事务修改记录，保留原 TTL
func (r *JobRegistry) Update(ctx context.Context, key string, fn func(rec *JobRecord)) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		var rec JobRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		fn(&rec)
		rec.UpdatedAt = time.Now()
		out, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, out, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update job %s: %w", key, redis.TxFailedErr)
}

// MarkStatus 更新任务状态
func (r *JobRegistry) MarkStatus(ctx context.Context, key string, status JobStatus) error {
	return r.Update(ctx, key, func(rec *JobRecord) { rec.Status = status })
}

// Delete 删除记录，入队失败时回滚登记
func (r *JobRegistry) Delete(ctx context.Context, key string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, jobIndexKey, key)
	_, err := pipe.Exec(ctx)
	return err
}

// List 按 run_at 升序列出未过期的记录，顺带清理索引中已过期的键
func (r *JobRegistry) List(ctx context.Context, filter JobFilter) ([]*JobRecord, error) {
	keys, err := r.rdb.ZRange(ctx, jobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var (
		out   []*JobRecord
		stale []interface{}
	)
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		var rec JobRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		if !filter.match(&rec) {
			continue
		}
		out = append(out, &rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	if len(stale) > 0 {
		_ = r.rdb.ZRem(ctx, jobIndexKey, stale...).Err()
	}
	return out, nil
}
