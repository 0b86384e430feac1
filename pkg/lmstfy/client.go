package lmstfy

import (
	"fmt"
	"time"

	"github.com/bitleak/lmstfy/client"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/framework"
)

// Client lmstfy 客户端封装，同时充当 worker 的 MessageSource 与 Enqueuer 的发布端
type Client struct {
	cli       *client.LmstfyClient
	namespace string
	tries     uint16
}

// NewClient 创建 lmstfy 客户端，tries 为单个任务的最大投递次数
func NewClient(host string, port int, namespace string, token string, tries uint16) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("lmstfy host is required")
	}
	if namespace == "" {
		return nil, fmt.Errorf("lmstfy namespace is required")
	}
	if tries == 0 {
		tries = 1
	}
	return &Client{
		cli:       client.NewLmstfyClient(host, port, namespace, token),
		namespace: namespace,
		tries:     tries,
	}, nil
}

// Consume 阻塞拉取一条任务，超时返回 (nil, nil)
func (c *Client) Consume(queue string, timeout time.Duration, ttr time.Duration) (*framework.Message, error) {
	job, err := c.cli.Consume(queue, seconds(ttr, 1), seconds(timeout, 1))
	if err != nil {
		return nil, fmt.Errorf("lmstfy consume %s/%s: %w", c.namespace, queue, err)
	}
	if job == nil {
		return nil, nil
	}
	return &framework.Message{ID: job.ID, Queue: job.Queue, Data: job.Data}, nil
}

// Ack 删除任务
func (c *Client) Ack(queue string, jobID string) error {
	if err := c.cli.Ack(queue, jobID); err != nil {
		return fmt.Errorf("lmstfy ack %s/%s job %s: %w", c.namespace, queue, jobID, err)
	}
	return nil
}

// Publish 发布任务，delay 到期后才可被消费，返回 lmstfy job id
func (c *Client) Publish(queue string, data []byte, ttl, delay time.Duration) (string, error) {
	jobID, err := c.cli.Publish(queue, data, seconds(ttl, 0), c.tries, seconds(delay, 0))
	if err != nil {
		return "", fmt.Errorf("lmstfy publish %s/%s: %w", c.namespace, queue, err)
	}
	return jobID, nil
}

// seconds lmstfy 只接受整秒，不足 floor 时取 floor，其余向上取整
func seconds(d time.Duration, floor uint32) uint32 {
	s := uint32((d + time.Second - 1) / time.Second)
	if s < floor {
		return floor
	}
	return s
}
