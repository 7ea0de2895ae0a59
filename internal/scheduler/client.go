package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurture_backend/platform/apperr"
	"nurture_backend/platform/config"

	"github.com/hibiken/asynq"
)

// uniqueWindow keeps repeated operator clicks from queueing the same scan twice.
const uniqueWindow = 5 * time.Minute

// Client enqueues operator-triggered scans for the scheduler worker.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueScan queues one scan. A scan of the same type already queued
// within the unique window yields an apperr Busy error.
func (c *Client) EnqueueScan(ctx context.Context, taskType, requestedBy string) error {
	task, err := NewScanTask(taskType, ScanPayload{RequestedBy: requestedBy, RequestedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.Unique(uniqueWindow),
		asynq.MaxRetry(0),
		asynq.Timeout(DefaultLeaseTTL),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return apperr.Wrap(apperr.KindBusy, "scan already queued", ErrBusy)
	}
	return err
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redisOptions(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
