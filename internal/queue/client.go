package queue

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/audiopress/audiopress/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueTick schedules a processing tick after the given delay. Ticks are
// not retried by asynq; the scheduler re-arms itself on every outcome.
func (c *Client) EnqueueTick(delay time.Duration) error {
	task := asynq.NewTask(TypeAudioTick, nil)
	_, err := c.client.Enqueue(task,
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeAudioTick, err)
	}
	return nil
}
