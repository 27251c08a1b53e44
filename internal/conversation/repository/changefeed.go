package repository

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/pkg/logger"
)

// ChangeFeed definition the change-notification channel between mutations
// and the view sessions observing the store.
type ChangeFeed interface {
	Publish(ctx context.Context, channel string, event domain.ChangeEvent) error
	// Subscribe deliver matching events to handler until ctx is
	// cancelled; the underlying channel is always released on exit.
	Subscribe(ctx context.Context, channel string, handler func(event domain.ChangeEvent)) error
}

// RedisChangeFeed change feed over redis pub/sub
type RedisChangeFeed struct {
	client *redis.Client
}

// NewRedisChangeFeed create a RedisChangeFeed
func NewRedisChangeFeed(client *redis.Client) *RedisChangeFeed {
	return &RedisChangeFeed{client: client}
}

// Publish serialize the event and publish it on the scoped channel
func (r *RedisChangeFeed) Publish(ctx context.Context, channel string, event domain.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe open a scoped subscription; events are decoded and handed to
// handler on a dedicated goroutine. Cancelling ctx closes the subscription.
func (r *RedisChangeFeed) Subscribe(ctx context.Context, channel string, handler func(event domain.ChangeEvent)) error {
	sub := r.client.Subscribe(ctx, channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}

				var event domain.ChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					logger.Log.Error("change feed decode failed",
						zap.String("channel", channel),
						zap.Error(err),
					)
					continue
				}
				handler(event)
			case <-ctx.Done():
				logger.Log.Info("change feed subscription closed", zap.String("channel", channel))
				return
			}
		}
	}()
	return nil
}
