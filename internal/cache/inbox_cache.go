package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medchat/internal/model"
)

// InboxCache holds notifications for users with no live notifier connection
type InboxCache interface {
	Push(ctx context.Context, n *model.Notification) error
	Drain(ctx context.Context, userID string) ([]*model.Notification, error)
}

type inboxCache struct {
	client *redis.Client
	max    int64
	ttl    time.Duration
}

// NewInboxCache creates an inbox keeping at most max records per user for ttl
func NewInboxCache(client *redis.Client, max int, ttl time.Duration) InboxCache {
	return &inboxCache{
		client: client,
		max:    int64(max),
		ttl:    ttl,
	}
}

func (c *inboxCache) key(userID string) string {
	return fmt.Sprintf("inbox:%s", userID)
}

func (c *inboxCache) Push(ctx context.Context, n *model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := c.key(n.UserID)
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -c.max, -1) // keep the newest
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Drain returns the pending records oldest first and empties the inbox
func (c *inboxCache) Drain(ctx context.Context, userID string) ([]*model.Notification, error) {
	key := c.key(userID)
	var items *redis.StringSliceCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		items = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*model.Notification, 0, len(items.Val()))
	for _, raw := range items.Val() {
		var n model.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		out = append(out, &n)
	}
	return out, nil
}
