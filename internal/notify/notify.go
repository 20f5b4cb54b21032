// internal/notify/notify.go

// Package notify hands push notifications to the delivery worker over a Redis
// queue. Sends are fire and forget: a delivery failure never blocks or fails
// the game flow that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list the push worker consumes.
const DefaultQueueName = "skatevs_push"

// Notification is the minimal payload the push worker needs.
type Notification struct {
	UserID    uuid.UUID              `json:"user_id"`
	Kind      string                 `json:"kind"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Notifier pushes notifications onto the queue.
type Notifier struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// New connects a Redis client and verifies it with a ping.
func New(addr string, db int, queue string, log *logrus.Logger) (*Notifier, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis at %s: %w", addr, err)
	}
	return &Notifier{rdb: rdb, queue: queue, log: log}, nil
}

// Push enqueues a notification. Errors are logged, never returned to the
// game flow.
func (n *Notifier) Push(ctx context.Context, note Notification) {
	if n == nil {
		return
	}
	note.Timestamp = time.Now().Unix()
	data, err := json.Marshal(note)
	if err != nil {
		n.log.WithError(err).Error("failed to marshal notification")
		return
	}
	if err := n.rdb.RPush(ctx, n.queue, data).Err(); err != nil {
		n.log.WithError(err).WithFields(logrus.Fields{"user": note.UserID, "kind": note.Kind}).
			Warn("failed to enqueue notification")
	}
}

// Close releases the Redis client.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return n.rdb.Close()
}
