// internal/history/journal.go
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list the journal pushes action records to.
const DefaultQueueName = "blackjack_actions"

// ActionRecord is one processed table action. The journal is write-only
// from the server's point of view; table state is never restored from it.
type ActionRecord struct {
	Nickname  string                 `json:"nickname"`
	Action    string                 `json:"action"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Journal appends action records to a Redis list for offline consumers.
// A nil *Journal is valid and records nothing, so callers don't need to
// guard the disabled case.
type Journal struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// Connect dials Redis at addr and verifies the connection.
func Connect(addr string, log *logrus.Logger) (*Journal, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Journal{rdb: rdb, queue: DefaultQueueName, log: log}, nil
}

// Record serializes the action and pushes it onto the queue. Failures are
// logged, not propagated: the journal must never interfere with play.
func (j *Journal) Record(nickname, action string, detail map[string]interface{}) {
	if j == nil {
		return
	}
	rec := ActionRecord{
		Nickname:  nickname,
		Action:    action,
		Detail:    detail,
		Timestamp: time.Now().Unix(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		j.log.Errorf("marshal action record: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		j.log.Warnf("journal push to %q failed: %v", j.queue, err)
	}
}
