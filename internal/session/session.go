// internal/session/session.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender abstracts the outbound half of a client connection so the
// registry works the same over the TCP line protocol and WebSocket.
// Implementations must be safe for concurrent Send calls.
type Sender interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// writeTimeout bounds a single outbound write so one stalled client cannot
// hold up a broadcast.
const writeTimeout = 3 * time.Second

// Session is one live connection bound to a nickname after the handshake.
type Session struct {
	ID       uuid.UUID
	Nickname string
	sender   Sender
}

// Send marshals v and writes it to this session's connection.
func (s *Session) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.sender.Send(ctx, data)
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	return s.sender.Close()
}

func contextWithWriteTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), writeTimeout)
}
