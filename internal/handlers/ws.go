// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pmoser/blackjack-server/internal/middleware"
	"github.com/pmoser/blackjack-server/internal/protocol"
	"github.com/pmoser/blackjack-server/internal/session"
)

// wsConn adapts a WebSocket connection to session.Sender, one JSON object
// per text frame.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// WSHandler upgrades the HTTP connection to WebSocket and runs the same
// handshake and read loop as the TCP transport: a nick_request frame, the
// nickname as the first text frame, then one JSON message per frame.
func WSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx := r.Context()
		wc := &wsConn{conn: c}

		if err := sendJSON(wc, protocol.NickRequest{Type: protocol.TypeNickRequest}); err != nil {
			logger.Warnf("nick_request write failed: %v", err)
			return
		}
		_, data, err := c.Read(ctx)
		if err != nil {
			middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
			return
		}
		nickname := strings.TrimSpace(string(data))
		if nickname == "" {
			c.Close(websocket.StatusPolicyViolation, "A non-empty nickname is required.")
			return
		}

		sess := s.Connect(nickname, wc)
		defer s.Disconnect(sess)

		readErr := readMessages(ctx, c, s, sess, logger)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// readMessages reads frames until the connection closes, the context is
// cancelled, or the router asks for the connection to be dropped.
func readMessages(ctx context.Context, c *websocket.Conn, s *Server, sess *session.Session, logger *logrus.Logger) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			logger.Warnf("ignoring non-text frame from %s", sess.Nickname)
			continue
		}
		if err := s.Route(sess, data); err != nil {
			if errors.Is(err, errClientLeft) {
				return nil
			}
			return err
		}
	}
}
