// internal/handlers/tcp.go
package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pmoser/blackjack-server/internal/protocol"
	"github.com/pmoser/blackjack-server/internal/session"
)

// maxLineBytes bounds a single inbound line; anything bigger is a protocol
// violation and ends the connection.
const maxLineBytes = 64 * 1024

// lineConn adapts a raw TCP connection to session.Sender, writing one JSON
// object per newline-terminated line. A mutex keeps concurrent broadcasts
// from interleaving partial lines.
type lineConn struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *lineConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	_, err := c.conn.Write(append(data, '\n'))
	return err
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}

// sendJSON marshals v and writes it through the sender with a short write
// deadline. Used for the handshake, before a Session exists.
func sendJSON(sender session.Sender, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return sender.Send(ctx, data)
}

// ServeTCP accepts line-protocol clients on ln until the listener closes.
// Each connection gets its own goroutine; a single client failing never
// touches the rest.
func (s *Server) ServeTCP(ln net.Listener) error {
	s.log.Infof("TCP transport listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleTCPConn(conn)
	}
}

// handleTCPConn runs the handshake and then the read loop for one client.
// Handshake: the server sends nick_request, the client answers with a raw
// newline-terminated nickname, and every later line is a JSON message.
func (s *Server) handleTCPConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.log.WithField("remote", remote).Info("TCP client connected")

	lc := &lineConn{conn: conn}
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	if err := sendJSON(lc, protocol.NickRequest{Type: protocol.TypeNickRequest}); err != nil {
		conn.Close()
		return
	}
	if !sc.Scan() {
		conn.Close()
		return
	}
	nickname := strings.TrimSpace(sc.Text())
	if nickname == "" {
		conn.Close()
		return
	}

	sess := s.Connect(nickname, lc)
	defer s.Disconnect(sess)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := s.Route(sess, []byte(line)); err != nil {
			if !errors.Is(err, errClientLeft) {
				s.log.WithFields(logrus.Fields{
					"remote":   remote,
					"nickname": nickname,
				}).Warnf("dropping connection: %v", err)
			}
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.log.WithField("remote", remote).Debugf("read loop ended: %v", err)
	}
}
