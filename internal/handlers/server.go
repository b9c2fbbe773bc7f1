// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pmoser/blackjack-server/internal/config"
	"github.com/pmoser/blackjack-server/internal/game"
	"github.com/pmoser/blackjack-server/internal/history"
	"github.com/pmoser/blackjack-server/internal/protocol"
	"github.com/pmoser/blackjack-server/internal/session"
)

// errClientLeft signals that the client asked to leave; the read loop
// exits normally rather than treating it as a protocol failure.
var errClientLeft = errors.New("client left")

// Server ties the table, the session registry and both transports
// together. All transports funnel inbound messages through Route.
type Server struct {
	log      *logrus.Logger
	cfg      config.Config
	table    *game.Table
	registry *session.Registry
	journal  *history.Journal
}

// NewServer wires a table and registry to each other: table broadcasts go
// through the registry, and a session evicted on a failed send vacates its
// seat like a normal leave.
func NewServer(log *logrus.Logger, cfg config.Config, journal *history.Journal) *Server {
	table := game.NewTable(game.Rules{
		MaxBet:       cfg.MaxBet,
		StartBalance: cfg.StartBalance,
		MinPlayers:   cfg.MinPlayers,
		DealerDelay:  cfg.DealerDelay,
	})
	registry := session.NewRegistry(log)
	table.BroadcastFn = registry.Broadcast
	registry.OnEvict = func(s *session.Session) {
		log.WithField("nickname", s.Nickname).Info("session evicted after failed send")
		table.Leave(s.Nickname)
	}
	return &Server{
		log:      log,
		cfg:      cfg,
		table:    table,
		registry: registry,
		journal:  journal,
	}
}

// Table exposes the table for wiring and tests.
func (s *Server) Table() *game.Table {
	return s.table
}

// Connect registers the handshaken session and sends it a private state
// snapshot so the client can render before the next broadcast.
func (s *Server) Connect(nickname string, sender session.Sender) *session.Session {
	sess := s.registry.Add(nickname, sender)
	if err := sess.Send(s.table.Snapshot()); err != nil {
		s.log.WithField("nickname", nickname).Warnf("initial snapshot send failed: %v", err)
	}
	return sess
}

// Disconnect tears the session down and vacates its seat. Safe to call
// more than once; only the first call reaches the table.
func (s *Server) Disconnect(sess *session.Session) {
	if s.registry.Remove(sess) {
		s.table.Leave(sess.Nickname)
	}
}

// Route dispatches one inbound message. A non-nil return means the
// connection should be dropped; rule violations are answered on the
// offending session only and return nil.
func (s *Server) Route(sess *session.Session, raw []byte) error {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}

	s.journal.Record(sess.Nickname, msg.Type, actionDetail(msg))

	switch msg.Type {
	case protocol.TypeJoin:
		if msg.Nickname == "" {
			return nil
		}
		// The session follows the nickname it joins as, so a later
		// disconnect vacates the right seat. The abandoned nickname is
		// vacated now for the same reason.
		if prev := s.registry.Rebind(sess, msg.Nickname); prev != "" {
			s.table.Leave(prev)
		}
		s.table.Join(msg.Nickname)

	case protocol.TypeBet:
		if err := s.table.PlaceBet(msg.Nickname, msg.Bet); err != nil {
			s.sendError(sess, err)
		}

	case protocol.TypeHit:
		s.table.Hit(msg.Nickname)

	case protocol.TypeStand:
		s.table.Stand(msg.Nickname)

	case protocol.TypeNewRound:
		if err := s.table.NewRound(); err != nil {
			s.sendError(sess, err)
		}

	case protocol.TypeChat:
		s.handleChat(sess, msg.Text)

	case protocol.TypeLeave:
		return errClientLeft

	default:
		s.log.WithFields(logrus.Fields{
			"nickname": sess.Nickname,
			"type":     msg.Type,
		}).Warn("ignoring unknown message type")
	}
	return nil
}

// handleChat relays a chat line to the whole table, trimming whitespace
// and truncating to the configured length. Empty chat is dropped.
func (s *Server) handleChat(sess *session.Session, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if runes := []rune(text); len(runes) > s.cfg.MaxChatLen {
		text = string(runes[:s.cfg.MaxChatLen])
	}
	s.registry.Broadcast(protocol.ChatMessage{
		Type: protocol.TypeChat,
		From: sess.Nickname,
		Text: text,
		Ts:   time.Now().Unix(),
	})
}

// sendError answers a rule violation on the offending nickname's session
// only. Going through the registry means a failed reply evicts the dead
// connection like any other failed send.
func (s *Server) sendError(sess *session.Session, err error) {
	s.registry.SendTo(sess.Nickname, protocol.Error(err.Error()))
}

// actionDetail picks the journal-worthy payload of a message, if any.
func actionDetail(msg protocol.ClientMessage) map[string]interface{} {
	switch msg.Type {
	case protocol.TypeJoin:
		return map[string]interface{}{"nickname": msg.Nickname}
	case protocol.TypeBet:
		return map[string]interface{}{"bet": msg.Bet}
	}
	return nil
}
