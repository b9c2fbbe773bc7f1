// internal/protocol/messages.go
package protocol

// Message type identifiers shared by both transports.
const (
	TypeJoin     = "join"
	TypeBet      = "bet"
	TypeHit      = "hit"
	TypeStand    = "stand"
	TypeNewRound = "new_round"
	TypeChat     = "chat"
	TypeLeave    = "leave"

	TypeNickRequest = "nick_request"
	TypeState       = "state"
	TypeInfo        = "info"
	TypeError       = "error"
)

// HiddenCard is the placeholder substituted for the dealer's hole card in
// snapshots taken before the reveal.
const HiddenCard = "[hidden]"

// ClientMessage is the envelope for every inbound message. Fields not
// relevant to a given type are left at their zero value by the client.
type ClientMessage struct {
	Type     string `json:"type"`
	Nickname string `json:"nickname,omitempty"`
	Bet      int    `json:"bet,omitempty"`
	Text     string `json:"text,omitempty"`
}

// NickRequest asks a freshly connected client for its nickname. The reply
// is a raw newline-terminated string, not a structured message.
type NickRequest struct {
	Type string `json:"type"`
}

// Rules echoes the fixed table limits so clients can validate input locally.
type Rules struct {
	MaxBet       int `json:"max_bet"`
	StartBalance int `json:"start_balance"`
}

// PlayerView is the public per-player portion of a state snapshot.
type PlayerView struct {
	Hand    []string `json:"hand"`
	Bet     int      `json:"bet"`
	Balance int      `json:"balance"`
	Status  string   `json:"status"`
	Result  string   `json:"result"`
}

// GameStateView is the table-wide portion of a state snapshot. DealerHand
// carries display strings; the hole card is HiddenCard until the reveal.
type GameStateView struct {
	Status        string   `json:"status"`
	CurrentPlayer string   `json:"current_player"`
	DealerHand    []string `json:"dealer_hand"`
}

// StateMessage is the full-table snapshot broadcast after every mutation.
type StateMessage struct {
	Type      string                `json:"type"`
	Rules     Rules                 `json:"rules"`
	Players   map[string]PlayerView `json:"players"`
	GameState GameStateView         `json:"game_state"`
}

// InfoMessage is a broadcast notice (joins, leaves).
type InfoMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorMessage reports a rule violation to the offending sender only.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChatMessage relays a chat line to every session.
type ChatMessage struct {
	Type string `json:"type"`
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// Info builds an InfoMessage.
func Info(message string) InfoMessage {
	return InfoMessage{Type: TypeInfo, Message: message}
}

// Error builds an ErrorMessage.
func Error(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}
