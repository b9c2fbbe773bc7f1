// internal/game/table.go
package game

import (
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/pmoser/blackjack-server/internal/deck"
	"github.com/pmoser/blackjack-server/internal/protocol"
)

// Phase is the table-wide stage of a round.
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseBetting    Phase = "betting"
	PhasePlaying    Phase = "playing"
	PhaseDealerTurn Phase = "dealer_turn"
	PhaseEnded      Phase = "ended"
)

// Status is a player's stage within the current round.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusReady   Status = "ready"
	StatusPlaying Status = "playing"
	StatusStood   Status = "stood"
	StatusBusted  Status = "busted"
)

// Round results, valid only once the round has been settled.
const (
	ResultWin  = "win"
	ResultLose = "lose"
	ResultPush = "push"
)

// Rule violations reported back to the offending sender. Turn-order and
// phase races on hit/stand are dropped silently instead and never reach
// these.
var (
	ErrUnknownPlayer  = errors.New("join the table before acting")
	ErrNotBetting     = errors.New("bets are only accepted during the betting phase")
	ErrAlreadyBet     = errors.New("bet already placed for this round")
	ErrBetNotPositive = errors.New("bet must be greater than zero")
	ErrBetOverMax     = errors.New("bet exceeds the table maximum")
	ErrBetOverBalance = errors.New("not enough balance")
	ErrRoundNotOver   = errors.New("the round is not over yet")
)

// Player is one seat's record. It is created on first join and kept for
// the process lifetime; a disconnect resets the transient round fields but
// preserves the balance, so a returning nickname picks up its chips.
type Player struct {
	Nickname  string
	Hand      []deck.Card
	Bet       int
	Balance   int
	Status    Status
	Result    string
	Connected bool
}

// Rules are the fixed table limits.
type Rules struct {
	MaxBet       int
	StartBalance int
	MinPlayers   int

	// DealerDelay paces the dealer's draw loop. Zero disables the pause.
	DealerDelay time.Duration
}

// Table holds the entire state of the single shared blackjack table. One
// mutex serializes every read-modify-write across players, deck, phase and
// the turn pointer; the table is one resource by the rules of the game, so
// nothing finer-grained is warranted.
type Table struct {
	Mu sync.Mutex

	rules Rules
	rng   *rand.Rand

	phase          Phase
	current        string // nickname permitted to act while phase == playing
	dealerHand     []deck.Card
	dealerRevealed bool
	shoe           *deck.Deck

	players map[string]*Player
	order   []string // join order; fixes the turn rotation

	// BroadcastFn sends a message to every connected session. If nil, no
	// broadcast is done. Must not be invoked while Mu is held.
	BroadcastFn func(msg interface{})
}

// NewTable builds an empty table in the waiting phase.
func NewTable(rules Rules) *Table {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Table{
		rules:   rules,
		rng:     rng,
		phase:   PhaseWaiting,
		shoe:    deck.New(rng),
		players: make(map[string]*Player),
	}
}

// Rules returns the fixed table limits.
func (t *Table) Rules() Rules {
	return t.rules
}

// Join seats a nickname at the table, creating a fresh record with the
// starting balance on first sight and reusing the existing record
// otherwise. Reaching the minimum player count moves the table from
// waiting to betting.
func (t *Table) Join(nickname string) {
	t.Mu.Lock()
	p, ok := t.players[nickname]
	if !ok {
		p = &Player{
			Nickname: nickname,
			Balance:  t.rules.StartBalance,
			Status:   StatusWaiting,
		}
		t.players[nickname] = p
		t.order = append(t.order, nickname)
	}
	p.Connected = true
	if t.phase == PhaseWaiting && t.connectedCount() >= t.rules.MinPlayers {
		t.phase = PhaseBetting
		log.Printf("table has %d player(s), entering betting", t.connectedCount())
	}
	t.Mu.Unlock()

	t.broadcast(protocol.Info(nickname + " joined the table."))
	t.broadcastState()
}

// Leave marks the nickname's seat as vacated: the transient round fields
// are reset, the balance stays. If it was that player's turn, the turn
// advances exactly as a stand would. Leaving an unknown nickname is a
// no-op.
func (t *Table) Leave(nickname string) {
	t.Mu.Lock()
	p, ok := t.players[nickname]
	if !ok {
		t.Mu.Unlock()
		return
	}
	p.Connected = false
	p.Hand = nil
	p.Bet = 0
	p.Status = StatusWaiting
	p.Result = ""
	wasCurrent := t.phase == PhasePlaying && t.current == nickname
	t.Mu.Unlock()

	t.broadcast(protocol.Info(nickname + " left the table."))
	t.broadcastState()
	if wasCurrent {
		t.advanceTurn()
	}
}

// connectedCount reports how many seats have a live session. Caller holds Mu.
func (t *Table) connectedCount() int {
	n := 0
	for _, p := range t.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// broadcast hands a message to the broadcast hook, if one is wired.
func (t *Table) broadcast(msg interface{}) {
	if t.BroadcastFn != nil {
		t.BroadcastFn(msg)
	}
}

// broadcastState fans the current snapshot out to every session.
func (t *Table) broadcastState() {
	if t.BroadcastFn != nil {
		t.BroadcastFn(t.Snapshot())
	}
}
