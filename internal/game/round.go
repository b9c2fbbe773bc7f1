// internal/game/round.go
package game

import (
	"log"
	"time"

	"github.com/pmoser/blackjack-server/internal/deck"
)

// PlaceBet wagers amount for nickname. The bet is deducted from the
// balance immediately and settled at round end. An accepted bet that
// completes the betting phase starts the round.
func (t *Table) PlaceBet(nickname string, amount int) error {
	t.Mu.Lock()
	p, ok := t.players[nickname]
	if !ok {
		t.Mu.Unlock()
		return ErrUnknownPlayer
	}
	if t.phase != PhaseBetting {
		t.Mu.Unlock()
		return ErrNotBetting
	}
	if p.Bet > 0 {
		t.Mu.Unlock()
		return ErrAlreadyBet
	}
	if amount <= 0 {
		t.Mu.Unlock()
		return ErrBetNotPositive
	}
	if amount > t.rules.MaxBet {
		t.Mu.Unlock()
		return ErrBetOverMax
	}
	if amount > p.Balance {
		t.Mu.Unlock()
		return ErrBetOverBalance
	}

	p.Bet = amount
	p.Balance -= amount
	p.Status = StatusReady
	t.Mu.Unlock()

	t.broadcastState()
	t.maybeStartRound()
	return nil
}

// maybeStartRound deals the round once every eligible player has wagered.
// Eligible means connected and not already locked into a hand.
func (t *Table) maybeStartRound() {
	t.Mu.Lock()
	if t.phase != PhaseBetting {
		t.Mu.Unlock()
		return
	}
	active := t.eligibleOrder()
	if len(active) == 0 {
		t.Mu.Unlock()
		return
	}
	for _, n := range active {
		if t.players[n].Bet <= 0 {
			t.Mu.Unlock()
			return
		}
	}

	t.phase = PhasePlaying
	t.shoe = deck.New(t.rng)
	t.dealerHand = []deck.Card{t.shoe.Draw(), t.shoe.Draw()}
	t.dealerRevealed = false
	for _, n := range active {
		p := t.players[n]
		p.Hand = []deck.Card{t.shoe.Draw(), t.shoe.Draw()}
		p.Status = StatusPlaying
		p.Result = ""
	}
	t.current = active[0]
	log.Printf("round started with %d player(s), %s to act", len(active), t.current)
	t.Mu.Unlock()

	t.broadcastState()
}

// eligibleOrder lists, in join order, the connected players who can take
// part in the next deal. Caller holds Mu.
func (t *Table) eligibleOrder() []string {
	var active []string
	for _, n := range t.order {
		p := t.players[n]
		if !p.Connected {
			continue
		}
		switch p.Status {
		case StatusWaiting, StatusReady:
			active = append(active, n)
		}
	}
	return active
}

// Hit draws one card for nickname. Acting out of turn or outside the
// playing phase is an expected race against the broadcast state and is
// dropped without reply.
func (t *Table) Hit(nickname string) {
	t.Mu.Lock()
	if t.phase != PhasePlaying || t.current != nickname {
		t.Mu.Unlock()
		return
	}
	p := t.players[nickname]
	p.Hand = append(p.Hand, t.shoe.Draw())
	busted := deck.Value(p.Hand) > 21
	if busted {
		p.Status = StatusBusted
	}
	t.Mu.Unlock()

	t.broadcastState()
	if busted {
		t.advanceTurn()
	}
}

// Stand ends nickname's turn. Out-of-turn and wrong-phase stands are
// dropped, same as Hit.
func (t *Table) Stand(nickname string) {
	t.Mu.Lock()
	if t.phase != PhasePlaying || t.current != nickname {
		t.Mu.Unlock()
		return
	}
	t.players[nickname].Status = StatusStood
	t.Mu.Unlock()

	t.broadcastState()
	t.advanceTurn()
}

// advanceTurn moves the turn pointer to the next player still in the
// round, wrapping in join order. With nobody left to act the dealer's
// hole card is revealed and the dealer plays out.
func (t *Table) advanceTurn() {
	t.Mu.Lock()
	if t.phase != PhasePlaying {
		t.Mu.Unlock()
		return
	}
	var playing []string
	for _, n := range t.order {
		if t.players[n].Status == StatusPlaying {
			playing = append(playing, n)
		}
	}
	dealerTurn := len(playing) == 0
	if dealerTurn {
		t.phase = PhaseDealerTurn
		t.dealerRevealed = true
	} else {
		idx := -1
		for i, n := range playing {
			if n == t.current {
				idx = i
				break
			}
		}
		t.current = playing[(idx+1)%len(playing)]
	}
	t.Mu.Unlock()

	t.broadcastState()
	if dealerTurn {
		t.dealerPlay()
	}
}

// dealerPlay draws for the dealer until 17 or better, broadcasting after
// every draw with a pacing delay so clients can watch the sequence. The
// lock is released across the broadcast and the wait; only the draw itself
// holds it.
func (t *Table) dealerPlay() {
	for {
		t.Mu.Lock()
		if t.phase != PhaseDealerTurn {
			t.Mu.Unlock()
			return
		}
		if deck.Value(t.dealerHand) >= 17 {
			t.Mu.Unlock()
			break
		}
		t.dealerHand = append(t.dealerHand, t.shoe.Draw())
		snap := t.snapshotLocked()
		t.Mu.Unlock()

		t.broadcast(snap)
		if t.rules.DealerDelay > 0 {
			time.Sleep(t.rules.DealerDelay)
		}
	}

	t.settle()

	t.Mu.Lock()
	t.phase = PhaseEnded
	t.current = ""
	t.Mu.Unlock()
	t.broadcastState()
}

// settle resolves every positive wager against the final dealer hand.
// Bets were deducted at wager time: a win pays back double, a push refunds,
// a loss pays nothing. Players without a bet sat this round out.
func (t *Table) settle() {
	t.Mu.Lock()
	defer t.Mu.Unlock()

	dealerValue := deck.Value(t.dealerHand)
	for _, p := range t.players {
		if p.Bet <= 0 {
			continue
		}
		playerValue := deck.Value(p.Hand)
		switch {
		case p.Status == StatusBusted:
			p.Result = ResultLose
		case dealerValue > 21 || playerValue > dealerValue:
			p.Balance += p.Bet * 2
			p.Result = ResultWin
		case playerValue == dealerValue:
			p.Balance += p.Bet
			p.Result = ResultPush
		default:
			p.Result = ResultLose
		}
	}
	log.Printf("round settled, dealer had %d", dealerValue)
}

// NewRound clears the finished round and reopens betting, or falls back to
// waiting if the table has emptied below the minimum. Only valid once the
// round has ended.
func (t *Table) NewRound() error {
	t.Mu.Lock()
	if t.phase != PhaseEnded {
		t.Mu.Unlock()
		return ErrRoundNotOver
	}
	for _, p := range t.players {
		p.Hand = nil
		p.Bet = 0
		p.Status = StatusWaiting
		p.Result = ""
	}
	t.dealerHand = nil
	t.dealerRevealed = false
	t.shoe = deck.New(t.rng)
	t.current = ""
	if t.connectedCount() >= t.rules.MinPlayers {
		t.phase = PhaseBetting
	} else {
		t.phase = PhaseWaiting
	}
	t.Mu.Unlock()

	t.broadcastState()
	return nil
}
