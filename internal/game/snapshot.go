// internal/game/snapshot.go
package game

import (
	"github.com/pmoser/blackjack-server/internal/protocol"
)

// Snapshot builds the client-visible view of the table. The dealer's hole
// card is substituted with the hidden placeholder until the dealer turn
// reveals it; everything else is public.
func (t *Table) Snapshot() protocol.StateMessage {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	return t.snapshotLocked()
}

// snapshotLocked is Snapshot for callers already holding Mu, used to pin a
// consistent view before releasing the lock for the actual send.
func (t *Table) snapshotLocked() protocol.StateMessage {
	dealer := make([]string, 0, len(t.dealerHand))
	for i, c := range t.dealerHand {
		if i == 0 && !t.dealerRevealed {
			dealer = append(dealer, protocol.HiddenCard)
			continue
		}
		dealer = append(dealer, c.String())
	}

	players := make(map[string]protocol.PlayerView, len(t.players))
	for n, p := range t.players {
		hand := make([]string, 0, len(p.Hand))
		for _, c := range p.Hand {
			hand = append(hand, c.String())
		}
		players[n] = protocol.PlayerView{
			Hand:    hand,
			Bet:     p.Bet,
			Balance: p.Balance,
			Status:  string(p.Status),
			Result:  p.Result,
		}
	}

	return protocol.StateMessage{
		Type: protocol.TypeState,
		Rules: protocol.Rules{
			MaxBet:       t.rules.MaxBet,
			StartBalance: t.rules.StartBalance,
		},
		Players: players,
		GameState: protocol.GameStateView{
			Status:        string(t.phase),
			CurrentPlayer: t.current,
			DealerHand:    dealer,
		},
	}
}
