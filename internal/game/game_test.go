// internal/game/game_test.go
package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmoser/blackjack-server/internal/deck"
	"github.com/pmoser/blackjack-server/internal/protocol"
)

// mockBroadcaster collects broadcast messages instead of sending them over
// a transport.
type mockBroadcaster struct {
	mu   sync.Mutex
	msgs []interface{}
}

func (mb *mockBroadcaster) fn(msg interface{}) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.msgs = append(mb.msgs, msg)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.msgs = nil
}

// lastState returns the most recent state snapshot broadcast, or nil.
func (mb *mockBroadcaster) lastState() *protocol.StateMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := len(mb.msgs) - 1; i >= 0; i-- {
		if st, ok := mb.msgs[i].(protocol.StateMessage); ok {
			return &st
		}
	}
	return nil
}

func (mb *mockBroadcaster) stateCount() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, m := range mb.msgs {
		if _, ok := m.(protocol.StateMessage); ok {
			n++
		}
	}
	return n
}

func testRules() Rules {
	return Rules{
		MaxBet:       100000,
		StartBalance: 100,
		MinPlayers:   1,
		DealerDelay:  0, // no pacing in tests
	}
}

// setupTable joins the given nicknames to a fresh table with the mock
// broadcaster wired in.
func setupTable(t *testing.T, rules Rules, nicks ...string) (*Table, *mockBroadcaster) {
	t.Helper()
	tbl := NewTable(rules)
	mb := &mockBroadcaster{}
	tbl.BroadcastFn = mb.fn
	for _, n := range nicks {
		tbl.Join(n)
	}
	mb.clear()
	return tbl, mb
}

func setHand(tbl *Table, nick string, cards ...deck.Card) {
	tbl.Mu.Lock()
	tbl.players[nick].Hand = cards
	tbl.Mu.Unlock()
}

func setDealerHand(tbl *Table, cards ...deck.Card) {
	tbl.Mu.Lock()
	tbl.dealerHand = cards
	tbl.Mu.Unlock()
}

func loadShoe(tbl *Table, cards ...deck.Card) {
	tbl.Mu.Lock()
	tbl.shoe.Load(cards...)
	tbl.Mu.Unlock()
}

func card(rank, suit string) deck.Card {
	return deck.Card{Rank: rank, Suit: suit}
}

func balanceOf(tbl *Table, nick string) int {
	tbl.Mu.Lock()
	defer tbl.Mu.Unlock()
	return tbl.players[nick].Balance
}

func TestJoinOpensBettingAtMinimum(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 2
	tbl, _ := setupTable(t, rules)

	tbl.Join("alice")
	assert.Equal(t, PhaseWaiting, tbl.phase, "one player is below the minimum")

	tbl.Join("bob")
	assert.Equal(t, PhaseBetting, tbl.phase)

	require.Contains(t, tbl.players, "alice")
	assert.Equal(t, 100, tbl.players["alice"].Balance)
	assert.Equal(t, StatusWaiting, tbl.players["alice"].Status)
}

func TestRejoinPreservesBalance(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")

	require.NoError(t, tbl.PlaceBet("alice", 30))
	require.Equal(t, 70, balanceOf(tbl, "alice"))

	tbl.Leave("alice")
	tbl.Mu.Lock()
	p := tbl.players["alice"]
	assert.False(t, p.Connected)
	assert.Nil(t, p.Hand)
	assert.Equal(t, 0, p.Bet)
	assert.Equal(t, StatusWaiting, p.Status)
	tbl.Mu.Unlock()

	tbl.Join("alice")
	assert.Equal(t, 70, balanceOf(tbl, "alice"), "the wagered chips stay forfeited, the rest survives the reconnect")
}

func TestBetValidation(t *testing.T) {
	tests := []struct {
		name string
		bet  int
		want error
	}{
		{"zero bet", 0, ErrBetNotPositive},
		{"negative bet", -5, ErrBetNotPositive},
		{"over table max", 100001, ErrBetOverMax},
		{"over balance", 101, ErrBetOverBalance},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rules := testRules()
			rules.MinPlayers = 2 // keep a rejected bet from starting a round
			tbl, mb := setupTable(t, rules, "alice", "bob")
			require.Equal(t, PhaseBetting, tbl.phase)

			err := tbl.PlaceBet("alice", tc.bet)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, PhaseBetting, tbl.phase, "a rejected bet must not change phase")
			assert.Equal(t, 100, balanceOf(tbl, "alice"), "a rejected bet must not change balance")
			assert.Equal(t, 0, mb.stateCount(), "a rejected bet must not broadcast")
		})
	}
}

func TestSecondBetRejected(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 2
	tbl, _ := setupTable(t, rules, "alice", "bob")

	require.NoError(t, tbl.PlaceBet("alice", 10))
	err := tbl.PlaceBet("alice", 20)
	require.ErrorIs(t, err, ErrAlreadyBet)
	assert.Equal(t, 90, balanceOf(tbl, "alice"))
}

func TestBetOutsideBettingPhase(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	require.NoError(t, tbl.PlaceBet("alice", 10)) // sole player, round starts

	require.Equal(t, PhasePlaying, tbl.phase)
	err := tbl.PlaceBet("alice", 10)
	require.ErrorIs(t, err, ErrNotBetting)
}

func TestUnknownPlayerBet(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	err := tbl.PlaceBet("mallory", 10)
	require.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestAllBetsDealRound(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 2
	tbl, mb := setupTable(t, rules, "alice", "bob")

	require.NoError(t, tbl.PlaceBet("alice", 10))
	assert.Equal(t, PhaseBetting, tbl.phase, "round must wait for every eligible bet")

	require.NoError(t, tbl.PlaceBet("bob", 20))

	tbl.Mu.Lock()
	assert.Equal(t, PhasePlaying, tbl.phase)
	assert.Equal(t, "alice", tbl.current, "first joiner acts first")
	assert.Len(t, tbl.dealerHand, 2)
	assert.False(t, tbl.dealerRevealed)
	for _, n := range []string{"alice", "bob"} {
		p := tbl.players[n]
		assert.Len(t, p.Hand, 2)
		assert.Equal(t, StatusPlaying, p.Status)
		assert.Empty(t, p.Result)
	}
	tbl.Mu.Unlock()

	st := mb.lastState()
	require.NotNil(t, st)
	assert.Equal(t, string(PhasePlaying), st.GameState.Status)
}

// TestTurnRotation walks the fixed rotation: P1 stands, P2 busts on a hit,
// P3 stands, then the dealer plays out.
func TestTurnRotation(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 3
	tbl, mb := setupTable(t, rules, "p1", "p2", "p3")
	for _, n := range []string{"p1", "p2", "p3"} {
		require.NoError(t, tbl.PlaceBet(n, 10))
	}
	require.Equal(t, PhasePlaying, tbl.phase)
	require.Equal(t, "p1", tbl.current)

	// Pin hands and the shoe so the walk is deterministic.
	setHand(tbl, "p1", card("K", "Hearts"), card("9", "Clubs"))    // 19
	setHand(tbl, "p2", card("K", "Spades"), card("9", "Hearts"))   // 19, will bust
	setHand(tbl, "p3", card("K", "Clubs"), card("8", "Diamonds"))  // 18
	setDealerHand(tbl, card("K", "Diamonds"), card("9", "Spades")) // 19, stands pat
	loadShoe(tbl, card("Q", "Hearts"))                             // p2's bust card

	tbl.Stand("p1")
	assert.Equal(t, "p2", tbl.current)

	tbl.Hit("p2") // 29, busted
	tbl.Mu.Lock()
	assert.Equal(t, StatusBusted, tbl.players["p2"].Status)
	assert.Equal(t, "p3", tbl.current)
	tbl.Mu.Unlock()

	mb.clear()
	tbl.Stand("p3") // dealer at 19 stands; round settles synchronously

	tbl.Mu.Lock()
	assert.Equal(t, PhaseEnded, tbl.phase)
	assert.True(t, tbl.dealerRevealed)
	assert.Empty(t, tbl.current)
	tbl.Mu.Unlock()

	// p1 pushes at 19, p2 busted, p3 loses 18 vs 19.
	assert.Equal(t, ResultPush, tbl.players["p1"].Result)
	assert.Equal(t, 100, balanceOf(tbl, "p1"))
	assert.Equal(t, ResultLose, tbl.players["p2"].Result)
	assert.Equal(t, 90, balanceOf(tbl, "p2"))
	assert.Equal(t, ResultLose, tbl.players["p3"].Result)
	assert.Equal(t, 90, balanceOf(tbl, "p3"))

	st := mb.lastState()
	require.NotNil(t, st)
	assert.Equal(t, string(PhaseEnded), st.GameState.Status)
}

func TestOutOfTurnActionsDropped(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 2
	tbl, mb := setupTable(t, rules, "alice", "bob")
	require.NoError(t, tbl.PlaceBet("alice", 10))
	require.NoError(t, tbl.PlaceBet("bob", 10))
	require.Equal(t, "alice", tbl.current)
	mb.clear()

	tbl.Mu.Lock()
	bobCards := len(tbl.players["bob"].Hand)
	tbl.Mu.Unlock()

	tbl.Hit("bob")
	tbl.Stand("bob")

	tbl.Mu.Lock()
	assert.Equal(t, "alice", tbl.current, "out-of-turn actions must not advance the turn")
	assert.Equal(t, bobCards, len(tbl.players["bob"].Hand))
	assert.Equal(t, StatusPlaying, tbl.players["bob"].Status)
	tbl.Mu.Unlock()
	assert.Equal(t, 0, mb.stateCount(), "dropped actions must not broadcast")
}

func TestWrongPhaseActionsDropped(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 2
	tbl, mb := setupTable(t, rules, "alice", "bob")
	require.Equal(t, PhaseBetting, tbl.phase)

	tbl.Hit("alice")
	tbl.Stand("alice")
	assert.Equal(t, PhaseBetting, tbl.phase)
	assert.Equal(t, 0, mb.stateCount())
}

// TestDealerForcedDeck replays the fixed-shoe scenario: dealer 10+6 draws
// a 5 to 21, the player stands at 16 and loses.
func TestDealerForcedDeck(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	require.NoError(t, tbl.PlaceBet("alice", 10))
	require.Equal(t, PhasePlaying, tbl.phase)

	setDealerHand(tbl, card("10", "Diamonds"), card("6", "Spades"))
	setHand(tbl, "alice", card("9", "Clubs"), card("7", "Hearts"))
	loadShoe(tbl, card("5", "Diamonds"))

	tbl.Stand("alice")

	tbl.Mu.Lock()
	assert.Equal(t, PhaseEnded, tbl.phase)
	require.Len(t, tbl.dealerHand, 3)
	assert.Equal(t, 21, deck.Value(tbl.dealerHand))
	tbl.Mu.Unlock()

	assert.Equal(t, ResultLose, tbl.players["alice"].Result)
	assert.Equal(t, 90, balanceOf(tbl, "alice"))
}

// TestDealerDrawsBroadcastEachCard forces a three-draw dealer sequence
// and counts the broadcasts: one for the stand, one for the hole-card
// reveal, one per dealer draw and one for the settled round.
func TestDealerDrawsBroadcastEachCard(t *testing.T) {
	tbl, mb := setupTable(t, testRules(), "alice")
	require.NoError(t, tbl.PlaceBet("alice", 10))

	setDealerHand(tbl, card("2", "Hearts"), card("3", "Spades")) // 5
	setHand(tbl, "alice", card("K", "Clubs"), card("9", "Hearts"))
	loadShoe(tbl, card("5", "Diamonds"), card("4", "Clubs"), card("K", "Spades")) // 10, 14, 24
	mb.clear()

	tbl.Stand("alice")

	tbl.Mu.Lock()
	require.Len(t, tbl.dealerHand, 5)
	tbl.Mu.Unlock()
	assert.Equal(t, 6, mb.stateCount(), "clients must see every dealer card arrive")
}

func TestDealerStandsAtSeventeen(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	require.NoError(t, tbl.PlaceBet("alice", 10))

	setDealerHand(tbl, card("10", "Diamonds"), card("7", "Spades"))
	setHand(tbl, "alice", card("K", "Clubs"), card("8", "Hearts"))

	tbl.Stand("alice")

	tbl.Mu.Lock()
	assert.Len(t, tbl.dealerHand, 2, "dealer must not draw at 17")
	tbl.Mu.Unlock()
	assert.Equal(t, ResultWin, tbl.players["alice"].Result, "18 beats 17")
	assert.Equal(t, 110, balanceOf(tbl, "alice"), "win pays back double the wager")
}

func TestDealerBustPaysEveryStander(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	require.NoError(t, tbl.PlaceBet("alice", 10))

	setDealerHand(tbl, card("10", "Diamonds"), card("6", "Spades"))
	setHand(tbl, "alice", card("6", "Clubs"), card("6", "Hearts")) // 12, loses to any made hand
	loadShoe(tbl, card("K", "Hearts"))                            // dealer draws to 26

	tbl.Stand("alice")

	tbl.Mu.Lock()
	assert.Greater(t, deck.Value(tbl.dealerHand), 21)
	tbl.Mu.Unlock()
	assert.Equal(t, ResultWin, tbl.players["alice"].Result)
	assert.Equal(t, 110, balanceOf(tbl, "alice"))
}

func TestSnapshotHidesHoleCardUntilReveal(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	require.NoError(t, tbl.PlaceBet("alice", 10))
	setDealerHand(tbl, card("10", "Diamonds"), card("6", "Spades"))

	st := tbl.Snapshot()
	require.Len(t, st.GameState.DealerHand, 2)
	assert.Equal(t, protocol.HiddenCard, st.GameState.DealerHand[0])
	assert.Equal(t, "6 of Spades", st.GameState.DealerHand[1])

	tbl.Mu.Lock()
	tbl.dealerRevealed = true
	tbl.Mu.Unlock()

	st = tbl.Snapshot()
	assert.Equal(t, []string{"10 of Diamonds", "6 of Spades"}, st.GameState.DealerHand)
}

func TestSnapshotEmptyDealerHand(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	st := tbl.Snapshot()
	assert.Empty(t, st.GameState.DealerHand)
}

func TestDisconnectNonCurrentKeepsTurn(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 3
	tbl, _ := setupTable(t, rules, "p1", "p2", "p3")
	for _, n := range []string{"p1", "p2", "p3"} {
		require.NoError(t, tbl.PlaceBet(n, 10))
	}
	require.Equal(t, "p1", tbl.current)

	tbl.Leave("p3")

	tbl.Mu.Lock()
	assert.Equal(t, "p1", tbl.current)
	assert.Equal(t, PhasePlaying, tbl.phase)
	assert.Equal(t, StatusWaiting, tbl.players["p3"].Status)
	tbl.Mu.Unlock()
}

func TestDisconnectCurrentAdvancesLikeStand(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 3
	tbl, _ := setupTable(t, rules, "p1", "p2", "p3")
	for _, n := range []string{"p1", "p2", "p3"} {
		require.NoError(t, tbl.PlaceBet(n, 10))
	}
	require.Equal(t, "p1", tbl.current)

	tbl.Leave("p1")

	tbl.Mu.Lock()
	assert.Equal(t, "p2", tbl.current, "turn must move off the vanished player")
	assert.Equal(t, PhasePlaying, tbl.phase)
	tbl.Mu.Unlock()
}

func TestDisconnectLastPlayerRunsDealer(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	require.NoError(t, tbl.PlaceBet("alice", 10))
	setDealerHand(tbl, card("K", "Hearts"), card("9", "Spades"))

	tbl.Leave("alice")

	tbl.Mu.Lock()
	assert.Equal(t, PhaseEnded, tbl.phase)
	assert.True(t, tbl.dealerRevealed)
	tbl.Mu.Unlock()
	// The leaver's bet was cleared on disconnect, so settlement skipped them.
	assert.Empty(t, tbl.players["alice"].Result)
	assert.Equal(t, 90, balanceOf(tbl, "alice"))
}

func TestMidRoundJoinerSitsOut(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	require.NoError(t, tbl.PlaceBet("alice", 10))
	require.Equal(t, PhasePlaying, tbl.phase)
	setDealerHand(tbl, card("K", "Hearts"), card("7", "Spades"))
	setHand(tbl, "alice", card("K", "Clubs"), card("9", "Hearts"))

	tbl.Join("late")
	tbl.Mu.Lock()
	assert.Equal(t, StatusWaiting, tbl.players["late"].Status)
	assert.Empty(t, tbl.players["late"].Hand)
	assert.Equal(t, "alice", tbl.current)
	tbl.Mu.Unlock()

	tbl.Stand("alice")

	assert.Equal(t, PhaseEnded, tbl.phase)
	assert.Empty(t, tbl.players["late"].Result, "a betless joiner is skipped at settlement")
	assert.Equal(t, 100, balanceOf(tbl, "late"))
}

func TestNewRoundOnlyAfterEnd(t *testing.T) {
	tbl, _ := setupTable(t, testRules(), "alice")
	require.Equal(t, PhaseBetting, tbl.phase)

	err := tbl.NewRound()
	require.ErrorIs(t, err, ErrRoundNotOver)
}

func TestNewRoundResetsTable(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 2
	tbl, mb := setupTable(t, rules, "alice", "bob")
	require.NoError(t, tbl.PlaceBet("alice", 10))
	require.NoError(t, tbl.PlaceBet("bob", 10))
	setDealerHand(tbl, card("K", "Hearts"), card("9", "Spades"))
	setHand(tbl, "alice", card("K", "Clubs"), card("9", "Hearts"))
	setHand(tbl, "bob", card("K", "Spades"), card("8", "Hearts"))
	tbl.Stand("alice")
	tbl.Stand("bob")
	require.Equal(t, PhaseEnded, tbl.phase)
	mb.clear()

	require.NoError(t, tbl.NewRound())

	tbl.Mu.Lock()
	assert.Equal(t, PhaseBetting, tbl.phase, "minimum still met, straight back to betting")
	assert.Empty(t, tbl.dealerHand)
	assert.False(t, tbl.dealerRevealed)
	assert.Empty(t, tbl.current)
	for _, p := range tbl.players {
		assert.Empty(t, p.Hand)
		assert.Equal(t, 0, p.Bet)
		assert.Equal(t, StatusWaiting, p.Status)
		assert.Empty(t, p.Result)
	}
	tbl.Mu.Unlock()

	require.NotNil(t, mb.lastState())
}

func TestNewRoundFallsBackToWaiting(t *testing.T) {
	rules := testRules()
	rules.MinPlayers = 2
	tbl, _ := setupTable(t, rules, "alice", "bob")
	require.NoError(t, tbl.PlaceBet("alice", 10))
	require.NoError(t, tbl.PlaceBet("bob", 10))
	setDealerHand(tbl, card("K", "Hearts"), card("9", "Spades"))
	setHand(tbl, "alice", card("K", "Clubs"), card("9", "Hearts"))
	setHand(tbl, "bob", card("K", "Spades"), card("8", "Hearts"))
	tbl.Stand("alice")
	tbl.Stand("bob")
	require.Equal(t, PhaseEnded, tbl.phase)

	tbl.Leave("bob")
	require.NoError(t, tbl.NewRound())
	assert.Equal(t, PhaseWaiting, tbl.phase)
}

// TestDealerPacingReleasesLock makes sure other goroutines can read table
// state while the dealer waits between draws.
func TestDealerPacingReleasesLock(t *testing.T) {
	rules := testRules()
	rules.DealerDelay = 50 * time.Millisecond
	tbl, _ := setupTable(t, rules, "alice")
	require.NoError(t, tbl.PlaceBet("alice", 10))

	setDealerHand(tbl, card("2", "Hearts"), card("2", "Spades"))
	setHand(tbl, "alice", card("K", "Clubs"), card("9", "Hearts"))
	loadShoe(tbl, card("2", "Clubs"), card("2", "Diamonds"), card("3", "Hearts"), card("3", "Spades"), card("K", "Hearts"))

	done := make(chan struct{})
	go func() {
		tbl.Stand("alice") // runs the paced dealer loop
		close(done)
	}()

	// A concurrent snapshot must not block for the whole dealer sequence.
	snapDone := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		tbl.Snapshot()
		close(snapDone)
	}()

	select {
	case <-snapDone:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("snapshot blocked during dealer pacing")
	}
	<-done
	assert.Equal(t, PhaseEnded, tbl.phase)
}
