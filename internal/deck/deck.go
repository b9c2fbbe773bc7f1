// internal/deck/deck.go
package deck

import (
	"fmt"
	"math/rand"
)

// Card is an immutable rank/suit pair. The wire representation is the
// display string produced by String (e.g. "10 of Hearts"), which is what
// the legacy clients parse.
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// String renders the card in the "<rank> of <suit>" form used on the wire.
func (c Card) String() string {
	return fmt.Sprintf("%s of %s", c.Rank, c.Suit)
}

var (
	suits = []string{"Hearts", "Diamonds", "Clubs", "Spades"}
	ranks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
)

// Deck is an ordered sequence of cards drawn from the top. It is not safe
// for concurrent use; the table's lock covers it.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// New returns a freshly shuffled 52-card deck. The random source is
// injected so tests can seed deterministic shoe orders.
func New(rng *rand.Rand) *Deck {
	d := &Deck{rng: rng}
	d.refill()
	return d
}

func (d *Deck) refill() {
	d.cards = d.cards[:0]
	for _, s := range suits {
		for _, r := range ranks {
			d.cards = append(d.cards, Card{Rank: r, Suit: s})
		}
	}
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw pops the top card. An empty deck is replaced with a fresh shuffled
// 52 first, so Draw always succeeds. This is a simplification rather than
// a continuous shoe.
func (d *Deck) Draw() Card {
	if len(d.cards) == 0 {
		d.refill()
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c
}

// Remaining reports how many cards are left before the next refill.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Load replaces the deck contents with the given cards in draw order
// (the first argument is drawn first). Used to force known deals.
func (d *Deck) Load(cards ...Card) {
	d.cards = d.cards[:0]
	for i := len(cards) - 1; i >= 0; i-- {
		d.cards = append(d.cards, cards[i])
	}
}

// Value computes the best blackjack value of a hand: face cards count 10,
// aces count 11 but are devalued to 1 one at a time while the total is
// over 21.
func Value(hand []Card) int {
	value := 0
	aces := 0
	for _, c := range hand {
		switch c.Rank {
		case "J", "Q", "K":
			value += 10
		case "A":
			value += 11
			aces++
		case "10":
			value += 10
		default:
			value += int(c.Rank[0] - '0')
		}
	}
	for value > 21 && aces > 0 {
		value -= 10
		aces--
	}
	return value
}
