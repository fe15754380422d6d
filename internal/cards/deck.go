package cards

import "math/rand"

// Deck is a shoe of one or more 52-card decks dealt front to back. A shoe is
// shuffled once per hand and never reused; callers construct a fresh one per
// deal.
type Deck struct {
	cards []Card
	next  int
}

// NewDeck returns a freshly shuffled single deck using the provided RNG.
func NewDeck(rng *rand.Rand) *Deck {
	return NewShoe(1, rng)
}

// NewShoe returns the given number of decks shuffled together. Games that can
// draw more than 52 cards in a round size the shoe to the table.
func NewShoe(decks int, rng *rand.Rand) *Deck {
	d := &Deck{cards: make([]Card, decks*52)}
	for i := range d.cards {
		d.cards[i] = Card(i % 52)
	}
	// Fisher-Yates
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return d
}

// StackedDeck returns a deck holding exactly the given cards in order.
// Intended for deterministic tests; drawing past the stack reports an
// exhausted deck.
func StackedDeck(cs ...Card) *Deck {
	d := &Deck{cards: make([]Card, len(cs))}
	copy(d.cards, cs)
	return d
}

// Deal removes and returns the next n cards. Returns nil if fewer than n
// cards remain.
func (d *Deck) Deal(n int) []Card {
	if d.next+n > len(d.cards) {
		return nil
	}
	out := d.cards[d.next : d.next+n]
	d.next += n
	return out
}

// DealOne removes and returns the next card. ok is false once the deck is
// exhausted.
func (d *Deck) DealOne() (Card, bool) {
	if d.next >= len(d.cards) {
		return 0, false
	}
	c := d.cards[d.next]
	d.next++
	return c, true
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}
