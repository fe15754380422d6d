// Package cards provides playing card primitives shared by all game kinds.
package cards

import "fmt"

// Rank of a card, Two through Ace.
type Rank uint8

const (
	Two Rank = iota
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// Suit of a card.
type Suit uint8

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

// Card is a compact card value: suit*13 + rank.
type Card uint8

// NewCard builds a card from rank and suit.
func NewCard(r Rank, s Suit) Card {
	return Card(uint8(s)*13 + uint8(r))
}

// Rank returns the card's rank.
func (c Card) Rank() Rank {
	return Rank(c % 13)
}

// Suit returns the card's suit.
func (c Card) Suit() Suit {
	return Suit(c / 13)
}

var rankChars = "23456789TJQKA"
var suitChars = "cdhs"

// String renders the card in standard two-character notation, e.g. "As", "Td".
func (c Card) String() string {
	if c > 51 {
		return "??"
	}
	return string(rankChars[c.Rank()]) + string(suitChars[c.Suit()])
}

// Parse converts two-character notation back into a card.
func Parse(s string) (Card, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("cards: invalid card %q", s)
	}
	var r Rank
	switch s[0] {
	case '2', '3', '4', '5', '6', '7', '8', '9':
		r = Rank(s[0] - '2')
	case 'T', 't':
		r = Ten
	case 'J', 'j':
		r = Jack
	case 'Q', 'q':
		r = Queen
	case 'K', 'k':
		r = King
	case 'A', 'a':
		r = Ace
	default:
		return 0, fmt.Errorf("cards: invalid rank %q", s[0])
	}
	var su Suit
	switch s[1] {
	case 'c', 'C':
		su = Clubs
	case 'd', 'D':
		su = Diamonds
	case 'h', 'H':
		su = Hearts
	case 's', 'S':
		su = Spades
	default:
		return 0, fmt.Errorf("cards: invalid suit %q", s[1])
	}
	return NewCard(r, su), nil
}

// MustParse parses a card and panics on error. Test helper.
func MustParse(s string) Card {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseAll parses a space-separated list of cards, e.g. "As Kd 7c".
func ParseAll(s string) ([]Card, error) {
	var out []Card
	start := -1
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if start >= 0 {
				c, err := Parse(s[start:i])
				if err != nil {
					return nil, err
				}
				out = append(out, c)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return out, nil
}

// Strings renders a card slice for wire payloads.
func Strings(cs []Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}
