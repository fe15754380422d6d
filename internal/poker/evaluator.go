// Package poker ranks hold'em hands. Evaluation is used only at showdown,
// so this favors clarity over lookup-table speed: a rank packs the hand
// category and up to five tiebreak ranks into one comparable integer.
package poker

import (
	"math/bits"
	"strings"

	"github.com/cardroomlabs/cardroom/internal/cards"
)

// HandRank is a comparable hand strength. Higher values beat lower values;
// equal values split the pot.
type HandRank uint32

// Category enumerates hand categories from weakest to strongest.
type Category uint8

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

var categoryNames = [...]string{
	"High Card", "Pair", "Two Pair", "Three of a Kind", "Straight",
	"Flush", "Full House", "Four of a Kind", "Straight Flush",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "Unknown"
}

// Category returns the category encoded in the rank.
func (hr HandRank) Category() Category {
	return Category(hr >> 20)
}

// String returns a short human-readable description, e.g. "Two Pair".
func (hr HandRank) String() string {
	return hr.Category().String()
}

// Describe returns the category plus the deciding rank, e.g. "Pair of Queens".
func (hr HandRank) Describe() string {
	top := cards.Rank((hr >> 16) & 0xF)
	name := rankNoun(top)
	switch hr.Category() {
	case Pair:
		return "Pair of " + name + "s"
	case ThreeOfAKind:
		return "Three " + name + "s"
	case FourOfAKind:
		return "Four " + name + "s"
	case Straight, StraightFlush:
		return hr.Category().String() + ", " + name + " high"
	case HighCard, Flush:
		return hr.Category().String() + ", " + name + " high"
	default:
		return hr.Category().String()
	}
}

func rankNoun(r cards.Rank) string {
	names := [...]string{
		"Two", "Three", "Four", "Five", "Six", "Seven", "Eight",
		"Nine", "Ten", "Jack", "Queen", "King", "Ace",
	}
	if int(r) < len(names) {
		return names[r]
	}
	return "?"
}

func pack(cat Category, tiebreaks ...cards.Rank) HandRank {
	r := HandRank(cat) << 20
	shift := 16
	for _, t := range tiebreaks {
		r |= HandRank(t) << shift
		shift -= 4
	}
	return r
}

// Evaluate ranks the best five-card hand from the given cards (typically
// two hole cards plus five board cards, but any 5..7 cards work).
func Evaluate(cs []cards.Card) HandRank {
	var rankCount [13]uint8
	var suitMask [4]uint16
	var rankMask uint16
	for _, c := range cs {
		rankCount[c.Rank()]++
		suitMask[c.Suit()] |= 1 << c.Rank()
		rankMask |= 1 << c.Rank()
	}

	// Straight flush / flush. At most one suit can hold five of seven cards.
	for _, sm := range suitMask {
		if bits.OnesCount16(sm) < 5 {
			continue
		}
		if high := straightHigh(sm); high >= 0 {
			return pack(StraightFlush, cards.Rank(high))
		}
		top := topRanks(sm, 5)
		return pack(Flush, top...)
	}

	var quad, trip, secondTrip, highPair, lowPair int
	quad, trip, secondTrip, highPair, lowPair = -1, -1, -1, -1, -1
	for r := 12; r >= 0; r-- {
		switch rankCount[r] {
		case 4:
			quad = r
		case 3:
			if trip < 0 {
				trip = r
			} else if secondTrip < 0 {
				secondTrip = r
			}
		case 2:
			if highPair < 0 {
				highPair = r
			} else if lowPair < 0 {
				lowPair = r
			}
		}
	}

	switch {
	case quad >= 0:
		kickers := topRanksExcluding(rankMask, 1, quad)
		return pack(FourOfAKind, cards.Rank(quad), kickers[0])
	case trip >= 0 && (secondTrip >= 0 || highPair >= 0):
		pairRank := highPair
		if secondTrip > pairRank {
			pairRank = secondTrip
		}
		return pack(FullHouse, cards.Rank(trip), cards.Rank(pairRank))
	}

	if high := straightHigh(rankMask); high >= 0 {
		return pack(Straight, cards.Rank(high))
	}

	switch {
	case trip >= 0:
		kickers := topRanksExcluding(rankMask, 2, trip)
		return pack(ThreeOfAKind, cards.Rank(trip), kickers[0], kickers[1])
	case highPair >= 0 && lowPair >= 0:
		kickers := topRanksExcluding(rankMask, 1, highPair, lowPair)
		return pack(TwoPair, cards.Rank(highPair), cards.Rank(lowPair), kickers[0])
	case highPair >= 0:
		kickers := topRanksExcluding(rankMask, 3, highPair)
		return pack(Pair, cards.Rank(highPair), kickers[0], kickers[1], kickers[2])
	}

	return pack(HighCard, topRanks(rankMask, 5)...)
}

// straightHigh returns the high rank of the best straight in the rank mask,
// or -1. The wheel (A-2-3-4-5) reports Five as its high card.
func straightHigh(mask uint16) int {
	const wheel = 1<<12 | 1<<0 | 1<<1 | 1<<2 | 1<<3
	run := mask & (mask >> 1) & (mask >> 2) & (mask >> 3) & (mask >> 4)
	if run != 0 {
		return bits.Len16(run) - 1 + 4
	}
	if mask&wheel == wheel {
		return int(cards.Five)
	}
	return -1
}

// topRanks returns the n highest ranks set in the mask, descending.
func topRanks(mask uint16, n int) []cards.Rank {
	out := make([]cards.Rank, 0, n)
	for r := 12; r >= 0 && len(out) < n; r-- {
		if mask&(1<<r) != 0 {
			out = append(out, cards.Rank(r))
		}
	}
	return out
}

func topRanksExcluding(mask uint16, n int, exclude ...int) []cards.Rank {
	for _, e := range exclude {
		mask &^= 1 << e
	}
	return topRanks(mask, n)
}

// ParseHand is a convenience for tests: evaluates "As Kd Qh ..." notation.
func ParseHand(s string) HandRank {
	cs, err := cards.ParseAll(strings.TrimSpace(s))
	if err != nil {
		panic(err)
	}
	return Evaluate(cs)
}
