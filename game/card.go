package game

// Card is a single numbered card.
type Card struct {
	Value int `json:"value"`
}

type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Pile is one of the shared piles cards are played onto.
type Pile struct {
	Direction Direction `json:"direction"`
	Start     int       `json:"start"`
	Cards     []Card    `json:"cards"`
}

func newPile(direction Direction, start int) Pile {
	return Pile{Direction: direction, Start: start, Cards: make([]Card, 0)}
}

// Top returns the value currently showing on the pile.
func (p *Pile) Top() int {
	if len(p.Cards) == 0 {
		return p.Start
	}
	return p.Cards[len(p.Cards)-1].Value
}

// Accepts reports whether card may be placed on the pile. A card must continue
// the pile's direction, or step back by exactly jumpBack.
func (p *Pile) Accepts(card Card, jumpBack int) bool {
	top := p.Top()
	if p.Direction == Ascending {
		return card.Value > top || card.Value == top-jumpBack
	}
	return card.Value < top || card.Value == top+jumpBack
}

// VoteResult is the outcome of casting or withdrawing a starting-player vote.
type VoteResult int

const (
	VoteSuccess VoteResult = iota
	VoteDenied
	VoteClosed
	VoteNonExistent
)

func (v VoteResult) String() string {
	switch v {
	case VoteSuccess:
		return "success"
	case VoteDenied:
		return "denied"
	case VoteClosed:
		return "closed"
	default:
		return "non_existent"
	}
}

// GameStartResult is the outcome of resolving the starting-player vote.
type GameStartResult int

const (
	StartSuccess GameStartResult = iota
	StartNoStartingPlayer
	StartNonExistent
)

func (g GameStartResult) String() string {
	switch g {
	case StartSuccess:
		return "success"
	case StartNoStartingPlayer:
		return "no_starting_player"
	default:
		return "non_existent"
	}
}

// MulliganResult describes a card taken back from a pile.
type MulliganResult struct {
	Success      bool
	Card         *Card
	PreviousCard *Card
}
