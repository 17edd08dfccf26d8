package game

const (
	defaultPairsOfPiles    = 2
	defaultTopLimit        = 100
	defaultJumpBackSize    = 10
	defaultMinCardsPerTurn = 2

	minTopLimit     = 10
	maxTopLimit     = 1000
	maxPairsOfPiles = 4
)

// RuleSet 是一个房间的规则配置
type RuleSet struct {
	PairsOfPiles    int `json:"pairsOfPiles"`    // 升序/降序牌堆各几个
	TopLimit        int `json:"topLimit"`        // 降序牌堆的起点，牌面为 2..TopLimit-1
	JumpBackSize    int `json:"jumpBackSize"`    // 允许反向跳回的差值
	HandSize        int `json:"handSize"`        // 0 表示按人数决定
	MinCardsPerTurn int `json:"minCardsPerTurn"` // 牌堆未空时每回合至少出几张
	MulliganLimit   int `json:"mulliganLimit"`   // 整局可悔牌次数
}

// DefaultRuleSet returns the standard rules.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		PairsOfPiles:    defaultPairsOfPiles,
		TopLimit:        defaultTopLimit,
		JumpBackSize:    defaultJumpBackSize,
		MinCardsPerTurn: defaultMinCardsPerTurn,
	}
}

// Normalize replaces values below their minimum with the defaults and
// caps the rest, so that a game built from the result stays small.
func (r RuleSet) Normalize() RuleSet {
	d := DefaultRuleSet()
	if r.PairsOfPiles <= 0 {
		r.PairsOfPiles = d.PairsOfPiles
	}
	r.PairsOfPiles = min(r.PairsOfPiles, maxPairsOfPiles)
	if r.TopLimit < minTopLimit {
		r.TopLimit = d.TopLimit
	}
	r.TopLimit = min(r.TopLimit, maxTopLimit)
	deck := r.deckSize()
	if r.JumpBackSize <= 0 {
		r.JumpBackSize = d.JumpBackSize
	}
	r.JumpBackSize = min(r.JumpBackSize, r.TopLimit)
	r.HandSize = min(max(r.HandSize, 0), deck)
	if r.MinCardsPerTurn <= 0 {
		r.MinCardsPerTurn = d.MinCardsPerTurn
	}
	r.MinCardsPerTurn = min(r.MinCardsPerTurn, deck)
	r.MulliganLimit = min(max(r.MulliganLimit, 0), deck)
	return r
}

// deckSize is the number of cards dealt from, 2..TopLimit-1.
func (r RuleSet) deckSize() int {
	return max(r.TopLimit-2, 0)
}

// HandSizeFor returns how many cards each player holds for the given player
// count. It never deals more than the deck can cover.
func (r RuleSet) HandSizeFor(players int) int {
	size := r.HandSize
	if size <= 0 {
		switch {
		case players <= 1:
			size = 8
		case players == 2:
			size = 7
		default:
			size = 6
		}
	}
	if players > 0 {
		size = min(size, r.deckSize()/players)
	}
	return max(size, 0)
}
