package game

import (
	"math/rand/v2"
	"slices"
)

type play struct {
	player string
	card   Card
	pile   int
}

// Data is the state of one game of The Game. It is not safe for concurrent
// use; the room coordinator serialises access.
type Data struct {
	RuleSet             RuleSet           `json:"ruleSet"`
	Players             []string          `json:"players"`
	Spectators          []string          `json:"spectators"`
	InProgress          bool              `json:"inProgress"`
	DrawPile            []Card            `json:"drawPile"`
	Hands               map[string][]Card `json:"hands"`
	Piles               []Pile            `json:"piles"`
	StartingPlayerVotes map[string]string `json:"startingPlayerVotes"`
	StartingPlayer      string            `json:"startingPlayer"`
	CurrentPlayerIndex  int               `json:"currentPlayerIndex"`
	CardToPlay          *Card             `json:"cardToPlay"`
	CardsPlayedThisTurn int               `json:"cardsPlayedThisTurn"`
	PassedTurn          map[string]bool   `json:"passedTurn"`
	MulligansUsed       int               `json:"mulligansUsed"`
	TurnsPlayed         int               `json:"turnsPlayed"`

	turnPlays []play
	rng       *rand.Rand
}

type Option func(*Data)

// WithRand makes shuffling deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(d *Data) {
		d.rng = rng
	}
}

// New returns a game with default rules and nobody seated.
func New(opts ...Option) *Data {
	d := &Data{
		RuleSet:    DefaultRuleSet(),
		Players:    make([]string, 0),
		Spectators: make([]string, 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.reset()
	return d
}

// NewFactory returns a constructor suitable for a room registry.
func NewFactory(opts ...Option) func(roomName string) *Data {
	return func(string) *Data {
		return New(opts...)
	}
}

func (d *Data) reset() {
	d.InProgress = false
	d.DrawPile = make([]Card, 0)
	d.Hands = make(map[string][]Card)
	d.Piles = make([]Pile, 0)
	d.StartingPlayerVotes = make(map[string]string)
	d.StartingPlayer = ""
	d.CurrentPlayerIndex = 0
	d.CardToPlay = nil
	d.CardsPlayedThisTurn = 0
	d.PassedTurn = make(map[string]bool)
	d.MulligansUsed = 0
	d.TurnsPlayed = 0
	d.turnPlays = nil
}

func (d *Data) IsInProgress() bool {
	return d.InProgress
}

// Start shuffles a fresh deck, lays out the piles and deals every player a hand.
// It does nothing when a game is already running or nobody is seated. The new
// layout is built aside and only replaces the previous state once complete.
func (d *Data) Start() {
	if d.InProgress || len(d.Players) == 0 {
		return
	}
	rules := d.RuleSet.Normalize()

	piles := make([]Pile, 0, 2*rules.PairsOfPiles)
	for i := 0; i < rules.PairsOfPiles; i++ {
		piles = append(piles, newPile(Ascending, 1))
	}
	for i := 0; i < rules.PairsOfPiles; i++ {
		piles = append(piles, newPile(Descending, rules.TopLimit))
	}

	deck := make([]Card, 0, rules.deckSize())
	for v := 2; v < rules.TopLimit; v++ {
		deck = append(deck, Card{Value: v})
	}
	d.shuffle(deck)

	handSize := rules.HandSizeFor(len(d.Players))
	hands := make(map[string][]Card, len(d.Players))
	for _, p := range d.Players {
		cut := len(deck) - handSize
		hands[p] = slices.Clone(deck[cut:])
		slices.Reverse(hands[p])
		deck = deck[:cut]
	}

	d.reset()
	d.RuleSet = rules
	d.Piles = piles
	d.DrawPile = deck
	d.Hands = hands
	d.InProgress = true
}

func (d *Data) shuffle(cards []Card) {
	swap := func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	}
	if d.rng != nil {
		d.rng.Shuffle(len(cards), swap)
		return
	}
	rand.Shuffle(len(cards), swap)
}

func (d *Data) draw(player string, upTo int) {
	for len(d.Hands[player]) < upTo && len(d.DrawPile) > 0 {
		last := len(d.DrawPile) - 1
		d.Hands[player] = append(d.Hands[player], d.DrawPile[last])
		d.DrawPile = d.DrawPile[:last]
	}
}

// Clear ends any game in progress. Seating and rules are kept.
func (d *Data) Clear() {
	d.reset()
}

func (d *Data) ResetRules() {
	d.RuleSet = DefaultRuleSet()
}

func (d *Data) SetRuleSet(rules RuleSet) {
	d.RuleSet = rules.Normalize()
}

func (d *Data) AddPlayer(name string) {
	if !slices.Contains(d.Players, name) {
		d.Players = append(d.Players, name)
	}
}

// RemovePlayer unseats the player and discards their hand and votes.
func (d *Data) RemovePlayer(name string) {
	i := slices.Index(d.Players, name)
	if i < 0 {
		return
	}
	current, _ := d.GetCurrentPlayer()

	d.Players = slices.Delete(d.Players, i, i+1)
	delete(d.Hands, name)
	delete(d.PassedTurn, name)
	delete(d.StartingPlayerVotes, name)
	for voter, candidate := range d.StartingPlayerVotes {
		if candidate == name {
			delete(d.StartingPlayerVotes, voter)
		}
	}

	switch {
	case len(d.Players) == 0:
		d.CurrentPlayerIndex = 0
	case current == name:
		// the next player inherits the turn
		d.CurrentPlayerIndex = i % len(d.Players)
		d.beginTurn()
	case i < d.CurrentPlayerIndex:
		d.CurrentPlayerIndex--
	}
}

func (d *Data) AddSpectator(name string) {
	if !slices.Contains(d.Spectators, name) {
		d.Spectators = append(d.Spectators, name)
	}
}

func (d *Data) RemoveSpectator(name string) {
	if i := slices.Index(d.Spectators, name); i >= 0 {
		d.Spectators = slices.Delete(d.Spectators, i, i+1)
	}
}

// AddStartingPlayerVote records voter's choice of who should go first.
func (d *Data) AddStartingPlayerVote(voter, candidate string) VoteResult {
	if !d.InProgress || d.StartingPlayer != "" {
		return VoteClosed
	}
	if !slices.Contains(d.Players, voter) || !slices.Contains(d.Players, candidate) {
		return VoteDenied
	}
	d.StartingPlayerVotes[voter] = candidate
	return VoteSuccess
}

func (d *Data) RemoveStartingPlayerVote(voter string) VoteResult {
	if !d.InProgress || d.StartingPlayer != "" {
		return VoteClosed
	}
	if _, voted := d.StartingPlayerVotes[voter]; !voted {
		return VoteDenied
	}
	delete(d.StartingPlayerVotes, voter)
	return VoteSuccess
}

// IsStartingPlayerVoteComplete reports whether every seated player has voted.
func (d *Data) IsStartingPlayerVoteComplete() bool {
	if !d.InProgress || d.StartingPlayer != "" || len(d.Players) == 0 {
		return false
	}
	for _, p := range d.Players {
		if _, voted := d.StartingPlayerVotes[p]; !voted {
			return false
		}
	}
	return true
}

// SetStartingPlayer resolves the vote. A tie clears the votes so players can vote again.
func (d *Data) SetStartingPlayer() GameStartResult {
	if !d.InProgress {
		return StartNonExistent
	}

	tally := make(map[string]int)
	for _, candidate := range d.StartingPlayerVotes {
		tally[candidate]++
	}
	winner, best, tied := "", 0, false
	for _, p := range d.Players {
		switch n := tally[p]; {
		case n > best:
			winner, best, tied = p, n, false
		case n == best && n > 0:
			tied = true
		}
	}
	if winner == "" || tied {
		d.StartingPlayerVotes = make(map[string]string)
		return StartNoStartingPlayer
	}

	d.StartingPlayer = winner
	d.CurrentPlayerIndex = slices.Index(d.Players, winner)
	d.beginTurn()
	return StartSuccess
}

// GetCurrentPlayer returns whose turn it is once a starting player has been chosen.
func (d *Data) GetCurrentPlayer() (string, bool) {
	if !d.InProgress || d.StartingPlayer == "" || len(d.Players) == 0 {
		return "", false
	}
	return d.Players[d.CurrentPlayerIndex], true
}

func (d *Data) SortHand(player string) {
	hand, ok := d.Hands[player]
	if !ok {
		return
	}
	slices.SortFunc(hand, func(a, b Card) int {
		return a.Value - b.Value
	})
}

func (d *Data) SetCardToPlay(card *Card) {
	d.CardToPlay = card
}

// PlayCard moves card from the player's hand onto the pile. It returns false
// when it is not the player's turn, the card is not in hand, or the pile refuses it.
func (d *Data) PlayCard(player string, card Card, pileIndex int) bool {
	current, ok := d.GetCurrentPlayer()
	if !ok || current != player {
		return false
	}
	if pileIndex < 0 || pileIndex >= len(d.Piles) {
		return false
	}
	hand := d.Hands[player]
	i := slices.Index(hand, card)
	if i < 0 {
		return false
	}
	pile := &d.Piles[pileIndex]
	if !pile.Accepts(card, d.RuleSet.JumpBackSize) {
		return false
	}

	d.Hands[player] = slices.Delete(hand, i, i+1)
	pile.Cards = append(pile.Cards, card)
	d.turnPlays = append(d.turnPlays, play{player: player, card: card, pile: pileIndex})
	d.CardsPlayedThisTurn++
	d.CardToPlay = nil
	return true
}

// MinCardsThisTurn is how many cards the current player must lay before ending the turn.
func (d *Data) MinCardsThisTurn() int {
	if len(d.DrawPile) == 0 {
		return 1
	}
	return d.RuleSet.MinCardsPerTurn
}

func (d *Data) CanMulligan() bool {
	return d.InProgress && d.MulligansUsed < d.RuleSet.MulliganLimit
}

// Mulligan returns the top card of the pile to the player who laid it this turn.
func (d *Data) Mulligan(pileIndex int, player string) MulliganResult {
	if !d.CanMulligan() || pileIndex < 0 || pileIndex >= len(d.Piles) {
		return MulliganResult{}
	}
	pile := &d.Piles[pileIndex]
	if len(pile.Cards) == 0 {
		return MulliganResult{}
	}

	top := pile.Cards[len(pile.Cards)-1]
	last := -1
	for i := len(d.turnPlays) - 1; i >= 0; i-- {
		if d.turnPlays[i].pile == pileIndex {
			last = i
			break
		}
	}
	if last < 0 || d.turnPlays[last].player != player || d.turnPlays[last].card != top {
		return MulliganResult{}
	}

	pile.Cards = pile.Cards[:len(pile.Cards)-1]
	d.Hands[player] = append(d.Hands[player], top)
	d.turnPlays = slices.Delete(d.turnPlays, last, last+1)
	d.CardsPlayedThisTurn--
	d.MulligansUsed++

	previous := Card{Value: pile.Top()}
	return MulliganResult{Success: true, Card: &top, PreviousCard: &previous}
}

func (d *Data) PassTurn(player string) {
	d.PassedTurn[player] = true
}

func (d *Data) ClearPassedTurn(player string) {
	delete(d.PassedTurn, player)
}

// Replenish tops the current player's hand back up from the draw pile.
func (d *Data) Replenish() {
	current, ok := d.GetCurrentPlayer()
	if !ok {
		return
	}
	d.draw(current, d.RuleSet.HandSizeFor(len(d.Players)))
}

func (d *Data) EndTurn() {
	if !d.InProgress {
		return
	}
	d.TurnsPlayed++
	d.beginTurn()
}

// NextPlayer advances the turn and returns the new current player.
func (d *Data) NextPlayer() string {
	if len(d.Players) == 0 {
		return ""
	}
	d.CurrentPlayerIndex = (d.CurrentPlayerIndex + 1) % len(d.Players)
	return d.Players[d.CurrentPlayerIndex]
}

func (d *Data) StartTurn() {
	d.beginTurn()
}

func (d *Data) beginTurn() {
	d.CardsPlayedThisTurn = 0
	d.CardToPlay = nil
	d.turnPlays = nil
}

// IsWon reports whether every card has been played.
func (d *Data) IsWon() bool {
	if !d.InProgress || len(d.DrawPile) > 0 {
		return false
	}
	for _, hand := range d.Hands {
		if len(hand) > 0 {
			return false
		}
	}
	return true
}
