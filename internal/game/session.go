// Package game holds the session engine: the phase state machine, per-session
// decks and hands, judge rotation and the round lifecycle. Everything here is
// in-memory and single-writer per session; the transport layer delivers one
// command at a time per channel.
package game

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/cahbot/internal/deck"
	"github.com/victornm/cahbot/internal/domain"
)

const (
	DefaultMinPlayers  = 3
	DefaultHandSize    = 10
	DefaultPointsToWin = 10
	DefaultMaxDuration = 36000 * time.Second
)

// Rules are the per-session tunables. They are copied into each session at
// creation so concurrent sessions can never cross-contaminate each other's
// configuration.
type Rules struct {
	MinPlayers  int
	HandSize    int
	PointsToWin int
	MaxDuration time.Duration
}

func (r Rules) withDefaults() Rules {
	if r.MinPlayers <= 0 {
		r.MinPlayers = DefaultMinPlayers
	}
	if r.HandSize <= 0 {
		r.HandSize = DefaultHandSize
	}
	if r.PointsToWin <= 0 {
		r.PointsToWin = DefaultPointsToWin
	}
	if r.MaxDuration <= 0 {
		r.MaxDuration = DefaultMaxDuration
	}
	return r
}

// Session is one channel's game, from creation to conclusion or cancellation.
// Commands arrive serialized by the transport, but the admin API snapshots
// sessions from its own goroutine, so every exported operation takes mu.
type Session struct {
	mu sync.Mutex

	ID        uuid.UUID
	Channel   string
	CreatedAt time.Time
	Phase     domain.Phase

	// Players keeps insertion order; judge rotation is index arithmetic
	// over this fixed order and the roster is never re-sorted.
	Players    []*domain.Player
	JudgeIndex int

	Questions *deck.Deck
	Answers   *deck.Deck

	Round        int
	RoundAnswers []*domain.Card

	Rules Rules
}

// NewSession builds a session with freshly shuffled decks and the creator
// joined as host.
func NewSession(channel, host string, catalog *deck.Catalog, rules Rules) *Session {
	s := &Session{
		ID:        uuid.New(),
		Channel:   channel,
		CreatedAt: time.Now(),
		Phase:     domain.PhaseNew,
		Questions: deck.New(domain.CardKindQuestion, catalog.Questions),
		Answers:   deck.New(domain.CardKindAnswer, catalog.Answers),
		Rules:     rules.withDefaults(),
	}

	s.Players = append(s.Players, &domain.Player{Name: host, Host: true})
	return s
}

// Expired reports whether the session outlived its maximum duration. It is
// only consulted lazily, when a new game is requested for the same channel.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return time.Since(s.CreatedAt) > s.Rules.MaxDuration
}

// HasPlayer reports whether the nick is in this session's roster.
func (s *Session) HasPlayer(nick string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.player(nick) != nil
}

// IsHost reports whether the nick is this session's host.
func (s *Session) IsHost(nick string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.player(nick)
	return p != nil && p.Host
}

func (s *Session) player(name string) *domain.Player {
	for _, p := range s.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (s *Session) host() *domain.Player {
	for _, p := range s.Players {
		if p.Host {
			return p
		}
	}
	return nil
}

// Judge returns the current card czar.
func (s *Session) Judge() *domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.judge()
}

// judge is the locked-path czar lookup. The index is defensively re-wrapped
// so a roster shrink can never leave it out of range.
func (s *Session) judge() *domain.Player {
	if s.JudgeIndex >= len(s.Players) {
		s.JudgeIndex = 0
	}
	return s.Players[s.JudgeIndex]
}

func (s *Session) channelMsg(format string, args ...any) domain.Message {
	return domain.Message{Target: s.Channel, Text: fmt.Sprintf(format, args...)}
}

func privateMsg(nick, format string, args ...any) domain.Message {
	return domain.Message{Target: nick, Text: fmt.Sprintf(format, args...)}
}

// Join adds a player while the game has not started. A duplicate join is a
// no-op with its own acknowledgment.
func (s *Session) Join(nick string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase > domain.PhaseNew {
		return []domain.Message{s.channelMsg("%s: You are too late. The game has already started.", nick)}
	}

	if s.player(nick) != nil {
		return []domain.Message{s.channelMsg("%s: You already joined the game", nick)}
	}

	s.Players = append(s.Players, &domain.Player{Name: nick})
	return []domain.Message{s.channelMsg("%s: You have joined the game. It should start shortly. I will send you a PM with your hand of cards.", nick)}
}

// Start deals the initial hands and opens the first round with the creator as
// judge.
func (s *Session) Start(nick string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase > domain.PhaseNew {
		return []domain.Message{s.channelMsg("%s: The game has already started.", nick)}, nil
	}

	if len(s.Players) < s.Rules.MinPlayers {
		return []domain.Message{s.channelMsg("%s, the minimum amount of players is %d and you currently have %d so I cannot start the game.",
			nick, s.Rules.MinPlayers, len(s.Players))}, nil
	}

	if err := s.deal(); err != nil {
		return nil, err
	}

	s.Phase = domain.PhaseQuestion
	s.JudgeIndex = 0

	return []domain.Message{s.czarPrompt()}, nil
}

func (s *Session) czarPrompt() domain.Message {
	return s.channelMsg(`%s, you're up as card czar. Say "!cah play card" in the channel to throw down your question card`, s.judge().Name)
}

// deal distributes the initial hands round-robin starting from roster
// position 0. It can only ever run once: any later call finds the NEW phase
// already exited.
func (s *Session) deal() error {
	if s.Phase > domain.PhaseNew {
		return nil
	}

	for i := 0; i < s.Rules.HandSize; i++ {
		for _, p := range s.Players {
			c, err := s.Answers.Draw()
			if err != nil {
				return err
			}
			p.Hand = append(p.Hand, c)
		}
	}

	return nil
}

// PlayQuestion is the judge revealing the round's question card. The returned
// hand deliveries are dispatched fire-and-forget by the caller; nothing may
// assume they arrive before the next command.
func (s *Session) PlayQuestion(nick string) ([]domain.Message, []domain.HandDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != domain.PhaseQuestion {
		return nil, nil, nil
	}

	judge := s.judge()
	if judge.Name != nick {
		return []domain.Message{privateMsg(nick, "Hold your horses. A question card needs to be played first.")}, nil, nil
	}

	card, err := s.Questions.Draw()
	if err != nil {
		return nil, nil, err
	}

	s.Round++
	round := s.Round
	card.Round = &round
	judge.PlayedQuestions = append(judge.PlayedQuestions, card)

	s.RoundAnswers = nil
	s.Phase = domain.PhaseAnswers

	msgs := []domain.Message{
		s.channelMsg("Alright, here we go:"),
		s.channelMsg("%s", card.Text),
	}

	var hands []domain.HandDelivery
	for _, p := range s.Players {
		if p.Name == judge.Name {
			continue
		}
		hands = append(hands, domain.HandDelivery{Nick: p.Name, Messages: s.handMessages(p)})
	}

	return msgs, hands, nil
}

func (s *Session) handMessages(p *domain.Player) []domain.Message {
	msgs := []domain.Message{
		privateMsg(p.Name, "Here's your hand:"),
		privateMsg(p.Name, " "),
	}
	for i, c := range p.Hand {
		msgs = append(msgs, privateMsg(p.Name, "%d - %s", i, c.Text))
	}
	msgs = append(msgs,
		privateMsg(p.Name, " "),
		privateMsg(p.Name, "Please choose a card and let me know what number you'd like to play."),
	)
	return msgs
}

// PlayAnswer records one player's answer by hand position. Indices are not
// renumbered mid-round; a stale index after an earlier submission is the
// player's own problem.
func (s *Session) PlayAnswer(nick string, index int) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase == domain.PhaseQuestion {
		if s.judge().Name == nick {
			return []domain.Message{privateMsg(nick, "Nice try.")}
		}
		return []domain.Message{privateMsg(nick, "Hold your horses. A question card needs to be played first.")}
	}

	if s.Phase != domain.PhaseAnswers {
		return []domain.Message{privateMsg(nick, "%s: You can't play an answer card right now.", nick)}
	}

	if s.judge().Name == nick {
		return []domain.Message{privateMsg(nick, "Nice try.")}
	}

	player := s.player(nick)
	if player == nil {
		return []domain.Message{privateMsg(nick, "You are not in this game.")}
	}

	if player.AnsweredIn(s.Round) {
		return []domain.Message{privateMsg(nick, "%s: You already played a card this round.", nick)}
	}

	if index < 0 || index >= len(player.Hand) {
		return []domain.Message{privateMsg(nick, "You can't play %d as it doesn't exist.", index)}
	}

	card := player.Hand[index]
	player.Hand = append(player.Hand[:index], player.Hand[index+1:]...)

	round := s.Round
	card.Round = &round
	player.PlayedAnswers = append(player.PlayedAnswers, card)
	s.RoundAnswers = append(s.RoundAnswers, card)

	msgs := []domain.Message{privateMsg(nick, "Okay.")}
	msgs = append(msgs, s.checkAllIn()...)
	return msgs
}

// checkAllIn transitions to SELECTION once every non-judge player has
// answered, and notifies the judge. Called after every submission and after
// every kick during ANSWERS.
func (s *Session) checkAllIn() []domain.Message {
	if s.Phase != domain.PhaseAnswers {
		return nil
	}
	if len(s.RoundAnswers) != len(s.Players)-1 {
		return nil
	}

	s.Phase = domain.PhaseSelection
	return []domain.Message{
		s.channelMsg("Okay, everyone is in with their answers."),
		s.channelMsg(`%s: you can say "!cah read cards" now to have me list them.`, s.judge().Name),
	}
}

// ReadCards shuffles the round's answers and reveals them. The post-shuffle
// order is the canonical index space for the winner selection that follows.
func (s *Session) ReadCards(nick string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != domain.PhaseSelection {
		return []domain.Message{s.channelMsg("%s: Not everyone is all in yet. Maybe nudge them?", nick)}
	}

	if s.judge().Name != nick {
		return nil
	}

	rand.Shuffle(len(s.RoundAnswers), func(i, j int) {
		s.RoundAnswers[i], s.RoundAnswers[j] = s.RoundAnswers[j], s.RoundAnswers[i]
	})

	return s.revealMessages()
}

// revealMessages lists the round's answers in their current order, which is
// the index space winner selection uses.
func (s *Session) revealMessages() []domain.Message {
	msgs := make([]domain.Message, 0, len(s.RoundAnswers))
	for i, c := range s.RoundAnswers {
		msgs = append(msgs, s.channelMsg("%d - %s", i, c.Text))
	}
	return msgs
}

// WinnerResult reports what ChooseWinner decided.
type WinnerResult struct {
	RoundWinner string
	Points      int
	Concluded   bool
}

// ChooseWinner resolves the round. The index refers to the post-shuffle
// reveal order. Ownership is resolved by card instance identity, so two
// identically worded cards can never be confused.
func (s *Session) ChooseWinner(nick string, index int) ([]domain.Message, *WinnerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase != domain.PhaseSelection {
		return []domain.Message{s.channelMsg("%s: You can't choose a card if I haven't even read them yet...", nick)}, nil, nil
	}

	if s.judge().Name != nick {
		return nil, nil, nil
	}

	if index < 0 || index >= len(s.RoundAnswers) {
		return []domain.Message{s.channelMsg("%s: what the fuck, dude...", nick)}, nil, nil
	}

	card := s.RoundAnswers[index]
	winner := s.ownerOf(card)
	if winner == nil {
		// Submitted cards are withdrawn when their player is kicked, so
		// this should be unreachable. Refuse rather than corrupt state.
		return []domain.Message{s.channelMsg("%s: I don't know who played that card.", nick)}, nil, nil
	}

	card.Winner = true

	msgs := []domain.Message{s.channelMsg("%s: you won the round! YOU!", winner.Name)}
	result := &WinnerResult{RoundWinner: winner.Name, Points: winner.Points()}

	if result.Points >= s.Rules.PointsToWin {
		s.Phase = domain.PhaseConclusion
		result.Concluded = true
		msgs = append(msgs,
			s.channelMsg("%s: has collected %d points in a sweeping win for a bullshit title! HOLY SHIT YOU WON THE GAME!", winner.Name, s.Rules.PointsToWin),
			s.channelMsg("This game is over, people."),
		)
		return msgs, result, nil
	}

	if err := s.replenish(); err != nil {
		return nil, nil, err
	}

	s.JudgeIndex = (s.JudgeIndex + 1) % len(s.Players)
	s.Phase = domain.PhaseQuestion
	msgs = append(msgs, s.czarPrompt())

	return msgs, result, nil
}

func (s *Session) ownerOf(card *domain.Card) *domain.Player {
	for _, p := range s.Players {
		for _, c := range p.PlayedAnswers {
			if c.ID == card.ID {
				return p
			}
		}
	}
	return nil
}

// replenish tops every non-judge hand back up by one card.
func (s *Session) replenish() error {
	judge := s.judge()
	for _, p := range s.Players {
		if p.Name == judge.Name {
			continue
		}
		c, err := s.Answers.Draw()
		if err != nil {
			return err
		}
		p.Hand = append(p.Hand, c)
	}
	return nil
}

// Kick removes a player at the host's request. Kicking the judge voids the
// current round; kicking a player who already answered withdraws their card
// before the all-in check re-runs.
func (s *Session) Kick(actor, target string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kicker := s.player(actor)
	if kicker == nil || !kicker.Host {
		return []domain.Message{s.channelMsg("%s: Only the host can kick a player.", actor)}, nil
	}

	if actor == target {
		return []domain.Message{s.channelMsg(`%s: You can't kick yourself. Say "!cah cancel" to end the game.`, actor)}, nil
	}

	idx := -1
	for i, p := range s.Players {
		if p.Name == target {
			idx = i
			break
		}
	}
	if idx == -1 {
		return []domain.Message{s.channelMsg("%s: %s is not a player.", actor, target)}, nil
	}

	if len(s.Players)-1 < s.Rules.MinPlayers {
		return []domain.Message{s.channelMsg("%s: kicking %s will result in a game where the players are less than the minimum. You should just cancel.", actor, target)}, nil
	}

	kicked := s.Players[idx]
	judgeKicked := s.Phase > domain.PhaseNew && idx == s.JudgeIndex

	withdrawn := s.withdrawRoundAnswer(kicked)

	s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
	if idx < s.JudgeIndex {
		s.JudgeIndex--
	}
	if s.JudgeIndex >= len(s.Players) {
		s.JudgeIndex = 0
	}

	msgs := []domain.Message{s.channelMsg("%s has been kicked from the game.", target)}

	if judgeKicked && s.Phase > domain.PhaseNew && s.Phase < domain.PhaseConclusion {
		voidMsgs, err := s.voidRound()
		if err != nil {
			return nil, err
		}
		return append(msgs, voidMsgs...), nil
	}

	// A withdrawal during SELECTION shifts the indices the judge was shown,
	// so the remaining answers are listed again before anyone picks.
	if withdrawn && s.Phase == domain.PhaseSelection {
		msgs = append(msgs, s.channelMsg("The answers have been renumbered:"))
		return append(msgs, s.revealMessages()...), nil
	}

	msgs = append(msgs, s.checkAllIn()...)
	return msgs, nil
}

// withdrawRoundAnswer pulls the player's pending answer out of the round so
// an owner-less card can never be picked as winner. It reports whether a card
// was actually withdrawn.
func (s *Session) withdrawRoundAnswer(p *domain.Player) bool {
	for i, c := range s.RoundAnswers {
		for _, played := range p.PlayedAnswers {
			if c.ID == played.ID {
				s.RoundAnswers = append(s.RoundAnswers[:i], s.RoundAnswers[i+1:]...)
				return true
			}
		}
	}
	return false
}

// voidRound cancels the round in flight after the judge was kicked: answers
// already submitted stay spent, their players draw a replacement, and the
// next player in rotation opens a fresh question. The roster removal already
// moved the judge seat to the next player.
func (s *Session) voidRound() ([]domain.Message, error) {
	for _, c := range s.RoundAnswers {
		p := s.ownerOf(c)
		if p == nil {
			continue
		}
		repl, err := s.Answers.Draw()
		if err != nil {
			return nil, err
		}
		p.Hand = append(p.Hand, repl)
	}

	s.RoundAnswers = nil
	s.Phase = domain.PhaseQuestion

	return []domain.Message{
		s.channelMsg("The card czar left the game, so this round is void."),
		s.czarPrompt(),
	}, nil
}

// SetRule updates one of the session's tunables.
func (s *Session) SetRule(nick, key, value string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case "max_points", "max_duration":
	default:
		return []domain.Message{s.channelMsg(`%s: supported keys are "max_points" and "max_duration"`, nick)}
	}

	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return []domain.Message{s.channelMsg("%s: %s is not a number I can work with.", nick, value)}
	}

	switch key {
	case "max_points":
		s.Rules.PointsToWin = n
	case "max_duration":
		s.Rules.MaxDuration = time.Duration(n) * time.Second
	}

	return []domain.Message{s.channelMsg("%s: set %s to %s", nick, key, value)}
}

// Status summarizes the session for the channel.
func (s *Session) Status() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase == domain.PhaseNew {
		return []domain.Message{s.channelMsg("Waiting for players to join; %d joined so far. The minimum is %d.", len(s.Players), s.Rules.MinPlayers)}
	}

	msgs := []domain.Message{s.channelMsg("Phase: %s, round %d, first to %d points wins.", s.Phase, s.Round, s.Rules.PointsToWin)}
	for _, p := range s.Players {
		tags := ""
		if p.Host {
			tags += " (host)"
		}
		if p.Name == s.judge().Name {
			tags += " (czar)"
		}
		msgs = append(msgs, s.channelMsg("%s%s: %d points", p.Name, tags, p.Points()))
	}
	return msgs
}

// Snapshot is the read-only view served by the admin API. It runs on the
// HTTP goroutine, concurrently with command handling.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p.Name)
	}

	snap := domain.SessionSnapshot{
		ID:          s.ID.String(),
		Channel:     s.Channel,
		Phase:       s.Phase.String(),
		Round:       s.Round,
		Players:     players,
		PointsToWin: s.Rules.PointsToWin,
		CreatedAt:   s.CreatedAt,
	}
	if len(s.Players) > 0 {
		snap.Judge = s.judge().Name
	}
	if h := s.host(); h != nil {
		snap.Host = h.Name
	}
	return snap
}
