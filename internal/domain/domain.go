package domain

import (
	"time"

	"github.com/google/uuid"
)

type CardKind string

const (
	CardKindQuestion CardKind = "question"
	CardKindAnswer   CardKind = "answer"
)

// Card is a single dealt card instance. ID identifies the instance, not the
// text: two players can hold identically worded cards and ownership is always
// resolved by ID.
type Card struct {
	ID   uuid.UUID
	Kind CardKind
	Text string

	// Round is set exactly once, when the card is played.
	Round *int
	// Winner is set at most once, when the judge picks the card.
	Winner bool
}

// Spent reports whether the card has been played in some round.
func (c *Card) Spent() bool {
	return c.Round != nil
}

// Player is one participant in a session. Hand ordering is significant:
// players reference cards by position when playing.
type Player struct {
	Name            string
	Host            bool
	Hand            []*Card
	PlayedAnswers   []*Card
	PlayedQuestions []*Card
}

// Points counts the player's winning cards.
func (p *Player) Points() int {
	n := 0
	for _, c := range p.PlayedAnswers {
		if c.Winner {
			n++
		}
	}
	return n
}

// AnsweredIn reports whether the player already submitted an answer in the
// given round.
func (p *Player) AnsweredIn(round int) bool {
	for _, c := range p.PlayedAnswers {
		if c.Round != nil && *c.Round == round {
			return true
		}
	}
	return false
}

type Phase int

const (
	PhaseNew Phase = iota
	PhaseQuestion
	PhaseAnswers
	PhaseSelection
	PhaseConclusion
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseQuestion:
		return "question"
	case PhaseAnswers:
		return "answers"
	case PhaseSelection:
		return "selection"
	case PhaseConclusion:
		return "conclusion"
	}
	return "unknown"
}

// Message is a delivery instruction for the chat transport. Target is either
// a channel name or a nick for a private message; the engine never interprets
// it.
type Message struct {
	Target string
	Text   string
}

// HandDelivery is one player's private hand listing, dispatched
// fire-and-forget: no ordering guarantee between recipients.
type HandDelivery struct {
	Nick     string
	Messages []Message
}

// SessionSnapshot is the read-only admin view of one live session.
type SessionSnapshot struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"`
	Phase       string    `json:"phase"`
	Round       int       `json:"round"`
	Players     []string  `json:"players"`
	Judge       string    `json:"judge"`
	Host        string    `json:"host"`
	PointsToWin int       `json:"points_to_win"`
	CreatedAt   time.Time `json:"created_at"`
}
