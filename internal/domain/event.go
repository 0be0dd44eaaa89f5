package domain

const (
	EventNameHandDealt        = "hand.dealt"
	EventNameRoundWon         = "round.won"
	EventNameSessionConcluded = "session.concluded"
	EventNameDeliver          = "messages.deliver"
)

// EventHandDealt carries one player's private hand listing. One event is
// published per recipient so deliveries stay independent.
type EventHandDealt struct {
	Channel string
	Hand    HandDelivery
}

func (EventHandDealt) Name() string { return EventNameHandDealt }

type EventRoundWon struct {
	Channel string
	Winner  string
	Round   int
	Points  int
}

func (EventRoundWon) Name() string { return EventNameRoundWon }

type EventSessionConcluded struct {
	Channel string
	Winner  string
	Points  int
}

func (EventSessionConcluded) Name() string { return EventNameSessionConcluded }

// EventDeliver asks the transport to deliver messages produced outside the
// synchronous command path, such as the scoreboard's final standings.
type EventDeliver struct {
	Messages []Message
}

func (EventDeliver) Name() string { return EventNameDeliver }
