// Package bot routes classified chat commands to game sessions. Each command
// is handled to completion as one unit of work; the only asynchronous part is
// outbound fan-out published on the event bus.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/cahbot/internal/command"
	"github.com/victornm/cahbot/internal/deck"
	"github.com/victornm/cahbot/internal/domain"
	"github.com/victornm/cahbot/internal/errors"
	"github.com/victornm/cahbot/internal/event"
	"github.com/victornm/cahbot/internal/game"
)

var commandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cahbot_commands_handled_total",
	Help: "Chat commands handled, by command kind.",
}, []string{"command"})

type Config struct {
	EventBus *event.Bus
	Catalog  *deck.Catalog
	// Rules are the defaults copied into every new session.
	Rules game.Rules
}

type Service struct {
	eb       *event.Bus
	registry *game.Registry
	catalog  *deck.Catalog
	rules    game.Rules
}

func NewService(c Config) *Service {
	return &Service{
		eb:       c.EventBus,
		registry: game.NewRegistry(),
		catalog:  c.Catalog,
		rules:    c.Rules,
	}
}

// Registry exposes the session registry for the admin API.
func (s *Service) Registry() *game.Registry {
	return s.registry
}

// Handle runs one command against its session and returns the ordered replies
// for the transport to deliver. Private hand listings and scoreboard updates
// go out on the event bus instead, fire-and-forget.
func (s *Service) Handle(ctx context.Context, cmd command.Command) []domain.Message {
	commandsHandled.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case command.KindHelp:
		return s.handleHelp(cmd)
	case command.KindStatus:
		return s.handleStatus(cmd)
	case command.KindNewGame:
		return s.handleNewGame(cmd)
	case command.KindJoinGame:
		return s.handleJoinGame(cmd)
	case command.KindStartGame:
		return s.handleStartGame(ctx, cmd)
	case command.KindCancelGame:
		return s.handleCancelGame(cmd)
	case command.KindKickPlayer:
		return s.handleKickPlayer(ctx, cmd)
	case command.KindPlayQuestion:
		return s.handlePlayQuestion(ctx, cmd)
	case command.KindPlayAnswer:
		return s.handlePlayAnswer(cmd)
	case command.KindReadCards:
		return s.handleReadCards(cmd)
	case command.KindChooseCard:
		return s.handleChooseCard(ctx, cmd)
	case command.KindSetConfig:
		return s.handleSetConfig(cmd)
	}

	return nil
}

// target is the channel the command addressed, falling back to the sender for
// private messages, which is also how sessions created over PM get keyed.
func target(cmd command.Command) string {
	if cmd.Channel != "" {
		return cmd.Channel
	}
	return cmd.Nick
}

func noGameYet(cmd command.Command) []domain.Message {
	return []domain.Message{{Target: target(cmd), Text: "No one has created a new game yet!"}}
}

func (s *Service) session(cmd command.Command) (*game.Session, []domain.Message) {
	sess, ok := s.registry.Get(target(cmd))
	if !ok {
		return nil, noGameYet(cmd)
	}
	return sess, nil
}

func (s *Service) handleNewGame(cmd command.Command) []domain.Message {
	ch := target(cmd)

	sess, err := s.registry.Create(ch, cmd.Nick, s.catalog, s.rules)
	if err != nil {
		return []domain.Message{{Target: ch, Text: cmd.Nick + `: You already have a game started. Use "!cah status" to get more info.`}}
	}

	return []domain.Message{
		{Target: ch, Text: cmd.Nick + ` has started a new game of cards against humanity. Please let me know if you want to play by saying "!cah join".`},
		{Target: ch, Text: fmt.Sprintf("Games are good for %d seconds by default. After that, asking me to start a new game will succeed if an old one isn't complete", int(sess.Rules.MaxDuration.Seconds()))},
		{Target: ch, Text: "The game host is the one who created the new game."},
		{Target: ch, Text: `Only the game host can cancel games. One can do that by asking me: "!cah cancel".`},
	}
}

func (s *Service) handleJoinGame(cmd command.Command) []domain.Message {
	sess, msgs := s.session(cmd)
	if sess == nil {
		return msgs
	}
	return sess.Join(cmd.Nick)
}

func (s *Service) handleStartGame(ctx context.Context, cmd command.Command) []domain.Message {
	sess, msgs := s.session(cmd)
	if sess == nil {
		return msgs
	}

	msgs, err := sess.Start(cmd.Nick)
	if err != nil {
		return s.failSession(ctx, sess, err)
	}
	return msgs
}

func (s *Service) handleCancelGame(cmd command.Command) []domain.Message {
	sess, msgs := s.session(cmd)
	if sess == nil {
		return msgs
	}

	if sess.IsHost(cmd.Nick) {
		s.registry.Remove(sess.Channel)
		return []domain.Message{{Target: sess.Channel, Text: "The game was canceled :("}}
	}
	return nil
}

func (s *Service) handleKickPlayer(ctx context.Context, cmd command.Command) []domain.Message {
	sess, msgs := s.session(cmd)
	if sess == nil {
		return msgs
	}

	msgs, err := sess.Kick(cmd.Nick, cmd.TargetNick)
	if err != nil {
		return s.failSession(ctx, sess, err)
	}
	return msgs
}

func (s *Service) handlePlayQuestion(ctx context.Context, cmd command.Command) []domain.Message {
	sess, msgs := s.session(cmd)
	if sess == nil {
		return msgs
	}

	msgs, hands, err := sess.PlayQuestion(cmd.Nick)
	if err != nil {
		return s.failSession(ctx, sess, err)
	}

	for _, h := range hands {
		s.eb.Publish(ctx, domain.EventHandDealt{Channel: sess.Channel, Hand: h})
	}
	return msgs
}

// handlePlayAnswer serves the one private command. It has no channel, so the
// player's session is found by scanning all sessions; a player can be in at
// most one game process-wide.
func (s *Service) handlePlayAnswer(cmd command.Command) []domain.Message {
	sess, ok := s.registry.FindByPlayer(cmd.Nick)
	if !ok {
		return noGameYet(cmd)
	}

	return sess.PlayAnswer(cmd.Nick, cmd.CardIndex)
}

func (s *Service) handleReadCards(cmd command.Command) []domain.Message {
	sess, msgs := s.session(cmd)
	if sess == nil {
		return msgs
	}
	return sess.ReadCards(cmd.Nick)
}

func (s *Service) handleChooseCard(ctx context.Context, cmd command.Command) []domain.Message {
	sess, msgs := s.session(cmd)
	if sess == nil {
		return msgs
	}

	msgs, result, err := sess.ChooseWinner(cmd.Nick, cmd.CardIndex)
	if err != nil {
		return s.failSession(ctx, sess, err)
	}
	if result == nil {
		return msgs
	}

	s.eb.Publish(ctx, domain.EventRoundWon{
		Channel: sess.Channel,
		Winner:  result.RoundWinner,
		Round:   sess.Round,
		Points:  result.Points,
	})

	if result.Concluded {
		s.registry.Remove(sess.Channel)
		s.eb.Publish(ctx, domain.EventSessionConcluded{
			Channel: sess.Channel,
			Winner:  result.RoundWinner,
			Points:  result.Points,
		})
	}

	return msgs
}

func (s *Service) handleSetConfig(cmd command.Command) []domain.Message {
	sess, msgs := s.session(cmd)
	if sess == nil {
		return msgs
	}
	return sess.SetRule(cmd.Nick, cmd.Key, cmd.Value)
}

func (s *Service) handleStatus(cmd command.Command) []domain.Message {
	sess, msgs := s.session(cmd)
	if sess == nil {
		return msgs
	}
	return sess.Status()
}

func (s *Service) handleHelp(cmd command.Command) []domain.Message {
	msgs := make([]domain.Message, 0, len(helpText))
	for _, line := range helpText {
		msgs = append(msgs, domain.Message{Target: cmd.Nick, Text: line})
	}
	return msgs
}

// failSession tears down a session that hit an unrecoverable condition, which
// today means an exhausted deck on a required draw.
func (s *Service) failSession(ctx context.Context, sess *game.Session, err error) []domain.Message {
	slog.ErrorContext(ctx, "bot: session failed",
		"channel", sess.Channel,
		"error", err,
	)

	s.registry.Remove(sess.Channel)

	msgs := []domain.Message{{Target: sess.Channel, Text: "We ran out of cards, so this game cannot continue."}}
	if !errors.IsCode(err, errors.CodeResourceExhausted) {
		msgs = []domain.Message{{Target: sess.Channel, Text: "Something went wrong, so this game cannot continue."}}
	}
	return append(msgs, domain.Message{Target: sess.Channel, Text: "This game is over, people."})
}
