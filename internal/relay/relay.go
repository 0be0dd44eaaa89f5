// Package relay is the chat transport. The actual IRC robot lives in another
// process; chat lines travel between it and this service as JSON payloads on
// two Redis pub/sub channels, one inbound and one outbound.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/cahbot/internal/bot"
	"github.com/victornm/cahbot/internal/command"
	"github.com/victornm/cahbot/internal/domain"
	"github.com/victornm/cahbot/internal/event"
)

var (
	linesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cahbot_relay_lines_in_total",
		Help: "Chat lines received from the inbound channel.",
	})
	linesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cahbot_relay_lines_out_total",
		Help: "Chat lines published to the outbound channel.",
	})
)

// ChatLine is the wire format shared with the chat robot.
type ChatLine struct {
	Type       string `json:"type"`
	Connection string `json:"connection,omitempty"`
	Target     string `json:"target"`
	Nick       string `json:"nick,omitempty"`
	Payload    string `json:"payload"`
}

type Config struct {
	EventBus *event.Bus
	Bot      *bot.Service
	Redis    redis.UniversalClient

	// Inbound and Outbound are the pub/sub channel names.
	Inbound  string
	Outbound string
	// Nick is the bot's own chat nick; a line targeting it is a private
	// message.
	Nick string
}

type Service struct {
	eb    *event.Bus
	bot   *bot.Service
	redis redis.UniversalClient

	inbound  string
	outbound string
	nick     string

	ready chan struct{}
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		bot:      c.Bot,
		redis:    c.Redis,
		inbound:  c.Inbound,
		outbound: c.Outbound,
		nick:     c.Nick,
		ready:    make(chan struct{}),
	}

	// Asynchronous outbound traffic arrives over the bus: private hands
	// from the bot and standings from the scoreboard. Order between bus
	// deliveries is deliberately not guaranteed.
	s.eb.Subscribe(domain.EventNameHandDealt, func(ctx context.Context, e event.Event) error {
		return s.publishAll(ctx, e.(domain.EventHandDealt).Hand.Messages)
	})
	s.eb.Subscribe(domain.EventNameDeliver, func(ctx context.Context, e event.Event) error {
		return s.publishAll(ctx, e.(domain.EventDeliver).Messages)
	})

	return s
}

// Ready is closed once the inbound subscription is confirmed.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Run consumes the inbound channel until the context is canceled. Commands
// are handled one at a time, which is what serializes all game mutation.
func (s *Service) Run(ctx context.Context) error {
	sub := s.redis.Subscribe(ctx, s.inbound)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay: subscribe %s: %w", s.inbound, err)
	}
	close(s.ready)

	slog.InfoContext(ctx, "relay: consuming inbound chat", "channel", s.inbound)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleLine(ctx, m.Payload)
		}
	}
}

func (s *Service) handleLine(ctx context.Context, payload string) {
	linesIn.Inc()

	var line ChatLine
	if err := json.Unmarshal([]byte(payload), &line); err != nil {
		slog.WarnContext(ctx, "relay: dropping undecodable line", "error", err)
		return
	}

	if line.Type != "PRIVMSG" {
		return
	}

	private := line.Target == s.nick
	cmd, ok := command.Parse(line.Payload, private)
	if !ok {
		return
	}

	cmd.Nick = line.Nick
	if !private {
		cmd.Channel = line.Target
	}

	msgs := s.bot.Handle(ctx, cmd)
	if err := s.publishAll(ctx, msgs); err != nil {
		slog.ErrorContext(ctx, "relay: publish replies failed",
			"command", cmd.Kind.String(),
			"error", err,
		)
	}
}

// publishAll keeps per-target ordering by publishing sequentially; concurrency
// across recipients comes from the bus dispatching each event in its own
// goroutine.
func (s *Service) publishAll(ctx context.Context, msgs []domain.Message) error {
	for _, m := range msgs {
		b, err := json.Marshal(ChatLine{
			Type:    "PRIVMSG",
			Target:  m.Target,
			Payload: m.Text,
		})
		if err != nil {
			return fmt.Errorf("relay: marshal line: %v", err)
		}

		if err := s.redis.Publish(ctx, s.outbound, b).Err(); err != nil {
			return fmt.Errorf("relay: publish to %s: %w", s.outbound, err)
		}
		linesOut.Inc()
	}
	return nil
}
