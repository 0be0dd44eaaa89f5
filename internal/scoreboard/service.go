// Package scoreboard keeps per-channel all-time round-win standings in a
// Redis sorted set. It is an advisory mirror: in-game scoring stays in memory
// inside the session and is always authoritative.
package scoreboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/cahbot/internal/domain"
	"github.com/victornm/cahbot/internal/errors"
	"github.com/victornm/cahbot/internal/event"
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameRoundWon, func(ctx context.Context, e event.Event) error {
		return s.RecordWin(ctx, e.(domain.EventRoundWon))
	})

	s.eb.Subscribe(domain.EventNameSessionConcluded, func(ctx context.Context, e event.Event) error {
		return s.AnnounceStandings(ctx, e.(domain.EventSessionConcluded))
	})

	return s
}

type Entry struct {
	Nick string
	Wins int64
}

// RecordWin bumps the winner's all-time tally for the channel.
func (s *Service) RecordWin(ctx context.Context, e domain.EventRoundWon) error {
	if err := s.redis.ZIncrBy(ctx, s.winsKey(e.Channel), 1, e.Winner).Err(); err != nil {
		return fmt.Errorf("record win: %w", err)
	}
	return nil
}

// Standings returns the channel's all-time round-win tallies, best first.
func (s *Service) Standings(ctx context.Context, channel string) ([]Entry, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.winsKey(channel), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get standings: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("no standings for channel %s", channel))
	}

	entries := make([]Entry, 0, len(res))
	for _, z := range res {
		entries = append(entries, Entry{
			Nick: z.Member.(string),
			Wins: int64(z.Score),
		})
	}
	return entries, nil
}

// AnnounceStandings publishes the game result and the channel's all-time
// standings when a game concludes. Delivery is fire-and-forget through the
// bus, like any other asynchronous outbound message. The final round's win
// may still be in flight on the bus, so the tally is advisory and the game
// winner line never depends on it.
func (s *Service) AnnounceStandings(ctx context.Context, e domain.EventSessionConcluded) error {
	msgs := []domain.Message{{
		Target: e.Channel,
		Text:   fmt.Sprintf("%s takes the game with %d points.", e.Winner, e.Points),
	}}

	entries, err := s.Standings(ctx, e.Channel)
	if err == nil {
		msgs = append(msgs, domain.Message{Target: e.Channel, Text: fmt.Sprintf("All-time standings for %s:", e.Channel)})
		for i, entry := range entries {
			msgs = append(msgs, domain.Message{
				Target: e.Channel,
				Text:   fmt.Sprintf("%d. %s - %d round wins", i+1, entry.Nick, entry.Wins),
			})
		}
	} else if !errors.IsCode(err, errors.CodeNotFound) {
		return fmt.Errorf("announce standings: channel=%s: %w", e.Channel, err)
	}

	s.eb.Publish(ctx, domain.EventDeliver{Messages: msgs})
	return nil
}

func (s *Service) winsKey(channel string) string {
	return fmt.Sprintf("%s:%s:wins", s.prefix, channel)
}
