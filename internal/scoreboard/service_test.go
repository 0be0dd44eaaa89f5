package scoreboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/cahbot/internal/domain"
	"github.com/victornm/cahbot/internal/errors"
	"github.com/victornm/cahbot/internal/event"
	"github.com/victornm/cahbot/internal/scoreboard"
)

func TestService_RecordWinAndStandings(t *testing.T) {
	s := makeService(t)

	for _, e := range []domain.EventRoundWon{
		{Channel: "#a", Winner: "bob", Round: 1, Points: 1},
		{Channel: "#a", Winner: "bob", Round: 2, Points: 2},
		{Channel: "#a", Winner: "carol", Round: 3, Points: 1},
		{Channel: "#b", Winner: "dave", Round: 1, Points: 1},
	} {
		require.NoError(t, s.RecordWin(context.Background(), e))
	}

	entries, err := s.Standings(context.Background(), "#a")
	require.NoError(t, err)
	assert.Equal(t, []scoreboard.Entry{
		{Nick: "bob", Wins: 2},
		{Nick: "carol", Wins: 1},
	}, entries, "standings are per channel, best first")

	entries, err = s.Standings(context.Background(), "#b")
	require.NoError(t, err)
	assert.Equal(t, []scoreboard.Entry{{Nick: "dave", Wins: 1}}, entries)
}

func TestService_StandingsNotFound(t *testing.T) {
	s := makeService(t)

	_, err := s.Standings(context.Background(), "#empty")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestService_ConcludedSessionAnnouncesStandings(t *testing.T) {
	eb := event.NewBus()

	var (
		mu        sync.Mutex
		delivered []domain.Message
	)
	eb.Subscribe(domain.EventNameDeliver, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		delivered = append(delivered, e.(domain.EventDeliver).Messages...)
		mu.Unlock()
		return nil
	})

	_ = makeService(t, withEventBus(eb))

	// Events flow in through the bus, exactly as the bot publishes them.
	eb.Publish(context.Background(), domain.EventRoundWon{Channel: "#a", Winner: "bob", Round: 1, Points: 1})
	eb.Stop()
	eb.Publish(context.Background(), domain.EventSessionConcluded{Channel: "#a", Winner: "bob", Points: 1})
	eb.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 3)
	assert.Equal(t, "bob takes the game with 1 points.", delivered[0].Text)
	assert.Equal(t, "All-time standings for #a:", delivered[1].Text)
	assert.Equal(t, "1. bob - 1 round wins", delivered[2].Text)
	for _, m := range delivered {
		assert.Equal(t, "#a", m.Target)
	}
}

func makeService(t *testing.T, opts ...options) *scoreboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := scoreboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "cah",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return scoreboard.NewService(c)
}

type options func(c *scoreboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *scoreboard.Config) {
		c.EventBus = eb
	}
}
