package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/cahbot/internal/bot"
	"github.com/victornm/cahbot/internal/deck"
	"github.com/victornm/cahbot/internal/errors"
	"github.com/victornm/cahbot/internal/event"
	"github.com/victornm/cahbot/internal/game"
	"github.com/victornm/cahbot/internal/relay"
	"github.com/victornm/cahbot/internal/scoreboard"
	"github.com/victornm/cahbot/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Relay struct {
			Addrs []string
			Pass  string
		}

		Scoreboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Relay struct {
		Inbound  string
		Outbound string
		Nick     string
	}

	Game struct {
		MinPlayers         int
		HandSize           int
		PointsToWin        int
		MaxDurationSeconds int
	}

	Cards struct {
		Questions string
		Answers   string
	}
}

type Server struct {
	c Config

	eb      *event.Bus
	catalog *deck.Catalog

	infra struct {
		redis struct {
			relay      redis.UniversalClient
			scoreboard redis.UniversalClient
		}
	}

	service struct {
		bot        *bot.Service
		scoreboard *scoreboard.Service
		relay      *relay.Service
	}

	http *http.Server

	relayCtx    context.Context
	relayCancel context.CancelFunc
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	s.relayCtx, s.relayCancel = context.WithCancel(context.Background())

	catalog, err := deck.LoadCatalog(c.Cards.Questions, c.Cards.Answers)
	if err != nil {
		return nil, fmt.Errorf("server: load card catalog: %w", err)
	}
	s.catalog = catalog

	if err := s.initRedis(); err != nil {
		return nil, fmt.Errorf("server: init redis: %w", err)
	}

	s.initService()
	s.initHTTP()
	return s, nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.relay, err = connect(s.c.Redis.Relay.Addrs, s.c.Redis.Relay.Pass)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	s.infra.redis.scoreboard, err = connect(s.c.Redis.Scoreboard.Addrs, s.c.Redis.Scoreboard.Pass)
	if err != nil {
		return fmt.Errorf("scoreboard: %w", err)
	}

	return nil
}

func (s *Server) initService() {
	s.service.bot = bot.NewService(bot.Config{
		EventBus: s.eb,
		Catalog:  s.catalog,
		Rules: game.Rules{
			MinPlayers:  s.c.Game.MinPlayers,
			HandSize:    s.c.Game.HandSize,
			PointsToWin: s.c.Game.PointsToWin,
			MaxDuration: time.Duration(s.c.Game.MaxDurationSeconds) * time.Second,
		},
	})

	s.service.scoreboard = scoreboard.NewService(scoreboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.scoreboard,
		Prefix:   s.c.Redis.Scoreboard.Prefix,
	})

	s.service.relay = relay.NewService(relay.Config{
		EventBus: s.eb,
		Bot:      s.service.bot,
		Redis:    s.infra.redis.relay,
		Inbound:  s.c.Relay.Inbound,
		Outbound: s.c.Relay.Outbound,
		Nick:     s.c.Relay.Nick,
	})

	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cahbot_sessions_active",
		Help: "Live game sessions, expired entries included until replaced.",
	}, func() float64 {
		return float64(s.service.bot.Registry().Len())
	}))
}

func (s *Server) initHTTP() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	e.GET("/api/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.service.bot.Registry().Snapshots()})
	})

	e.GET("/api/sessions/:channel", func(c *gin.Context) {
		sess, ok := s.service.bot.Registry().Get(c.Param("channel"))
		if !ok {
			apiErr := errors.New(errors.CodeNotFound, errors.WithMessagef("no game for channel %s", c.Param("channel")))
			c.JSON(apiErr.HTTPStatusCode(), apiErr)
			return
		}
		c.JSON(http.StatusOK, sess.Snapshot())
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := s.relayCtx

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, "server: relay consuming chat", "inbound", s.c.Relay.Inbound, "outbound", s.c.Relay.Outbound)
		return s.service.relay.Run(ctx)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.relayCancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
