package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/cahbot/internal/config"
	"github.com/victornm/cahbot/internal/server"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

func loadConfig() (server.Config, error) {
	var c server.Config

	// Defaults that hold when the config file leaves them out.
	c.HTTP.Port = 8080
	c.Relay.Inbound = "cahbot.robot.broadcast"
	c.Relay.Outbound = "cahbot.service.broadcast"
	c.Relay.Nick = "cah"
	c.Redis.Scoreboard.Prefix = "cahbot"
	c.Cards.Questions = "./questions.txt"
	c.Cards.Answers = "./answers.txt"

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		return c, fmt.Errorf("CONFIG_PATH not set")
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
