// cmd/server/main.go
package main

import (
	"log"
	"net"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/pmoser/blackjack-server/internal/config"
	"github.com/pmoser/blackjack-server/internal/handlers"
	"github.com/pmoser/blackjack-server/internal/history"
	"github.com/pmoser/blackjack-server/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.Load()

	var journal *history.Journal
	if cfg.RedisAddr != "" {
		j, err := history.Connect(cfg.RedisAddr, logger)
		if err != nil {
			log.Fatalf("action journal: %v", err)
		}
		journal = j
		logger.Infof("action journal enabled at %s", cfg.RedisAddr)
	}

	srv := handlers.NewServer(logger, cfg, journal)

	// line-protocol transport
	ln, err := net.Listen("tcp", cfg.TCPAddr)
	if err != nil {
		log.Fatalf("tcp listen on %s: %v", cfg.TCPAddr, err)
	}
	go func() {
		if err := srv.ServeTCP(ln); err != nil {
			log.Fatalf("tcp server exited: %v", err)
		}
	}()

	// websocket transport
	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WSHandler(logger, srv),
	)))

	logger.Infof("Running on %s (ws) and %s (tcp)", cfg.HTTPAddr, cfg.TCPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
