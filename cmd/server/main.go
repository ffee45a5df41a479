package main

import (
	"context"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/christopherjohns/fancychat/internal/chat"
	"github.com/christopherjohns/fancychat/internal/config"
	"github.com/christopherjohns/fancychat/internal/history"
	"github.com/christopherjohns/fancychat/internal/ratelimit"
	"github.com/christopherjohns/fancychat/internal/server"
	"github.com/christopherjohns/fancychat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var store chat.History
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		log.Printf("Using Redis message history at %s", cfg.RedisAddr)
		store = history.NewRedisStore(rdb, cfg.MaxMessages)
	} else {
		store = history.NewMemoryStore(cfg.MaxMessages)
	}

	registry := chat.NewRegistry(store)
	conns := ws.NewConnManager()
	hub := ws.NewHub(conns)
	handler := ws.NewHandler(registry, hub, originPatterns(cfg.CORSOrigin)...)

	srv := server.New(cfg.Addr, handler,
		server.WithCORSOrigin(cfg.CORSOrigin),
		server.WithRateLimiter(ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)),
		server.WithShutdownHook(conns.Shutdown),
	)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		log.Print("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server running on %s", cfg.Addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// originPatterns turns the configured CORS origin into the host pattern the
// WebSocket accept check expects. An unparsable origin falls back to
// accepting any.
func originPatterns(origin string) []string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
