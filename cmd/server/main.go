package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/kiliankoe/timeauction/internal/config"
	"github.com/kiliankoe/timeauction/internal/game"
	"github.com/kiliankoe/timeauction/internal/outcome"
	"github.com/kiliankoe/timeauction/internal/ws"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var version = "dev" // Set at build time via -ldflags

var CLI struct {
	Port    string           `help:"Port to listen on (overrides PORT env var)." short:"p"`
	Config  string           `help:"YAML configuration file, overlaid on the environment." short:"c" type:"path"`
	Debug   bool             `help:"Enable debug logging."`
	Version kong.VersionFlag `help:"Print version information and exit." short:"v"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("timeauction"),
		kong.Description(`Time Auction - real-time party game server.

Environment variables (also read from .env):
  PORT, TOTAL_ROUNDS, DEFAULT_REQUIRED_PLAYERS, INITIAL_BUDGET, COUNTDOWN,
  DRAW_GRACE, TICK_INTERVAL, EMPTY_ROOM_TTL, CORS_ORIGINS, ROOM_CODE_RATE,
  ROOM_CODE_BURST, EXPORT_ENABLED, EXPORT_FILE, NATS_URL, NATS_SUBJECT,
  REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_CHANNEL, PUBLISH_QUEUE`),
		kong.UsageOnError(),
		kong.Vars{"version": "timeauction " + version},
	)

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if CLI.Port != "" {
		cfg.Port = CLI.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	dispatcher := outcome.NewDispatcher(cfg.PublishQueue, buildSinks(cfg)...)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Error().Err(err).Msg("closing outcome sinks")
		}
	}()
	dispatcher.Start(ctx)

	rm := game.NewRegistry(cfg.GameSettings(), game.WithClock(clock), game.WithOutcomeSink(dispatcher))
	sock := ws.New(rm, cfg)
	rm.SetBroadcaster(sock)
	go sweepEmptyRooms(ctx, clock, rm, cfg.EmptyRoomTTL)

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC(), "rooms": rm.Len()})
	})
	r.GET("/api/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": rm.Summaries()})
	})
	r.GET("/api/rooms/:code", func(c *gin.Context) {
		room, err := rm.Get(c.Param("code"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		summary, ok := room.Summary()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room": summary, "players": room.PlayerList(), "roundHistory": room.RoundHistory()})
	})

	io := sock.Mount(r)
	defer io.Close()

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)

	srv := &http.Server{Addr: "0.0.0.0:" + cfg.Port, Handler: handler}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

func buildSinks(cfg config.Config) []outcome.Sink {
	var sinks []outcome.Sink
	if cfg.ExportEnabled {
		sinks = append(sinks, outcome.NewFileSink(cfg.ExportFile))
		log.Info().Str("file", cfg.ExportFile).Msg("exporting results")
	}
	if cfg.NATSURL != "" {
		s, err := outcome.NewNATSSink(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			log.Error().Err(err).Str("url", cfg.NATSURL).Msg("nats sink disabled")
		} else {
			sinks = append(sinks, s)
			log.Info().Str("url", cfg.NATSURL).Str("subject", cfg.NATSSubject).Msg("publishing outcomes to nats")
		}
	}
	if cfg.RedisAddr != "" {
		s, err := outcome.NewRedisSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel)
		if err != nil {
			log.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("redis sink disabled")
		} else {
			sinks = append(sinks, s)
			log.Info().Str("addr", cfg.RedisAddr).Str("channel", cfg.RedisChannel).Msg("publishing outcomes to redis")
		}
	}
	return sinks
}

func sweepEmptyRooms(ctx context.Context, clock clockwork.Clock, rm *game.Registry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	t := clock.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			if n := rm.SweepEmpty(ttl); n > 0 {
				log.Info().Int("removed", n).Msg("swept empty rooms")
			}
		}
	}
}
