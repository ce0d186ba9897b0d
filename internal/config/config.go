package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kiliankoe/timeauction/internal/game"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`

	TotalRounds            int           `yaml:"total_rounds"`
	DefaultRequiredPlayers int           `yaml:"default_required_players"`
	InitialBudget          time.Duration `yaml:"initial_budget"`
	Countdown              time.Duration `yaml:"countdown"`
	DrawGrace              time.Duration `yaml:"draw_grace"`
	TickInterval           time.Duration `yaml:"tick_interval"`
	EmptyRoomTTL           time.Duration `yaml:"empty_room_ttl"`

	// Requests per second and burst for requestRoomCode, per connection.
	RoomCodeRate  float64 `yaml:"room_code_rate"`
	RoomCodeBurst int     `yaml:"room_code_burst"`

	ExportEnabled bool   `yaml:"export_enabled"`
	ExportFile    string `yaml:"export_file"`
	NATSURL       string `yaml:"nats_url"`
	NATSSubject   string `yaml:"nats_subject"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`
	PublishQueue  int    `yaml:"publish_queue"`
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "4000")
	c.CORSOrigins = []string{getenv("CORS_ORIGINS", "*")}
	c.TotalRounds = getenvInt("TOTAL_ROUNDS", 5)
	c.DefaultRequiredPlayers = getenvInt("DEFAULT_REQUIRED_PLAYERS", 2)
	c.InitialBudget = getenvDuration("INITIAL_BUDGET", 300*time.Second)
	c.Countdown = getenvDuration("COUNTDOWN", 5*time.Second)
	c.DrawGrace = getenvDuration("DRAW_GRACE", 3*time.Second)
	c.TickInterval = getenvDuration("TICK_INTERVAL", 100*time.Millisecond)
	c.EmptyRoomTTL = getenvDuration("EMPTY_ROOM_TTL", 10*time.Minute)
	c.RoomCodeRate = getenvFloat("ROOM_CODE_RATE", 1)
	c.RoomCodeBurst = getenvInt("ROOM_CODE_BURST", 3)
	c.ExportEnabled = getenv("EXPORT_ENABLED", "false") == "true"
	c.ExportFile = getenv("EXPORT_FILE", "./timeauction-results.txt")
	c.NATSURL = os.Getenv("NATS_URL")
	c.NATSSubject = getenv("NATS_SUBJECT", "auction")
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")
	c.RedisDB = getenvInt("REDIS_DB", 0)
	c.RedisChannel = getenv("REDIS_CHANNEL", "auction_events")
	c.PublishQueue = getenvInt("PUBLISH_QUEUE", 256)
	return c
}

// Load reads the environment and then overlays the YAML file at path, if
// one is given. Keys missing from the file keep their environment value.
func Load(path string) (Config, error) {
	c := FromEnv()
	if path == "" {
		return c, c.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config: %w", err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.TotalRounds < 1 {
		errs = append(errs, fmt.Errorf("total_rounds must be at least 1, got %d", c.TotalRounds))
	}
	if c.DefaultRequiredPlayers < game.MinRequiredPlayers || c.DefaultRequiredPlayers > game.MaxRequiredPlayers {
		errs = append(errs, fmt.Errorf("default_required_players must be in [%d,%d], got %d",
			game.MinRequiredPlayers, game.MaxRequiredPlayers, c.DefaultRequiredPlayers))
	}
	if c.InitialBudget <= 0 {
		errs = append(errs, errors.New("initial_budget must be positive"))
	}
	if c.Countdown < 0 || c.DrawGrace < 0 {
		errs = append(errs, errors.New("countdown and draw_grace must not be negative"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.RoomCodeRate <= 0 || c.RoomCodeBurst < 1 {
		errs = append(errs, errors.New("room_code_rate and room_code_burst must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) GameSettings() game.Settings {
	return game.Settings{
		TotalRounds:            c.TotalRounds,
		DefaultRequiredPlayers: c.DefaultRequiredPlayers,
		InitialBudget:          game.FromDuration(c.InitialBudget),
		Countdown:              c.Countdown,
		DrawGrace:              c.DrawGrace,
		TickInterval:           c.TickInterval,
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
