package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config describes all runtime settings of the client. It is loaded once in
// main, validated and passed down explicitly.
type Config struct {
	Env string // dev|stage|prod

	Log struct {
		Format string // text|json
		Level  string // debug|info|warn|error
	}

	Server struct {
		URL         string
		DialTimeout time.Duration
		PingPeriod  time.Duration
	}

	Session struct {
		Cookie string
		GameID string
	}

	Game struct {
		RoleRevealDuration time.Duration
		MinPlayers         int
	}

	Control struct {
		Addr            string
		Secret          string
		TokenTTL        time.Duration
		ShutdownTimeout time.Duration
	}

	Auth struct {
		CredentialSecret string
	}

	Postgres struct {
		URL           string
		RunMigrations bool
		MigrationsDir string
	}

	Redis struct {
		Addr       string
		DB         int
		SessionTTL time.Duration
	}
}

func LoadFromEnv() (Config, error) {
	var c Config

	c.Env = envString("APP_ENV", "dev")
	c.Log.Format = envString("LOG_FORMAT", "text")
	c.Log.Level = envString("LOG_LEVEL", "info")

	c.Server.URL = envString("SERVER_URL", "ws://localhost:8081/socket")
	c.Server.DialTimeout = envDuration("SERVER_DIAL_TIMEOUT", 10*time.Second)
	c.Server.PingPeriod = envDuration("SERVER_PING_PERIOD", 25*time.Second)

	c.Session.Cookie = envString("USER_COOKIE", "")
	c.Session.GameID = envString("GAME_ID", "")
	if c.Session.GameID == "" {
		id, err := GameIDFromURL(envString("GAME_URL", ""))
		if err != nil {
			return Config{}, err
		}
		c.Session.GameID = id
	}

	c.Game.RoleRevealDuration = envDuration("ROLE_REVEAL_DURATION", 3*time.Second)
	c.Game.MinPlayers = envInt("MIN_PLAYERS", 5)

	c.Control.Addr = envString("CONTROL_ADDR", "127.0.0.1:8090")
	c.Control.Secret = envString("CONTROL_SECRET", "")
	c.Control.TokenTTL = envDuration("CONTROL_TOKEN_TTL", 24*time.Hour)
	c.Control.ShutdownTimeout = envDuration("CONTROL_SHUTDOWN_TIMEOUT", 5*time.Second)

	c.Auth.CredentialSecret = envString("CREDENTIAL_SECRET", "")

	c.Postgres.URL = envString("DATABASE_URL", "")
	c.Postgres.RunMigrations = envBool("RUN_MIGRATIONS", false)
	c.Postgres.MigrationsDir = envString("MIGRATIONS_DIR", "./db/migrations")

	c.Redis.Addr = envString("REDIS_ADDR", "")
	c.Redis.DB = envInt("REDIS_DB", 0)
	c.Redis.SessionTTL = envDuration("SESSION_TTL", 24*time.Hour)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Session.Cookie) == "" {
		return errors.New("USER_COOKIE is empty")
	}
	if strings.TrimSpace(c.Session.GameID) == "" {
		return errors.New("GAME_ID is empty (set GAME_ID or GAME_URL)")
	}
	if c.Server.URL == "" {
		return errors.New("SERVER_URL is empty")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported LOG_FORMAT=%q (want text|json)", c.Log.Format)
	}
	if c.Game.RoleRevealDuration <= 0 {
		return fmt.Errorf("ROLE_REVEAL_DURATION must be positive, got %s", c.Game.RoleRevealDuration)
	}
	if c.Game.MinPlayers < 1 {
		return fmt.Errorf("MIN_PLAYERS must be at least 1, got %d", c.Game.MinPlayers)
	}
	if c.Env != "dev" && c.Control.Addr != "" && c.Control.Secret == "" {
		return fmt.Errorf("refuse to run the control server without CONTROL_SECRET in %s", c.Env)
	}
	if c.Postgres.RunMigrations && c.Postgres.URL == "" {
		return errors.New("RUN_MIGRATIONS needs DATABASE_URL")
	}
	return nil
}

// GameIDFromURL extracts the gameId query parameter of a game page URL.
// An empty input yields an empty id.
func GameIDFromURL(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("GAME_URL: %w", err)
	}
	return u.Query().Get("gameId"), nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
