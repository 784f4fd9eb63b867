package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"example.com/resistance-client/internal/app"
	"example.com/resistance-client/internal/auth"
	"example.com/resistance-client/internal/config"
)

const usage = `usage: client [command]

commands:
  (none)    connect to the game and play
  token     print a bearer token for the local control server
  migrate   apply journal migrations and exit`

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "":
		err = run(ctx, cfg, log)
	case "token":
		err = printToken(cfg)
	case "migrate":
		err = runMigrations(ctx, cfg, log)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Error("client stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.Postgres.RunMigrations {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	log.Info("client starting", "env", cfg.Env, "server", cfg.Server.URL, "gameId", cfg.Session.GameID)
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("client stopped")
	return nil
}

func printToken(cfg config.Config) error {
	if cfg.Control.Secret == "" {
		return fmt.Errorf("CONTROL_SECRET is empty, the control server runs without auth")
	}
	tok, err := auth.Sign([]byte(cfg.Control.Secret), "local", "control", cfg.Control.TokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
