package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"example.com/resistance-client/internal/auth"
	"example.com/resistance-client/internal/client"
	"example.com/resistance-client/internal/config"
	"example.com/resistance-client/internal/game"
	"example.com/resistance-client/internal/httpapi"
	"example.com/resistance-client/internal/render"
	"example.com/resistance-client/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var errGameOver = errors.New("game over")

type App struct {
	cfg config.Config
	log *slog.Logger

	db  *pgxpool.Pool
	rdb *redis.Client

	sess     game.SessionContext
	sessions *game.SessionService
	machine  *game.Machine
	journal  *store.Journal
	feed     *httpapi.Feed
	srv      *http.Server
}

// New wires config, stores, the game machine and the control server. The
// game server connection is made in Run.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	clientID := uuid.NewString()
	log = log.With("clientId", clientID)

	// --- credential ---
	id, err := auth.Inspect(cfg.Session.Cookie)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	if cfg.Auth.CredentialSecret != "" {
		if _, err := auth.VerifyCredential([]byte(cfg.Auth.CredentialSecret), cfg.Session.Cookie); err != nil {
			return nil, fmt.Errorf("credential: %w", err)
		}
	}
	if id.Opaque {
		log.Info("using opaque credential")
	} else {
		log.Info("using credential", "userId", id.UserID, "name", id.Name, "expires", id.ExpiresAt)
	}

	sess, err := game.NewSessionContext(cfg.Session.Cookie, cfg.Session.GameID)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, sess: sess}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// --- Redis (session snapshots) ---
	var persist game.SessionPersistence = game.NewInMemorySessionStore()
	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
		}
		persist = game.NewRedisSessionStore(a.rdb, cfg.Redis.SessionTTL)
	}

	// --- Postgres (event journal) ---
	sinks := game.MultiSink{render.NewLogSink(log)}
	if cfg.Postgres.URL != "" {
		a.db, err = pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("pgxpool: %w", err)
		}
		if err := a.db.Ping(pingCtx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		a.journal = store.NewJournal(a.db, clientID, sess.GameID(), log)
		sinks = append(sinks, a.journal)
	}

	// --- control server ---
	if cfg.Control.Addr != "" {
		a.feed = httpapi.NewFeed(log)
		sinks = append(sinks, a.feed)
	}

	// --- game ---
	gameCfg := game.Config{
		RoleRevealDuration: cfg.Game.RoleRevealDuration,
		MinPlayers:         cfg.Game.MinPlayers,
	}
	a.sessions = game.NewSessionService(gameCfg, persist, log)
	a.machine, _, err = a.sessions.Open(ctx, sess, sinks)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("session: %w", err)
	}

	if cfg.Control.Addr != "" {
		ctl := httpapi.NewServer(a.machine, a.feed, []byte(cfg.Control.Secret), log)
		a.srv = &http.Server{
			Addr:              cfg.Control.Addr,
			Handler:           ctl.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}

	return a, nil
}

// Machine exposes the game state machine, mostly for tests.
func (a *App) Machine() *game.Machine { return a.machine }

// Run connects to the game server and blocks until the game is over, the
// connection fails or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer func() { _ = a.Close() }()

	if a.machine.Phase().Terminal() {
		a.log.Info("game already finished, not connecting", "gameId", a.sess.GameID())
		return nil
	}

	conn, err := client.Dial(ctx, a.cfg.Server.URL, client.Options{
		Cookie:      a.cfg.Session.Cookie,
		DialTimeout: a.cfg.Server.DialTimeout,
		PingPeriod:  a.cfg.Server.PingPeriod,
	}, a.log)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := a.machine.Connect(conn); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return conn.Run(gctx, func(b []byte) {
			_ = a.machine.HandleRaw(b) // malformed input is logged and dropped
		})
	})

	g.Go(func() error {
		select {
		case <-a.machine.Done():
			return errGameOver
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error { return a.sessions.Run(gctx) })

	if a.journal != nil {
		g.Go(func() error { return a.journal.Run(gctx) })
	}

	if a.srv != nil {
		a.log.Info("control server starting", "addr", a.cfg.Control.Addr)
		g.Go(func() error {
			err := a.srv.ListenAndServe()
			if err == nil || errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Control.ShutdownTimeout)
			defer cancel()
			a.log.Info("control server shutting down")
			a.feed.Close()
			_ = a.srv.Shutdown(shutdownCtx)
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, errGameOver) {
		st := a.machine.State()
		a.log.Info("game finished", "winner", st.Winner, "resistance", st.Score.Successes, "spies", st.Score.Fails)
		return nil
	}
	return err
}

func (a *App) Close() error {
	// best-effort
	if a.machine != nil {
		a.machine.Close()
	}
	if a.sessions != nil {
		a.sessions.Flush()
	}
	if a.feed != nil {
		a.feed.Close()
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
	return nil
}
