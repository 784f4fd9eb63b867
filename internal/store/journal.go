package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"example.com/resistance-client/internal/game"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	journalQueue = 256
	drainTimeout = 3 * time.Second
)

// execer is satisfied by *pgxpool.Pool.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type record struct {
	seq     int64
	kind    game.EventKind
	payload []byte

	// set for GameEnded only
	winner string
	score  game.Score
}

// Journal writes every event of one session to Postgres. Notify never
// blocks; when the queue is full the event is dropped.
type Journal struct {
	db        execer
	sessionID string
	gameID    string
	log       *slog.Logger

	queue chan record

	mu    sync.Mutex
	seq   int64
	score game.Score
}

func NewJournal(db execer, sessionID, gameID string, log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	return &Journal{
		db:        db,
		sessionID: sessionID,
		gameID:    gameID,
		log:       log,
		queue:     make(chan record, journalQueue),
	}
}

func (j *Journal) Notify(ev game.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		j.log.Warn("journal: event not encodable", "kind", ev.Kind(), "err", err)
		return
	}

	j.mu.Lock()
	j.seq++
	rec := record{seq: j.seq, kind: ev.Kind(), payload: payload}
	switch e := ev.(type) {
	case game.MissionHistoryChanged:
		j.score = e.Score
	case game.GameEnded:
		rec.winner = e.WinningSide
		rec.score = j.score
	}
	j.mu.Unlock()

	select {
	case j.queue <- rec:
	default:
		j.log.Warn("journal: queue full, event dropped", "kind", ev.Kind(), "seq", rec.seq)
	}
}

// Run writes queued events until ctx ends, then flushes what is left.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-j.queue:
			j.write(ctx, rec)
		case <-ctx.Done():
			j.drain()
			return nil
		}
	}
}

func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case rec := <-j.queue:
			j.write(ctx, rec)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, rec record) {
	if err := j.insert(ctx, rec); err != nil {
		j.log.Warn("journal: write failed", "kind", rec.kind, "seq", rec.seq, "err", err)
	}
}

func (j *Journal) insert(ctx context.Context, rec record) error {
	_, err := j.db.Exec(ctx, `
		INSERT INTO client_events (session_id, game_id, seq, kind, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, seq) DO NOTHING
	`, j.sessionID, j.gameID, rec.seq, string(rec.kind), rec.payload)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if rec.kind != game.EvGameEnded {
		return nil
	}
	_, err = j.db.Exec(ctx, `
		INSERT INTO game_results (session_id, game_id, winner, successes, fails)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE
		SET winner = EXCLUDED.winner, successes = EXCLUDED.successes,
		    fails = EXCLUDED.fails, finished_at = now()
	`, j.sessionID, j.gameID, rec.winner, rec.score.Successes, rec.score.Fails)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}
