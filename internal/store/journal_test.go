package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"example.com/resistance-client/internal/game"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakeDB) snapshot() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execCall(nil), f.calls...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runJournal(t *testing.T, j *Journal, events ...game.Event) {
	t.Helper()
	for _, ev := range events {
		j.Notify(ev)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, j.Run(ctx))
}

func TestJournal_WritesEventsInOrder(t *testing.T) {
	db := &fakeDB{}
	j := NewJournal(db, "sess-1", "g1", quietLogger())

	runJournal(t, j,
		game.LobbyJoined{IsHost: true},
		game.VoteCast{Username: "bob", Approve: false},
	)

	calls := db.snapshot()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].sql, "INSERT INTO client_events")
	assert.Equal(t, []any{"sess-1", "g1", int64(1), "lobby_joined", []byte(`{"isHost":true}`)}, calls[0].args)
	assert.Equal(t, int64(2), calls[1].args[2])
	assert.JSONEq(t, `{"username":"bob","approve":false}`, string(calls[1].args[4].([]byte)))
}

func TestJournal_GameEndedWritesResult(t *testing.T) {
	db := &fakeDB{}
	j := NewJournal(db, "sess-1", "g1", quietLogger())

	runJournal(t, j,
		game.MissionHistoryChanged{Score: game.Score{Successes: 3, Fails: 1}},
		game.GameEnded{WinningSide: "Resistance"},
	)

	calls := db.snapshot()
	require.Len(t, calls, 3)
	assert.True(t, strings.Contains(calls[2].sql, "INSERT INTO game_results"))
	assert.Equal(t, []any{"sess-1", "g1", "Resistance", 3, 1}, calls[2].args)
}

func TestJournal_WriteErrorsAreNotFatal(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	j := NewJournal(db, "sess-1", "g1", quietLogger())

	runJournal(t, j, game.RoleHidden{}, game.GameEnded{WinningSide: "Spies"})

	// the result row is skipped once the event insert fails
	assert.Len(t, db.snapshot(), 2)
}

func TestJournal_DropsWhenFull(t *testing.T) {
	db := &fakeDB{}
	j := NewJournal(db, "sess-1", "g1", quietLogger())

	for i := 0; i < journalQueue+10; i++ {
		j.Notify(game.RoleHidden{})
	}
	assert.Len(t, j.queue, journalQueue)
}

func TestJournal_RunConsumesLive(t *testing.T) {
	db := &fakeDB{}
	j := NewJournal(db, "sess-1", "g1", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	j.Notify(game.Notice{Text: "hello"})
	require.Eventually(t, func() bool { return len(db.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
