package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ err error }

func (f failingStore) Save(context.Context, string, Snapshot) error { return f.err }
func (f failingStore) Load(context.Context, string) (Snapshot, bool, error) {
	return Snapshot{}, false, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionService_SaveAndRestore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySessionStore()
	sess, err := NewSessionContext("cookie-1", "g1")
	require.NoError(t, err)

	svc := NewSessionService(Config{}, store, quietLogger())
	m, found, err := svc.Open(ctx, sess, nil)
	require.NoError(t, err)
	require.False(t, found)

	out := &testSender{}
	require.NoError(t, m.Connect(out))
	m.Handle(&ConnectAck{Header: Header{Message: MsgConnectAck}, IsHost: true})
	m.Handle(&MissionListUpdate{
		Header:   Header{Message: MsgMissionList},
		Missions: []MissionRecord{{Number: 1, Result: ResultFail, FailCount: 2}},
	})
	svc.Flush()

	snap, ok, err := store.Load(ctx, sess.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "g1", snap.GameID)
	assert.Equal(t, PhaseLobby, snap.Phase)

	// restart
	svc2 := NewSessionService(Config{}, store, quietLogger())
	m2, found, err := svc2.Open(ctx, sess, nil)
	require.NoError(t, err)
	require.True(t, found)

	st := m2.State()
	assert.True(t, st.IsHost)
	assert.Equal(t, PhaseConnecting, st.Phase)
	assert.Equal(t, Score{Fails: 1}, st.Score)
}

func TestSessionService_LoadError(t *testing.T) {
	sess, err := NewSessionContext("c", "g")
	require.NoError(t, err)

	boom := errors.New("redis down")
	svc := NewSessionService(Config{}, failingStore{err: boom}, quietLogger())
	_, _, err = svc.Open(context.Background(), sess, nil)
	require.ErrorIs(t, err, boom)
}

func TestSessionService_SaveErrorDoesNotBreakMachine(t *testing.T) {
	sess, err := NewSessionContext("c", "g")
	require.NoError(t, err)

	store := &flakyStore{InMemorySessionStore: NewInMemorySessionStore(), saveErr: errors.New("timeout")}
	svc := NewSessionService(Config{}, store, quietLogger())
	m, _, err := svc.Open(context.Background(), sess, nil)
	require.NoError(t, err)

	m.Handle(&ConnectAck{Header: Header{Message: MsgConnectAck}})
	assert.Equal(t, PhaseLobby, m.Phase())
}

// blockingStore holds every Save until release is closed.
type blockingStore struct {
	*InMemorySessionStore
	release chan struct{}
	saving  chan struct{}
}

func (b *blockingStore) Save(ctx context.Context, key string, snap Snapshot) error {
	select {
	case b.saving <- struct{}{}:
	default:
	}
	<-b.release
	return b.InMemorySessionStore.Save(ctx, key, snap)
}

func TestSessionService_SlowStoreDoesNotHoldTheMachine(t *testing.T) {
	sess, err := NewSessionContext("c", "g")
	require.NoError(t, err)

	store := &blockingStore{
		InMemorySessionStore: NewInMemorySessionStore(),
		release:              make(chan struct{}),
		saving:               make(chan struct{}, 1),
	}
	svc := NewSessionService(Config{}, store, quietLogger())
	m, _, err := svc.Open(context.Background(), sess, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(stopped)
	}()

	require.NoError(t, m.Connect(&testSender{}))
	m.Handle(&ConnectAck{Header: Header{Message: MsgConnectAck}, IsHost: true})

	select {
	case <-store.saving:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot never reached the store")
	}

	// the store is stuck, envelopes still go through
	done := make(chan struct{})
	go func() {
		m.Handle(&GameStarted{Header: Header{Message: MsgGameStarted}})
		m.Handle(&MissionPreparation{Header: Header{Message: MsgMissionPrep}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("machine blocked on the store")
	}
	assert.Equal(t, PhaseLeaderSelection, m.Phase())

	close(store.release)
	cancel()
	<-stopped

	snap, ok, err := store.InMemorySessionStore.Load(context.Background(), sess.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, PhaseLeaderSelection, snap.Phase)
}

type flakyStore struct {
	*InMemorySessionStore
	saveErr error
}

func (f *flakyStore) Save(context.Context, string, Snapshot) error { return f.saveErr }

func TestInMemorySessionStore_Missing(t *testing.T) {
	_, ok, err := NewInMemorySessionStore().Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
