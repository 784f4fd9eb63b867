//go:build integration

package game

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, rdb.Ping(ctx).Err(), "redis is not reachable")
	return rdb
}

func TestRedisPersistence_SaveLoad(t *testing.T) {
	ctx := context.Background()
	rdb := newRedisClient(t)
	require.NoError(t, rdb.FlushDB(ctx).Err())

	persist := NewRedisSessionStore(rdb, time.Hour)
	sess, err := NewSessionContext("cookie-it", "g_it_1")
	require.NoError(t, err)

	svc := NewSessionService(Config{}, persist, quietLogger())
	m, found, err := svc.Open(ctx, sess, nil)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, m.Connect(&testSender{}))
	m.Handle(&ConnectAck{Header: Header{Message: MsgConnectAck}, IsHost: true})
	m.Handle(&RosterUpdate{Header: Header{Message: MsgRoster}, Players: []Player{
		{ID: "1", Username: "alice"}, {ID: "2", Username: "bob"},
	}})
	m.Handle(&GameOver{Header: Header{Message: MsgGameOver}, Winner: "Resistance"})
	svc.Flush()

	// restart
	svc2 := NewSessionService(Config{}, persist, quietLogger())
	m2, found, err := svc2.Open(ctx, sess, nil)
	require.NoError(t, err)
	require.True(t, found)

	st := m2.State()
	require.Equal(t, PhaseGameOver, st.Phase)
	require.Equal(t, "Resistance", st.Winner)
	require.Len(t, st.Roster, 2)
}

func TestRedisPersistence_MissingKey(t *testing.T) {
	ctx := context.Background()
	rdb := newRedisClient(t)
	require.NoError(t, rdb.FlushDB(ctx).Err())

	_, ok, err := NewRedisSessionStore(rdb, time.Minute).Load(ctx, "session:none:00")
	require.NoError(t, err)
	require.False(t, ok)
}
