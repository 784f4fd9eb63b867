package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"example.com/resistance-client/internal/auth"
	"example.com/resistance-client/internal/game"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActions struct {
	calls []string
	err   error
	team  []game.PlayerID
	vote  *bool
}

func (f *fakeActions) State() game.Snapshot {
	return game.Snapshot{GameID: "g1", Phase: game.PhaseLobby}
}

func (f *fakeActions) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeActions) StartGame() error     { return f.record("start") }
func (f *fakeActions) RequestRole() error   { return f.record("role") }
func (f *fakeActions) RefreshRoster() error { return f.record("players") }

func (f *fakeActions) SubmitTeam(ids []game.PlayerID) error {
	f.team = ids
	return f.record("team")
}

func (f *fakeActions) Vote(approve bool) error {
	f.vote = &approve
	return f.record("vote")
}

func (f *fakeActions) ReportOutcome(bool) error { return f.record("outcome") }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, actions Actions, secret []byte) (*httptest.Server, *Feed) {
	t.Helper()
	feed := NewFeed(quietLogger())
	ts := httptest.NewServer(NewServer(actions, feed, secret, quietLogger()).Handler())
	t.Cleanup(func() {
		feed.Close()
		ts.Close()
	})
	return ts, feed
}

func post(t *testing.T, url, body, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

func TestServer_Actions(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "start", path: "start", wantCode: http.StatusAccepted},
		{name: "role", path: "role", wantCode: http.StatusAccepted},
		{name: "players", path: "players", wantCode: http.StatusAccepted},
		{name: "team", path: "team", body: `{"team":[1,"2"]}`, wantCode: http.StatusAccepted},
		{name: "vote no", path: "vote", body: `{"approve":false}`, wantCode: http.StatusAccepted},
		{name: "outcome", path: "outcome", body: `{"success":true}`, wantCode: http.StatusAccepted},
		{name: "vote missing field", path: "vote", body: `{}`, wantCode: http.StatusBadRequest, wantErr: "bad_request"},
		{name: "bad json", path: "team", body: `{`, wantCode: http.StatusBadRequest, wantErr: "bad_request"},
		{name: "unknown", path: "dance", wantCode: http.StatusNotFound, wantErr: "unknown_action"},
		{
			name: "not permitted", path: "start",
			err:      fmt.Errorf("%w: only the host can start the game", game.ErrActionNotPermitted),
			wantCode: http.StatusForbidden, wantErr: "action_not_permitted",
		},
		{
			name: "wrong size", path: "team", body: `{"team":["1"]}`,
			err:      game.ErrInvalidTeamSize,
			wantCode: http.StatusUnprocessableEntity, wantErr: "invalid_team_size",
		},
		{
			name: "twice", path: "vote", body: `{"approve":true}`,
			err:      game.ErrAlreadySubmitted,
			wantCode: http.StatusConflict, wantErr: "already_submitted",
		},
		{
			name: "transport down", path: "role",
			err:      errors.New("send queryRole: connection closed"),
			wantCode: http.StatusBadGateway, wantErr: "transport_error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actions := &fakeActions{err: tc.err}
			ts, _ := newTestServer(t, actions, nil)

			resp := post(t, ts.URL+"/api/actions/"+tc.path, tc.body, "")
			require.Equal(t, tc.wantCode, resp.StatusCode)
			if tc.wantErr != "" {
				assert.Equal(t, tc.wantErr, decodeError(t, resp).Code)
				return
			}

			var snap game.Snapshot
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
			assert.Equal(t, "g1", snap.GameID)
			assert.Equal(t, []string{tc.path}, actions.calls)
		})
	}
}

func TestServer_TeamAndVotePayloads(t *testing.T) {
	actions := &fakeActions{}
	ts, _ := newTestServer(t, actions, nil)

	post(t, ts.URL+"/api/actions/team", `{"team":[1,"2"]}`, "")
	assert.Equal(t, []game.PlayerID{"1", "2"}, actions.team)

	post(t, ts.URL+"/api/actions/vote", `{"approve":false}`, "")
	require.NotNil(t, actions.vote)
	assert.False(t, *actions.vote)
}

func TestServer_StateAndHealth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeActions{}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var snap game.Snapshot
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&snap))
	assert.Equal(t, game.PhaseLobby, snap.Phase)

	resp3, err := http.Get(ts.URL + "/api/actions/start")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp3.StatusCode)
}

func TestServer_BearerAuth(t *testing.T) {
	secret := []byte("control-secret")
	actions := &fakeActions{}
	ts, _ := newTestServer(t, actions, secret)

	good, err := auth.Sign(secret, "local", "cli", time.Hour)
	require.NoError(t, err)
	bad, err := auth.Sign([]byte("other"), "local", "cli", time.Hour)
	require.NoError(t, err)

	resp := post(t, ts.URL+"/api/actions/start", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, ts.URL+"/api/actions/start", "", bad)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, ts.URL+"/api/actions/start", "", good)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// health stays open
	h, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer h.Body.Close()
	assert.Equal(t, http.StatusOK, h.StatusCode)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServer_LogsTokenSubject(t *testing.T) {
	secret := []byte("control-secret")
	var out lockedBuffer
	log := slog.New(slog.NewTextHandler(&out, nil))
	ts := httptest.NewServer(NewServer(&fakeActions{}, nil, secret, log).Handler())
	defer ts.Close()

	tok, err := auth.Sign(secret, "local-cli", "cli", time.Hour)
	require.NoError(t, err)

	resp := post(t, ts.URL+"/api/actions/role", "", tok)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, out.String(), "action=role")
	assert.Contains(t, out.String(), "user=local-cli")
}

func TestFeed_DeliversEvents(t *testing.T) {
	secret := []byte("control-secret")
	ts, feed := newTestServer(t, &fakeActions{}, secret)
	token, err := auth.Sign(secret, "local", "ui", time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	feed.Notify(game.VoteCast{Username: "bob", Approve: true})

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, ws.ReadJSON(&env))
	assert.Equal(t, game.EvVoteCast, env.Type)
	assert.JSONEq(t, `{"username":"bob","approve":true}`, string(env.Payload))
}

func TestFeed_RejectsWithoutToken(t *testing.T) {
	ts, _ := newTestServer(t, &fakeActions{}, []byte("control-secret"))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFeed_NotifyWithoutSubscribers(t *testing.T) {
	feed := NewFeed(quietLogger())
	feed.Notify(game.RoleHidden{})
	assert.Equal(t, 0, feed.Subscribers())
}
