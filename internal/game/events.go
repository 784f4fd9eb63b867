package game

import (
	"encoding/json"
	"sync"
	"time"
)

type EventKind string

const (
	EvLobbyJoined           EventKind = "lobby_joined"
	EvRosterChanged         EventKind = "roster_changed"
	EvHostControlsEnabled   EventKind = "host_controls_enabled"
	EvGameStarted           EventKind = "game_started"
	EvRoleRevealed          EventKind = "role_revealed"
	EvRoleHidden            EventKind = "role_hidden"
	EvLeaderAssigned        EventKind = "leader_assigned"
	EvTeamVoteRequested     EventKind = "team_vote_requested"
	EvVoteCast              EventKind = "vote_cast"
	EvMissionAssignment     EventKind = "mission_assignment"
	EvMissionHistoryChanged EventKind = "mission_history_changed"
	EvGameEnded             EventKind = "game_ended"
	EvErrorRaised           EventKind = "error_raised"
	EvAlertCleared          EventKind = "alert_cleared"
	EvActionRejected        EventKind = "action_rejected"
	EvNotice                EventKind = "notice"
	EvGamePaused            EventKind = "game_paused"
	EvGameResumed           EventKind = "game_resumed"
)

// Event is a prompt or notification for the render side.
type Event interface {
	Kind() EventKind
}

type LobbyJoined struct {
	IsHost bool `json:"isHost"`
}

type RosterChanged struct {
	Roster []Player `json:"roster"`
}

type HostControlsEnabled struct {
	Enabled bool `json:"enabled"`
}

type GameStartedEvent struct{}

type RoleRevealed struct {
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type RoleHidden struct{}

type LeaderAssigned struct {
	IsSelf       bool     `json:"isSelf"`
	RequiredSize int      `json:"requiredSize"`
	Roster       []Player `json:"roster"`
}

type TeamVoteRequested struct {
	Members []string `json:"members"`
}

type VoteCast struct {
	Username string `json:"username"`
	Approve  bool   `json:"approve"`
}

type MissionAssignment struct {
	IsSelf bool `json:"isSelf"`
}

type MissionHistoryChanged struct {
	Records []MissionRecord `json:"records"`
	Score   Score           `json:"score"`
}

type GameEnded struct {
	WinningSide string `json:"winningSide"`
}

type ErrorRaised struct {
	Message string `json:"message"`
}

type AlertCleared struct{}

type ActionRejected struct {
	Action string `json:"action"`
	Reason error  `json:"-"`
}

// MarshalJSON keeps the reason readable on the wire.
func (e ActionRejected) MarshalJSON() ([]byte, error) {
	reason := ""
	if e.Reason != nil {
		reason = e.Reason.Error()
	}
	return json.Marshal(struct {
		Action string `json:"action"`
		Code   string `json:"code"`
		Reason string `json:"reason"`
	}{e.Action, RejectCode(e.Reason), reason})
}

type Notice struct {
	Text string `json:"text"`
}

type GamePaused struct{}

type GameResumed struct{}

func (LobbyJoined) Kind() EventKind           { return EvLobbyJoined }
func (RosterChanged) Kind() EventKind         { return EvRosterChanged }
func (HostControlsEnabled) Kind() EventKind   { return EvHostControlsEnabled }
func (GameStartedEvent) Kind() EventKind      { return EvGameStarted }
func (RoleRevealed) Kind() EventKind          { return EvRoleRevealed }
func (RoleHidden) Kind() EventKind            { return EvRoleHidden }
func (LeaderAssigned) Kind() EventKind        { return EvLeaderAssigned }
func (TeamVoteRequested) Kind() EventKind     { return EvTeamVoteRequested }
func (VoteCast) Kind() EventKind              { return EvVoteCast }
func (MissionAssignment) Kind() EventKind     { return EvMissionAssignment }
func (MissionHistoryChanged) Kind() EventKind { return EvMissionHistoryChanged }
func (GameEnded) Kind() EventKind             { return EvGameEnded }
func (ErrorRaised) Kind() EventKind           { return EvErrorRaised }
func (AlertCleared) Kind() EventKind          { return EvAlertCleared }
func (ActionRejected) Kind() EventKind        { return EvActionRejected }
func (Notice) Kind() EventKind                { return EvNotice }
func (GamePaused) Kind() EventKind            { return EvGamePaused }
func (GameResumed) Kind() EventKind           { return EvGameResumed }

// Sink receives events. Notify is called with the machine lock held and must
// not call back into the machine synchronously.
type Sink interface {
	Notify(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Notify(ev Event) { f(ev) }

// MultiSink fans events out in order.
type MultiSink []Sink

func (ms MultiSink) Notify(ev Event) {
	for _, s := range ms {
		if s != nil {
			s.Notify(ev)
		}
	}
}

// Recorder keeps every event; handy for tests and the status view.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind filters recorded events.
func (r *Recorder) OfKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}
