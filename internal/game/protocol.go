package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Inbound discriminators, as sent by the game server.
const (
	MsgConnectAck      = "playerConnectSuccessful"
	MsgRoster          = "players"
	MsgGameStarted     = "gameStarted"
	MsgRoleResult      = "queryRoleResult"
	MsgMissionPrep     = "missionPreparation"
	MsgLeaderResult    = "queryLeaderResult"
	MsgTeamApproval    = "teamApproval"
	MsgVoteBroadcast   = "approveTeamUpdate"
	MsgMissionStarted  = "missionStarted"
	MsgOnMissionResult = "queryIsOnMissionResult"
	MsgMissionList     = "missions"
	MsgGameOver        = "gameOver"
	MsgShowText        = "showText"
	MsgGamePause       = "gamePause"
	MsgGameResume      = "gameResume"
)

// Outbound discriminators.
const (
	ActPlayerConnect      = "playerConnect"
	ActGetPlayers         = "getPlayers"
	ActStartGame          = "startGame"
	ActQueryRole          = "queryRole"
	ActQueryLeader        = "queryLeader"
	ActStartMission       = "startMission"
	ActApproveTeam        = "approveTeam"
	ActQueryIsOnMission   = "queryIsOnMission"
	ActMissionOutcome     = "missionOutcome"
	ActUpdateGameProgress = "updateGameProgress"
)

// PlayerID is an opaque player identifier. The server sends numeric ids,
// the client echoes them back as strings.
type PlayerID string

func (id *PlayerID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = PlayerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("player id: %w", err)
	}
	*id = PlayerID(n.String())
	return nil
}

type Player struct {
	ID       PlayerID `json:"id"`
	Username string   `json:"username"`
}

// UnmarshalJSON accepts a bare username or an object with UserId/Username
// (either casing).
func (p *Player) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*p = Player{ID: PlayerID(name), Username: name}
		return nil
	}

	var raw struct {
		UserID   *PlayerID `json:"UserId"`
		UserID2  *PlayerID `json:"userId"`
		ID       *PlayerID `json:"id"`
		Username string    `json:"Username"`
		Name     string    `json:"username"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var out Player
	switch {
	case raw.UserID != nil:
		out.ID = *raw.UserID
	case raw.UserID2 != nil:
		out.ID = *raw.UserID2
	case raw.ID != nil:
		out.ID = *raw.ID
	}
	out.Username = raw.Username
	if out.Username == "" {
		out.Username = raw.Name
	}
	if out.ID == "" {
		out.ID = PlayerID(out.Username)
	}
	if out.ID == "" {
		return fmt.Errorf("player without id or username")
	}
	*p = out
	return nil
}

type MissionResult string

const (
	ResultPending MissionResult = "Pending"
	ResultSuccess MissionResult = "Success"
	ResultFail    MissionResult = "Fail"
)

// UnmarshalJSON normalizes the result spellings the server has used over time.
func (r *MissionResult) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int
		if nerr := json.Unmarshal(b, &n); nerr != nil {
			return fmt.Errorf("mission result: %w", err)
		}
		s = strconv.Itoa(n)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending", "none", "n", "2":
		*r = ResultPending
	case "success", "resistance", "r", "pass", "0":
		*r = ResultSuccess
	case "fail", "failure", "spy", "spies", "s", "1":
		*r = ResultFail
	default:
		return fmt.Errorf("mission result: unknown value %q", s)
	}
	return nil
}

type MissionRecord struct {
	Number    int           `json:"missionNum"`
	Leader    Player        `json:"missionLeader"`
	Result    MissionResult `json:"missionResult"`
	FailCount int           `json:"numFails"`
}

// Header is present on every inbound envelope.
type Header struct {
	Message      string  `json:"message"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
}

func (h Header) header() Header { return h }

// Inbound is one of the typed envelope variants below.
type Inbound interface {
	header() Header
}

type ConnectAck struct {
	Header
	IsHost             bool     `json:"isHost"`
	UserID             PlayerID `json:"userId"`
	UpdateGameProgress bool     `json:"updateGameProgress"`
}

type RosterUpdate struct {
	Header
	Players []Player `json:"players"`
}

type GameStarted struct{ Header }

type RoleResult struct {
	Header
	Role string `json:"role"`
}

type MissionPreparation struct{ Header }

type LeaderResult struct {
	Header
	IsLeader bool     `json:"isLeader"`
	TeamSize int      `json:"teamSize"`
	Players  []Player `json:"players"`
}

type TeamApprovalRequest struct {
	Header
	Team []string `json:"team"`
}

type VoteBroadcast struct {
	Header
	Username string `json:"username"`
	Vote     bool   `json:"vote"`
}

type MissionStarted struct{ Header }

type OnMissionResult struct {
	Header
	IsOnMission bool `json:"isOnMission"`
}

type MissionListUpdate struct {
	Header
	Missions []MissionRecord `json:"missions"`
}

type GameOver struct {
	Header
	Winner string `json:"winner"`
}

type ShowText struct {
	Header
	Text string `json:"text"`
}

type GamePause struct{ Header }

type GameResume struct{ Header }

// Unknown carries an unrecognized discriminator; it is ignored apart from
// its errorMessage.
type Unknown struct{ Header }

// Action is an outbound payload. Payload fields are flattened next to the
// envelope header on the wire.
type Action interface {
	ActionType() string
}

type PlayerConnect struct{}
type GetPlayers struct{}
type StartGame struct{}
type QueryRole struct{}
type QueryLeader struct{}
type QueryIsOnMission struct{}
type UpdateGameProgress struct{}

type StartMission struct {
	Team []PlayerID `json:"team"`
}

type ApproveTeam struct {
	Vote bool `json:"vote"`
}

type MissionOutcome struct {
	Outcome bool `json:"outcome"`
}

func (PlayerConnect) ActionType() string      { return ActPlayerConnect }
func (GetPlayers) ActionType() string         { return ActGetPlayers }
func (StartGame) ActionType() string          { return ActStartGame }
func (QueryRole) ActionType() string          { return ActQueryRole }
func (QueryLeader) ActionType() string        { return ActQueryLeader }
func (QueryIsOnMission) ActionType() string   { return ActQueryIsOnMission }
func (UpdateGameProgress) ActionType() string { return ActUpdateGameProgress }
func (StartMission) ActionType() string       { return ActStartMission }
func (ApproveTeam) ActionType() string        { return ActApproveTeam }
func (MissionOutcome) ActionType() string     { return ActMissionOutcome }

// Outbound is the wire envelope produced by BuildEnvelope.
type Outbound struct {
	Message    string
	UserCookie string
	GameID     string
	Payload    Action
}
