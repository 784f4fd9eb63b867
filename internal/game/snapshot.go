package game

// Snapshot is the serializable client view. It is stored between runs and
// served by the status endpoint.
type Snapshot struct {
	GameID string `json:"gameId"`

	Phase        Phase    `json:"phase"`
	IsHost       bool     `json:"isHost"`
	Paused       bool     `json:"paused"`
	Roster       []Player `json:"roster"`
	RequiredSize int      `json:"requiredSize"`
	OnMission    bool     `json:"onMission"`

	TeamSubmitted    bool `json:"teamSubmitted"`
	VoteSubmitted    bool `json:"voteSubmitted"`
	OutcomeSubmitted bool `json:"outcomeSubmitted"`

	Missions []MissionRecord `json:"missions"`
	Score    Score           `json:"score"`
	VoteLog  []VoteCast      `json:"voteLog"`

	Alert  string `json:"alert,omitempty"`
	Winner string `json:"winner,omitempty"`
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		GameID:       m.session.GameID(),
		Phase:        m.phase,
		IsHost:       m.isHost,
		Paused:       m.paused,
		Roster:       append([]Player(nil), m.roster...),
		RequiredSize: m.requiredSize,
		OnMission:    m.onMission,

		TeamSubmitted:    m.teamGate.used,
		VoteSubmitted:    m.voteGate.used,
		OutcomeSubmitted: m.outcomeGate.used,

		Missions: append([]MissionRecord(nil), m.missions...),
		Score:    Tally(m.missions),
		VoteLog:  append([]VoteCast(nil), m.voteLog...),

		Alert:  m.alert,
		Winner: m.winner,
	}
}

// restoreLocked brings back what the player saw before a restart. The phase
// itself is not restored: the server drives it again after reconnecting.
func (m *Machine) restoreLocked(s Snapshot) {
	m.isHost = s.IsHost
	m.roster = append([]Player(nil), s.Roster...)
	m.missions = append([]MissionRecord(nil), s.Missions...)
	m.voteLog = append([]VoteCast(nil), s.VoteLog...)
	if s.Phase == PhaseGameOver {
		m.phase = PhaseGameOver
		m.winner = s.Winner
	}
}
