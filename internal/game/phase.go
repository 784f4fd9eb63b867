package game

// Phase is the client's local belief about which stage of the game is active.
type Phase string

const (
	PhaseConnecting             Phase = "connecting"
	PhaseLobby                  Phase = "lobby"
	PhaseRoleAssigned           Phase = "role_assigned"
	PhaseLeaderSelection        Phase = "leader_selection"
	PhaseTeamProposalPending    Phase = "team_proposal_pending"
	PhaseAwaitingTeam           Phase = "awaiting_team"
	PhaseTeamApprovalVoting     Phase = "team_approval_voting"
	PhaseMissionInProgress      Phase = "mission_in_progress"
	PhaseMissionResultAnnounced Phase = "mission_result_announced"
	PhaseGameOver               Phase = "game_over"
)

func (p Phase) String() string { return string(p) }

// Active reports whether the game has started and is not over yet.
func (p Phase) Active() bool {
	switch p {
	case PhaseRoleAssigned, PhaseLeaderSelection, PhaseTeamProposalPending, PhaseAwaitingTeam,
		PhaseTeamApprovalVoting, PhaseMissionInProgress, PhaseMissionResultAnnounced:
		return true
	}
	return false
}

func (p Phase) Terminal() bool { return p == PhaseGameOver }
