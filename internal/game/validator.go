package game

import "fmt"

// ValidationState is the read-only view the validator needs.
type ValidationState struct {
	Phase        Phase
	IsHost       bool
	RosterSize   int
	MinPlayers   int
	RequiredSize int
	OnMission    bool

	TeamSubmitted    bool
	VoteSubmitted    bool
	OutcomeSubmitted bool
}

// Validate enforces the local, structural rules for a user action. Game
// rules (who may be on a team, fail thresholds) are left to the server.
func Validate(st ValidationState, a Action) error {
	if st.Phase.Terminal() {
		return fmt.Errorf("%w: game is over", ErrActionNotPermitted)
	}

	switch act := a.(type) {
	case StartGame:
		if st.Phase != PhaseLobby {
			return fmt.Errorf("%w: game can only be started from the lobby", ErrActionNotPermitted)
		}
		if !st.IsHost {
			return fmt.Errorf("%w: only the host can start the game", ErrActionNotPermitted)
		}
		if st.RosterSize < st.MinPlayers {
			return fmt.Errorf("%w: %d players, need at least %d", ErrActionNotPermitted, st.RosterSize, st.MinPlayers)
		}

	case StartMission:
		if st.Phase != PhaseTeamProposalPending {
			return fmt.Errorf("%w: not proposing a team", ErrActionNotPermitted)
		}
		if st.TeamSubmitted {
			return fmt.Errorf("%w: team already sent for this mission", ErrAlreadySubmitted)
		}
		if st.RequiredSize <= 0 {
			return fmt.Errorf("%w: team size not announced", ErrActionNotPermitted)
		}
		if n := len(UniqueTeam(act.Team)); n != st.RequiredSize {
			return fmt.Errorf("%w: selected %d, need exactly %d", ErrInvalidTeamSize, n, st.RequiredSize)
		}

	case ApproveTeam:
		if st.Phase != PhaseTeamApprovalVoting {
			return fmt.Errorf("%w: no team is up for a vote", ErrActionNotPermitted)
		}
		if st.VoteSubmitted {
			return fmt.Errorf("%w: vote already cast for this team", ErrAlreadySubmitted)
		}

	case MissionOutcome:
		if st.Phase != PhaseMissionInProgress {
			return fmt.Errorf("%w: no mission in progress", ErrActionNotPermitted)
		}
		if !st.OnMission {
			return fmt.Errorf("%w: not selected for this mission", ErrActionNotPermitted)
		}
		if st.OutcomeSubmitted {
			return fmt.Errorf("%w: outcome already sent for this mission", ErrAlreadySubmitted)
		}

	case QueryRole:
		if !st.Phase.Active() {
			return fmt.Errorf("%w: roles are not assigned yet", ErrActionNotPermitted)
		}

	case GetPlayers:
		if st.Phase == PhaseConnecting {
			return fmt.Errorf("%w: not connected to a game yet", ErrActionNotPermitted)
		}

	default:
		return fmt.Errorf("%w: %s is not a user action", ErrActionNotPermitted, a.ActionType())
	}
	return nil
}

// UniqueTeam drops repeated ids, keeping the first occurrence.
func UniqueTeam(ids []PlayerID) []PlayerID {
	seen := make(map[PlayerID]struct{}, len(ids))
	out := make([]PlayerID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
