package render

import (
	"log/slog"
	"strings"

	"example.com/resistance-client/internal/game"
)

// LogSink renders prompts as log lines; it is the terminal front end.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log.With("component", "render")}
}

func (s *LogSink) Notify(ev game.Event) {
	switch e := ev.(type) {
	case game.LobbyJoined:
		if e.IsHost {
			s.log.Info("joined the lobby as host, start once enough players are in")
		} else {
			s.log.Info("joined the lobby, waiting for the host to start")
		}
	case game.RosterChanged:
		s.log.Info("players", "count", len(e.Roster), "names", usernames(e.Roster))
	case game.HostControlsEnabled:
		if e.Enabled {
			s.log.Info("you can start the game now")
		} else {
			s.log.Info("start is no longer available")
		}
	case game.GameStartedEvent:
		s.log.Info("game started, reveal your role when nobody is looking")
	case game.RoleRevealed:
		s.log.Info("your role", "role", e.Role, "hiddenAt", e.ExpiresAt.Format("15:04:05"))
	case game.RoleHidden:
		s.log.Info("role hidden")
	case game.LeaderAssigned:
		if e.IsSelf {
			s.log.Info("you are the mission leader, pick a team", "size", e.RequiredSize, "players", usernames(e.Roster))
		} else {
			s.log.Info("you are not the leader, waiting for a team proposal")
		}
	case game.TeamVoteRequested:
		s.log.Info("vote on the proposed team", "team", strings.Join(e.Members, ", "))
	case game.VoteCast:
		s.log.Info("vote", "player", e.Username, "vote", yesNo(e.Approve))
	case game.MissionAssignment:
		if e.IsSelf {
			s.log.Info("you are on the mission, choose success or fail")
		} else {
			s.log.Info("you are not on this mission, waiting for the result")
		}
	case game.MissionHistoryChanged:
		for _, r := range e.Records {
			s.log.Info("mission", "num", r.Number, "leader", r.Leader.Username, "result", r.Result, "fails", r.FailCount)
		}
		s.log.Info("score", "resistance", e.Score.Successes, "spies", e.Score.Fails, "decided", e.Score.Decided())
	case game.GameEnded:
		s.log.Info("game over", "winner", e.WinningSide)
	case game.ErrorRaised:
		s.log.Warn("server error", "message", e.Message)
	case game.AlertCleared:
		s.log.Debug("server error cleared")
	case game.ActionRejected:
		s.log.Warn("action rejected", "action", e.Action, "code", game.RejectCode(e.Reason), "reason", e.Reason)
	case game.Notice:
		s.log.Info(e.Text)
	case game.GamePaused:
		s.log.Info("game paused")
	case game.GameResumed:
		s.log.Info("game resumed")
	default:
		s.log.Debug("event", "kind", ev.Kind())
	}
}

func usernames(ps []game.Player) string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Username)
	}
	return strings.Join(names, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
