package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"example.com/resistance-client/internal/game"
)

// Actions is the part of the game machine the control server drives.
type Actions interface {
	State() game.Snapshot
	StartGame() error
	RequestRole() error
	RefreshRoster() error
	SubmitTeam(ids []game.PlayerID) error
	Vote(approve bool) error
	ReportOutcome(success bool) error
}

// Server is the local control surface: status, user actions and a live
// event feed for a UI running next to the client.
type Server struct {
	actions Actions
	feed    *Feed
	secret  []byte
	log     *slog.Logger
}

func NewServer(actions Actions, feed *Feed, secret []byte, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{actions: actions, feed: feed, secret: secret, log: log}
}

func (s *Server) Handler() http.Handler {
	protect := AuthMiddleware(s.secret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /api/state", protect(http.HandlerFunc(s.handleState)))
	mux.Handle("POST /api/actions/{action}", protect(http.HandlerFunc(s.handleAction)))
	if s.feed != nil {
		mux.Handle("GET /ws/events", protect(s.feed))
	}
	return mux
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.actions.State())
}

type teamRequest struct {
	Team []game.PlayerID `json:"team"`
}

type voteRequest struct {
	Approve *bool `json:"approve"`
}

type outcomeRequest struct {
	Success *bool `json:"success"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	var err error
	switch action {
	case "start":
		err = s.actions.StartGame()
	case "role":
		err = s.actions.RequestRole()
	case "players":
		err = s.actions.RefreshRoster()

	case "team":
		var req teamRequest
		if !decodeBody(w, r, &req) {
			return
		}
		err = s.actions.SubmitTeam(req.Team)

	case "vote":
		var req voteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Approve == nil {
			writeError(w, http.StatusBadRequest, "bad_request", "approve is required")
			return
		}
		err = s.actions.Vote(*req.Approve)

	case "outcome":
		var req outcomeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Success == nil {
			writeError(w, http.StatusBadRequest, "bad_request", "success is required")
			return
		}
		err = s.actions.ReportOutcome(*req.Success)

	default:
		writeError(w, http.StatusNotFound, "unknown_action", "unknown action "+action)
		return
	}

	if err != nil {
		s.log.Info("control action failed", "action", action, "user", requester(r), "err", err)
		writeActionError(w, err)
		return
	}
	s.log.Info("control action", "action", action, "user", requester(r))
	writeJSON(w, http.StatusAccepted, s.actions.State())
}

// requester is the token subject, empty when auth is off.
func requester(r *http.Request) string {
	if c, ok := ClaimsFromContext(r.Context()); ok {
		return c.UserID
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return false
	}
	return true
}
