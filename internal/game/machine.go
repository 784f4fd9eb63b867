package game

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Config struct {
	RoleRevealDuration time.Duration // how long a revealed role stays visible
	MinPlayers         int           // quorum for the host's start action
}

func DefaultConfig() Config {
	return Config{
		RoleRevealDuration: 3 * time.Second,
		MinPlayers:         5,
	}
}

// Sender hands encoded envelopes to the transport. Fire-and-forget.
type Sender interface {
	Send(b []byte) error
}

type stopper interface {
	Stop() bool
}

// gate is a single-shot flag for one phase entry.
type gate struct{ used bool }

func (g *gate) reset() { g.used = false }

// Machine consumes inbound envelopes, tracks the phase and validates the
// local player's actions before they are sent.
type Machine struct {
	mu sync.Mutex

	cfg     Config
	session SessionContext
	sink    Sink
	log     *slog.Logger
	sender  Sender

	phase        Phase
	isHost       bool
	hostControls bool
	paused       bool
	resuming     bool
	roster       []Player
	requiredSize int
	onMission    bool
	missionNum   int // mission in flight when missionStarted arrived
	missions     []MissionRecord
	voteLog      []VoteCast
	alert        string
	winner       string
	awaiting     string // follow-up query whose reply has not arrived

	teamGate    gate
	voteGate    gate
	outcomeGate gate

	roleTimer stopper
	roleToken int64
	afterFunc func(d time.Duration, f func()) stopper
	now       func() time.Time

	done      chan struct{}
	doneOnce  sync.Once
	onPersist func(Snapshot)
}

func NewMachine(cfg Config, sess SessionContext, sink Sink, log *slog.Logger) *Machine {
	def := DefaultConfig()
	if cfg.RoleRevealDuration <= 0 {
		cfg.RoleRevealDuration = def.RoleRevealDuration
	}
	if cfg.MinPlayers <= 0 {
		cfg.MinPlayers = def.MinPlayers
	}
	if sink == nil {
		sink = MultiSink(nil)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Machine{
		cfg:     cfg,
		session: sess,
		sink:    sink,
		log:     log.With("gameId", sess.GameID()),
		phase:   PhaseConnecting,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		now:  time.Now,
		done: make(chan struct{}),
	}
}

// SetPersistHook registers a callback that receives a snapshot after every
// state change. It runs with the machine lock held.
func (m *Machine) SetPersistHook(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPersist = fn
}

func (m *Machine) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restoreLocked(s)
	if m.phase.Terminal() {
		m.emitLocked(GameEnded{WinningSide: m.winner})
		m.closeDoneLocked()
	}
}

// Connect attaches the transport and announces the player to the server.
func (m *Machine) Connect(sender Sender) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase.Terminal() {
		return fmt.Errorf("%w: game is over", ErrActionNotPermitted)
	}
	m.sender = sender
	return m.sendLocked(PlayerConnect{})
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Done is closed once the game is over.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Close stops the role timer; used on shutdown.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopRoleTimerLocked()
}

// HandleRaw decodes and applies one inbound message. Malformed input is
// dropped without touching the state.
func (m *Machine) HandleRaw(raw []byte) error {
	in, err := Decode(raw)
	if err != nil {
		m.log.Warn("dropping malformed envelope", "err", err, "raw", truncate(raw, 256))
		return err
	}
	m.Handle(in)
	return nil
}

// Handle applies one inbound envelope. Once the game is over every envelope
// is a no-op.
func (m *Machine) Handle(in Inbound) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := in.header()
	if m.phase.Terminal() {
		m.log.Debug("game over, ignoring envelope", "message", h.Message)
		return
	}

	m.surfaceAlertLocked(h)

	switch msg := in.(type) {
	case *ConnectAck:
		m.onConnectAckLocked(msg)
	case *RosterUpdate:
		m.onRosterLocked(msg)
	case *GameStarted:
		m.onGameStartedLocked()
	case *RoleResult:
		m.onRoleResultLocked(msg)
	case *MissionPreparation:
		m.onMissionPreparationLocked()
	case *LeaderResult:
		m.onLeaderResultLocked(msg)
	case *TeamApprovalRequest:
		m.onTeamApprovalLocked(msg)
	case *VoteBroadcast:
		m.onVoteBroadcastLocked(msg)
	case *MissionStarted:
		m.onMissionStartedLocked()
	case *OnMissionResult:
		m.onOnMissionResultLocked(msg)
	case *MissionListUpdate:
		m.onMissionListLocked(msg)
	case *GameOver:
		m.onGameOverLocked(msg)
	case *ShowText:
		m.onShowTextLocked(msg)
	case *GamePause:
		m.paused = true
		m.emitLocked(GamePaused{})
	case *GameResume:
		m.paused = false
		m.emitLocked(GameResumed{})
	default:
		m.log.Debug("ignoring unknown envelope", "message", h.Message)
	}

	m.persistLocked()
}

// --- user actions ---

func (m *Machine) StartGame() error { return m.submit(StartGame{}, nil) }

func (m *Machine) RequestRole() error { return m.submit(QueryRole{}, nil) }

func (m *Machine) RefreshRoster() error { return m.submit(GetPlayers{}, nil) }

func (m *Machine) SubmitTeam(ids []PlayerID) error {
	return m.submit(StartMission{Team: UniqueTeam(ids)}, &m.teamGate)
}

func (m *Machine) Vote(approve bool) error {
	return m.submit(ApproveTeam{Vote: approve}, &m.voteGate)
}

func (m *Machine) ReportOutcome(success bool) error {
	return m.submit(MissionOutcome{Outcome: success}, &m.outcomeGate)
}

func (m *Machine) submit(a Action, g *gate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := Validate(m.validationStateLocked(), a); err != nil {
		m.log.Info("action rejected", "action", a.ActionType(), "err", err)
		m.emitLocked(ActionRejected{Action: a.ActionType(), Reason: err})
		return err
	}
	if err := m.sendLocked(a); err != nil {
		return err
	}
	if g != nil {
		g.used = true
	}
	m.persistLocked()
	return nil
}

func (m *Machine) validationStateLocked() ValidationState {
	return ValidationState{
		Phase:            m.phase,
		IsHost:           m.isHost,
		RosterSize:       len(m.roster),
		MinPlayers:       m.cfg.MinPlayers,
		RequiredSize:     m.requiredSize,
		OnMission:        m.onMission,
		TeamSubmitted:    m.teamGate.used,
		VoteSubmitted:    m.voteGate.used,
		OutcomeSubmitted: m.outcomeGate.used,
	}
}

// --- inbound handlers ---

func (m *Machine) surfaceAlertLocked(h Header) {
	if h.ErrorMessage != nil {
		m.alert = *h.ErrorMessage
		m.emitLocked(ErrorRaised{Message: m.alert})
		return
	}
	if m.alert != "" {
		m.alert = ""
		m.emitLocked(AlertCleared{})
	}
}

func (m *Machine) onConnectAckLocked(a *ConnectAck) {
	if m.phase != PhaseConnecting {
		if a.UpdateGameProgress {
			m.startResumeLocked()
		} else {
			m.log.Debug("duplicate connect ack ignored", "phase", m.phase)
		}
		return
	}

	m.isHost = a.IsHost
	m.setPhaseLocked(PhaseLobby, MsgConnectAck)
	m.emitLocked(LobbyJoined{IsHost: a.IsHost})
	m.updateHostControlsLocked()
	m.sendInternalLocked(GetPlayers{})

	if a.UpdateGameProgress {
		m.startResumeLocked()
	}
}

// startResumeLocked handles a reconnect into a running game: the server
// answers updateGameProgress with whatever prompt is due.
func (m *Machine) startResumeLocked() {
	if m.phase == PhaseLobby {
		m.enterGameLocked(MsgConnectAck)
	}
	m.resuming = true
	m.sendInternalLocked(UpdateGameProgress{})
}

func (m *Machine) onRosterLocked(r *RosterUpdate) {
	roster := make([]Player, 0, len(r.Players))
	index := make(map[PlayerID]int, len(r.Players))
	for _, p := range r.Players {
		if i, ok := index[p.ID]; ok {
			roster[i] = p
			continue
		}
		index[p.ID] = len(roster)
		roster = append(roster, p)
	}
	m.roster = roster

	m.emitLocked(RosterChanged{Roster: append([]Player(nil), roster...)})
	m.updateHostControlsLocked()
}

func (m *Machine) updateHostControlsLocked() {
	enabled := m.phase == PhaseLobby && m.isHost && len(m.roster) >= m.cfg.MinPlayers
	if enabled == m.hostControls {
		return
	}
	m.hostControls = enabled
	m.emitLocked(HostControlsEnabled{Enabled: enabled})
}

func (m *Machine) onGameStartedLocked() {
	if m.phase != PhaseLobby {
		m.ignoreLocked(MsgGameStarted)
		return
	}
	m.enterGameLocked(MsgGameStarted)
}

func (m *Machine) enterGameLocked(trigger string) {
	m.setPhaseLocked(PhaseRoleAssigned, trigger)
	if m.hostControls {
		m.hostControls = false
		m.emitLocked(HostControlsEnabled{Enabled: false})
	}
	m.emitLocked(GameStartedEvent{})
}

func (m *Machine) onRoleResultLocked(r *RoleResult) {
	if !m.phase.Active() {
		m.ignoreLocked(MsgRoleResult)
		return
	}

	// a newer reveal supersedes the pending hide
	m.stopRoleTimerLocked()
	m.roleToken++
	token := m.roleToken

	d := m.cfg.RoleRevealDuration
	m.emitLocked(RoleRevealed{Role: r.Role, ExpiresAt: m.now().Add(d)})
	m.roleTimer = m.afterFunc(d, func() {
		m.onRoleExpired(token)
	})
}

func (m *Machine) onRoleExpired(token int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != m.roleToken || m.roleTimer == nil || m.phase.Terminal() {
		return // stale timer
	}
	m.roleTimer = nil
	m.emitLocked(RoleHidden{})
}

func (m *Machine) stopRoleTimerLocked() {
	if m.roleTimer != nil {
		m.roleTimer.Stop()
		m.roleTimer = nil
	}
}

func (m *Machine) onMissionPreparationLocked() {
	if !m.phase.Active() {
		m.ignoreLocked(MsgMissionPrep)
		return
	}
	m.setPhaseLocked(PhaseLeaderSelection, MsgMissionPrep)
	m.requiredSize = 0
	m.onMission = false
	m.queryLocked(QueryLeader{})
}

func (m *Machine) onLeaderResultLocked(l *LeaderResult) {
	switch {
	case m.resuming && m.phase.Active():
		m.resuming = false
	case m.phase == PhaseLeaderSelection, m.phase == PhaseTeamProposalPending, m.phase == PhaseAwaitingTeam:
		// a second result replaces the first
	default:
		m.ignoreLocked(MsgLeaderResult)
		return
	}

	m.awaiting = ""

	roster := l.Players
	if len(roster) == 0 {
		roster = m.roster
	}
	m.requiredSize = l.TeamSize

	if l.IsLeader {
		m.teamGate.reset()
		m.setPhaseLocked(PhaseTeamProposalPending, MsgLeaderResult)
	} else {
		m.setPhaseLocked(PhaseAwaitingTeam, MsgLeaderResult)
	}
	m.emitLocked(LeaderAssigned{
		IsSelf:       l.IsLeader,
		RequiredSize: l.TeamSize,
		Roster:       append([]Player(nil), roster...),
	})
}

func (m *Machine) onTeamApprovalLocked(t *TeamApprovalRequest) {
	switch {
	case m.resuming && m.phase.Active():
		m.resuming = false
	case m.phase == PhaseLeaderSelection, m.phase == PhaseTeamProposalPending, m.phase == PhaseAwaitingTeam:
		// from LeaderSelection when the leader reply was lost
	default:
		m.ignoreLocked(MsgTeamApproval)
		return
	}

	m.awaiting = ""
	m.voteGate.reset()
	m.voteLog = nil
	m.setPhaseLocked(PhaseTeamApprovalVoting, MsgTeamApproval)
	m.emitLocked(TeamVoteRequested{Members: append([]string(nil), t.Team...)})
}

func (m *Machine) onVoteBroadcastLocked(v *VoteBroadcast) {
	if m.phase != PhaseTeamApprovalVoting {
		m.ignoreLocked(MsgVoteBroadcast)
		return
	}
	ev := VoteCast{Username: v.Username, Approve: v.Vote}
	m.voteLog = append(m.voteLog, ev)
	m.emitLocked(ev)
}

// onMissionStartedLocked has no phase precondition; the server is trusted
// to know a mission is under way.
func (m *Machine) onMissionStartedLocked() {
	if m.phase == PhaseLobby && m.hostControls {
		m.hostControls = false
		m.emitLocked(HostControlsEnabled{Enabled: false})
	}
	m.enterMissionLocked(MsgMissionStarted)
	m.queryLocked(QueryIsOnMission{})
}

func (m *Machine) enterMissionLocked(trigger string) {
	m.outcomeGate.reset()
	m.onMission = false
	m.missionNum = 0
	if n := len(m.missions); n > 0 {
		m.missionNum = m.missions[n-1].Number
	}
	m.setPhaseLocked(PhaseMissionInProgress, trigger)
}

func (m *Machine) onOnMissionResultLocked(r *OnMissionResult) {
	switch {
	case m.resuming && m.phase.Active():
		m.resuming = false
		if m.phase != PhaseMissionInProgress {
			m.enterMissionLocked(MsgOnMissionResult)
		}
	case m.phase == PhaseMissionInProgress:
	default:
		m.ignoreLocked(MsgOnMissionResult)
		return
	}

	m.awaiting = ""
	m.onMission = r.IsOnMission
	m.emitLocked(MissionAssignment{IsSelf: r.IsOnMission})
}

// onShowTextLocked passes the text on. The server answers a "no" to
// queryLeader or queryIsOnMission with plain text instead of a result, so
// while such a query is outstanding the text is also taken as that answer.
func (m *Machine) onShowTextLocked(s *ShowText) {
	m.emitLocked(Notice{Text: s.Text})

	switch {
	case m.awaiting == ActQueryLeader && m.phase == PhaseLeaderSelection:
		m.awaiting = ""
		m.setPhaseLocked(PhaseAwaitingTeam, MsgShowText)
		m.emitLocked(LeaderAssigned{
			IsSelf: false,
			Roster: append([]Player(nil), m.roster...),
		})
	case m.awaiting == ActQueryIsOnMission && m.phase == PhaseMissionInProgress:
		m.awaiting = ""
		m.onMission = false
		m.emitLocked(MissionAssignment{IsSelf: false})
	}
}

func (m *Machine) onMissionListLocked(l *MissionListUpdate) {
	records := append([]MissionRecord(nil), l.Missions...)
	for i := range records {
		if records[i].Result == "" {
			records[i].Result = ResultPending
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Number < records[j].Number
	})
	m.missions = records

	m.emitLocked(MissionHistoryChanged{
		Records: append([]MissionRecord(nil), records...),
		Score:   Tally(records),
	})

	if m.phase != PhaseMissionInProgress || m.missionNum == 0 {
		return
	}
	for _, r := range records {
		if r.Number == m.missionNum && r.Result != ResultPending {
			m.setPhaseLocked(PhaseMissionResultAnnounced, MsgMissionList)
			return
		}
	}
}

func (m *Machine) onGameOverLocked(g *GameOver) {
	m.stopRoleTimerLocked()
	m.roleToken++
	m.winner = g.Winner
	m.resuming = false
	m.awaiting = ""
	m.setPhaseLocked(PhaseGameOver, MsgGameOver)
	m.emitLocked(GameEnded{WinningSide: g.Winner})
	m.closeDoneLocked()
}

// --- helpers ---

func (m *Machine) setPhaseLocked(to Phase, trigger string) {
	if m.phase == to {
		return
	}
	m.log.Info("phase transition", "from", m.phase, "to", to, "trigger", trigger)
	m.phase = to
}

func (m *Machine) ignoreLocked(message string) {
	m.log.Debug("envelope ignored in current phase", "message", message, "phase", m.phase)
}

func (m *Machine) emitLocked(ev Event) {
	m.sink.Notify(ev)
}

func (m *Machine) sendLocked(a Action) error {
	if m.sender == nil {
		return ErrNotConnected
	}
	b, err := Encode(BuildEnvelope(m.session, a))
	if err != nil {
		return err
	}
	if err := m.sender.Send(b); err != nil {
		return fmt.Errorf("send %s: %w", a.ActionType(), err)
	}
	m.log.Debug("sent", "message", a.ActionType())
	return nil
}

// sendInternalLocked is used for requests the machine issues on its own;
// failures are logged, the transport reports the broken connection.
func (m *Machine) sendInternalLocked(a Action) {
	if err := m.sendLocked(a); err != nil {
		m.log.Warn("follow-up query not sent", "message", a.ActionType(), "err", err)
	}
}

// queryLocked sends a follow-up query and remembers it until answered.
func (m *Machine) queryLocked(a Action) {
	m.awaiting = ""
	if err := m.sendLocked(a); err != nil {
		m.log.Warn("follow-up query not sent", "message", a.ActionType(), "err", err)
		return
	}
	m.awaiting = a.ActionType()
}

func (m *Machine) persistLocked() {
	if m.onPersist == nil {
		return
	}
	m.onPersist(m.snapshotLocked())
}

func (m *Machine) closeDoneLocked() {
	m.doneOnce.Do(func() { close(m.done) })
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
