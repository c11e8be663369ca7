package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/loop"
	"github.com/rocketscienceinc/tictactoe-client/internal/transport/socket"
)

type GamePhase string

const (
	PhaseActive               GamePhase = "active"
	PhaseWon                  GamePhase = "won"
	PhaseDraw                 GamePhase = "draw"
	PhaseOpponentWon          GamePhase = "opponentWon"
	PhaseOpponentDisconnected GamePhase = "opponentDisconnected"
	PhaseTerminated           GamePhase = "terminated"
)

const (
	textYourTurn     = "Your Turn"
	textOpponentTurn = "Opponent Turn"
)

type GameView struct {
	Board    entity.Board `json:"board"`
	Symbol   string       `json:"symbol"`
	Turn     string       `json:"turn"`
	Room     string       `json:"room"`
	Winner   string       `json:"winner,omitempty"`
	Phase    GamePhase    `json:"phase"`
	Outcome  string       `json:"outcome,omitempty"`
	TurnText string       `json:"turnText,omitempty"`

	WaitingForTurn       bool  `json:"waitingForTurn"`
	OpponentDisconnected bool  `json:"opponentDisconnected"`
	ConnectionLost       bool  `json:"connectionLost"`
	Pending              []int `json:"pending,omitempty"`
}

// GameSession is the state machine of one match.
//
// The server owns the game: confirmed only ever changes through gameUpdate
// pushes, and every push drops all pending moves. Pending moves are this
// client's submitted but unconfirmed cells, overlaid on the confirmed board
// for display. All methods must be called on the event loop.
type GameSession struct {
	logger    *slog.Logger
	conn      connection
	sessions  sessionRepo
	scheduler scheduler
	navigator navigator
	timings   Timings
	observer  func(GameView)

	confirmed *entity.GameState
	pending   []int
	phase     GamePhase

	waiting     bool
	waitTimer   loop.Timer
	notice      bool
	noticeTimer loop.Timer

	connectionLost bool

	closed bool
}

func NewGameSession(
	logger *slog.Logger,
	conn connection,
	sessions sessionRepo,
	scheduler scheduler,
	navigator navigator,
	timings Timings,
	observer func(GameView),
) *GameSession {
	return &GameSession{
		logger:    logger.With("component", "game"),
		conn:      conn,
		sessions:  sessions,
		scheduler: scheduler,
		navigator: navigator,
		timings:   timings.withDefaults(),
		observer:  observer,

		phase: PhaseActive,
	}
}

// Enter - restores the match from the session snapshot, falling back to the
// state handed over by matchmaking. Without either the session terminates
// and returns apperror.ErrSessionNotFound.
func (that *GameSession) Enter(ctx context.Context, handoff *entity.GameState) error {
	log := that.logger.With("method", "Enter")

	snapshot, err := that.load(ctx)
	if err != nil && !errors.Is(err, apperror.ErrSessionNotFound) {
		log.Error("failed to load session", "error", err)
	}

	switch {
	case snapshot != nil && (handoff == nil || handoff.Room == snapshot.Room):
		that.confirmed = snapshot
	case handoff != nil:
		that.confirmed = handoff.Clone()
		that.persist(ctx)
	default:
		log.Info("no session to resume")
		that.terminate(ctx)

		return apperror.ErrSessionNotFound
	}

	that.phase = phaseOf(that.confirmed)

	that.conn.On(entity.EventGameUpdate, that.onGameUpdate)
	that.conn.On(entity.EventPlayerDisconnected, that.onPlayerDisconnected)
	that.conn.On(entity.EventDisconnect, that.onDisconnect)
	that.conn.On(entity.EventConnect, that.onConnect)
	that.conn.On(entity.EventConnectError, that.onConnectError)

	if !that.conn.Connected() {
		that.conn.Connect()
	}

	log.Info("game session entered", "room", that.confirmed.Room, "symbol", that.confirmed.Symbol)
	that.notify()

	return nil
}

// ClickCell - submits a move at cell 0..8. Only legal moves reach the
// server; a move out of turn shows the wait indicator instead. While the
// transport is down the move is queued and a new connection is attempted.
func (that *GameSession) ClickCell(cell int) error {
	if that.closed || that.phase == PhaseTerminated || that.phase == PhaseOpponentDisconnected {
		return apperror.ErrSessionTerminated
	}

	visible := that.visible()
	if err := visible.CanMove(cell); err != nil {
		if errors.Is(err, apperror.ErrNotYourTurn) {
			that.showWaitIndicator()
		}

		return err
	}

	if !that.conn.Connected() {
		that.conn.Connect()
	}

	move := entity.MovePayload{Room: that.confirmed.Room, Position: cell}
	if err := that.conn.Emit(entity.EventMakeMove, move); err != nil {
		return fmt.Errorf("failed to submit move: %w", err)
	}

	that.pending = append(that.pending, cell)
	that.notify()

	return nil
}

// Exit - leaves a decided match and returns to matchmaking.
func (that *GameSession) Exit(ctx context.Context) error {
	if that.closed || that.phase == PhaseTerminated {
		return apperror.ErrSessionTerminated
	}

	if !that.confirmed.IsFinished() {
		return apperror.ErrExitUnavailable
	}

	that.terminate(ctx)

	return nil
}

func (that *GameSession) View() GameView {
	visible := that.visible()

	view := GameView{
		Board:  visible.Board,
		Symbol: visible.Symbol,
		Turn:   visible.Turn,
		Room:   visible.Room,
		Winner: visible.Winner,
		Phase:  that.phase,

		WaitingForTurn:       that.waiting,
		OpponentDisconnected: that.notice,
		ConnectionLost:       that.connectionLost,
		Pending:              slices.Clone(that.pending),
	}

	if that.confirmed == nil {
		return view
	}

	switch {
	case visible.IsFinished():
		view.Outcome = visible.Outcome().Text()
	case visible.IsMyTurn():
		view.TurnText = textYourTurn
	default:
		view.TurnText = textOpponentTurn
	}

	return view
}

// Close - releases subscriptions and timers. Late timer callbacks become no-ops.
func (that *GameSession) Close() {
	if that.closed {
		return
	}

	that.closed = true

	that.conn.Off(entity.EventGameUpdate)
	that.conn.Off(entity.EventPlayerDisconnected)
	that.conn.Off(entity.EventDisconnect)
	that.conn.Off(entity.EventConnect)
	that.conn.Off(entity.EventConnectError)

	that.stopTimers()
}

func (that *GameSession) onGameUpdate(payload json.RawMessage) {
	log := that.logger.With("method", "onGameUpdate")

	if that.closed || that.phase == PhaseOpponentDisconnected || that.phase == PhaseTerminated {
		log.Debug("ignoring update", "phase", that.phase)
		return
	}

	var update entity.GameUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		log.Warn("ignoring undecodable update", "error", err)
		return
	}

	if err := update.Validate(); err != nil {
		log.Warn("ignoring invalid update", "error", err)
		return
	}

	that.confirmed.Apply(update)
	that.pending = nil
	that.phase = phaseOf(that.confirmed)

	if that.confirmed.IsFinished() {
		that.hideWaitIndicator()
	}

	that.persist(context.Background())
	that.notify()
}

func (that *GameSession) onPlayerDisconnected(_ json.RawMessage) {
	if that.closed || that.phase == PhaseOpponentDisconnected || that.phase == PhaseTerminated {
		return
	}

	that.logger.Info("opponent disconnected", "room", that.confirmed.Room)

	that.phase = PhaseOpponentDisconnected
	that.notice = true
	that.hideWaitIndicator()

	that.noticeTimer = that.scheduler.AfterFunc(that.timings.DisconnectNotice, func() {
		if that.closed {
			return
		}

		that.notice = false
		that.terminate(context.Background())
	})

	that.notify()
}

// onDisconnect reads the winner at call time, so a game decided after
// subscribing never triggers a reconnect.
func (that *GameSession) onDisconnect(payload json.RawMessage) {
	if that.closed {
		return
	}

	log := that.logger.With("method", "onDisconnect", "reason", socket.DecodeReason(payload))

	if that.confirmed.IsFinished() {
		log.Info("connection lost after the game was decided")
		return
	}

	log.Warn("connection lost, reconnecting")

	that.connectionLost = true
	that.conn.Connect()
	that.notify()
}

func (that *GameSession) onConnect(_ json.RawMessage) {
	if that.closed || !that.connectionLost {
		return
	}

	that.connectionLost = false
	that.notify()
}

// onConnectError drops pending moves: the transport discards its queue when
// a dial fails, so those moves never reach the server. The next click retries.
func (that *GameSession) onConnectError(payload json.RawMessage) {
	if that.closed || that.phase == PhaseTerminated {
		return
	}

	that.logger.Warn("reconnect failed", "reason", socket.DecodeReason(payload), "dropped", len(that.pending))

	that.connectionLost = true
	that.pending = nil
	that.notify()
}

// terminate clears the snapshot before leaving, on every terminal path.
func (that *GameSession) terminate(ctx context.Context) {
	that.phase = PhaseTerminated
	that.pending = nil
	that.waiting = false
	that.notice = false
	that.stopTimers()

	ctx, cancel := context.WithTimeout(ctx, that.timings.StoreTimeout)
	defer cancel()

	if err := that.sessions.Clear(ctx); err != nil {
		that.logger.Error("failed to clear session", "error", err)
	}

	if that.confirmed != nil {
		that.notify()
	}

	that.navigator.ToMatchmaking()
}

func (that *GameSession) showWaitIndicator() {
	that.waiting = true

	stopTimer(that.waitTimer)
	that.waitTimer = that.scheduler.AfterFunc(that.timings.WaitTurn, func() {
		if that.closed {
			return
		}

		that.waiting = false
		that.notify()
	})

	that.notify()
}

func (that *GameSession) hideWaitIndicator() {
	that.waiting = false

	stopTimer(that.waitTimer)
	that.waitTimer = nil
}

func (that *GameSession) stopTimers() {
	stopTimer(that.waitTimer)
	that.waitTimer = nil

	stopTimer(that.noticeTimer)
	that.noticeTimer = nil
}

// visible returns the confirmed state with pending moves drawn in.
func (that *GameSession) visible() *entity.GameState {
	if that.confirmed == nil {
		return &entity.GameState{}
	}

	visible := that.confirmed.Clone()
	for _, cell := range that.pending {
		visible.Board[cell] = visible.Symbol
	}

	return visible
}

func (that *GameSession) load(ctx context.Context) (*entity.GameState, error) {
	ctx, cancel := context.WithTimeout(ctx, that.timings.StoreTimeout)
	defer cancel()

	state, err := that.sessions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return state, nil
}

func (that *GameSession) persist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, that.timings.StoreTimeout)
	defer cancel()

	if err := that.sessions.Save(ctx, that.confirmed); err != nil {
		that.logger.Error("failed to persist session", "room", that.confirmed.Room, "error", err)
	}
}

func (that *GameSession) notify() {
	if that.observer != nil {
		that.observer(that.View())
	}
}

func phaseOf(state *entity.GameState) GamePhase {
	switch state.Outcome() {
	case entity.OutcomeWon:
		return PhaseWon
	case entity.OutcomeDraw:
		return PhaseDraw
	case entity.OutcomeOpponentWon:
		return PhaseOpponentWon
	default:
		return PhaseActive
	}
}
