package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/loop"
	"github.com/rocketscienceinc/tictactoe-client/internal/transport/socket"
)

type MatchmakingState string

const (
	MatchmakingIdle            MatchmakingState = "idle"
	MatchmakingSearching       MatchmakingState = "searching"
	MatchmakingMatched         MatchmakingState = "matched"
	MatchmakingConnectionError MatchmakingState = "connectionError"
)

type MatchmakingView struct {
	State           MatchmakingState `json:"state"`
	Searching       bool             `json:"searching"`
	ConnectionError bool             `json:"connectionError"`
	Symbol          string           `json:"symbol,omitempty"`
}

// Matchmaker drives symbol selection until the server pairs this client with an opponent.
// All methods must be called on the event loop.
type Matchmaker struct {
	logger    *slog.Logger
	conn      connection
	sessions  sessionRepo
	scheduler scheduler
	navigator navigator
	timings   Timings
	observer  func(MatchmakingView)

	view        MatchmakingView
	searchTimer loop.Timer
	closed      bool
}

func NewMatchmaker(
	logger *slog.Logger,
	conn connection,
	sessions sessionRepo,
	scheduler scheduler,
	navigator navigator,
	timings Timings,
	observer func(MatchmakingView),
) *Matchmaker {
	return &Matchmaker{
		logger:    logger.With("component", "matchmaking"),
		conn:      conn,
		sessions:  sessions,
		scheduler: scheduler,
		navigator: navigator,
		timings:   timings.withDefaults(),
		observer:  observer,

		view: MatchmakingView{State: MatchmakingIdle},
	}
}

// Enter - subscribes to the transport and makes sure a connection is on its way.
func (that *Matchmaker) Enter() {
	that.conn.On(entity.EventConnect, that.onConnect)
	that.conn.On(entity.EventConnectError, that.onConnectError)
	that.conn.On(entity.EventMatchFound, that.onMatchFound)

	if !that.conn.Connected() {
		that.conn.Connect()
	}

	that.notify()
}

// SelectSymbol - asks the server for an opponent, playing symbol X, O or R for random.
func (that *Matchmaker) SelectSymbol(symbol string) error {
	log := that.logger.With("method", "SelectSymbol", "symbol", symbol)

	if that.closed {
		return apperror.ErrFlowClosed
	}

	if !entity.IsValidChoice(symbol) {
		return fmt.Errorf("%w: %q", apperror.ErrInvalidSymbol, symbol)
	}

	if !that.conn.Connected() {
		that.conn.Connect()
	}

	if err := that.conn.Emit(entity.EventJoinGame, symbol); err != nil {
		return fmt.Errorf("failed to send join request: %w", err)
	}

	that.view.State = MatchmakingSearching
	that.view.Searching = true
	that.view.Symbol = symbol

	stopTimer(that.searchTimer)
	that.searchTimer = that.scheduler.AfterFunc(that.timings.Search, func() {
		if that.closed {
			return
		}

		that.view.Searching = false
		that.notify()
	})

	log.Info("join request sent")
	that.notify()

	return nil
}

func (that *Matchmaker) View() MatchmakingView {
	return that.view
}

// Close - releases subscriptions and timers. The transport stays open for the next view.
func (that *Matchmaker) Close() {
	if that.closed {
		return
	}

	that.closed = true

	that.conn.Off(entity.EventConnect)
	that.conn.Off(entity.EventConnectError)
	that.conn.Off(entity.EventMatchFound)

	stopTimer(that.searchTimer)
	that.searchTimer = nil
}

func (that *Matchmaker) onConnect(_ json.RawMessage) {
	if that.closed {
		return
	}

	that.view.ConnectionError = false
	if that.view.State == MatchmakingConnectionError {
		that.view.State = MatchmakingIdle
	}

	that.notify()
}

func (that *Matchmaker) onConnectError(payload json.RawMessage) {
	if that.closed {
		return
	}

	that.logger.Warn("connection failed", "reason", socket.DecodeReason(payload))

	that.view.State = MatchmakingConnectionError
	that.view.ConnectionError = true
	that.view.Searching = false

	stopTimer(that.searchTimer)
	that.searchTimer = nil

	that.notify()
}

func (that *Matchmaker) onMatchFound(payload json.RawMessage) {
	log := that.logger.With("method", "onMatchFound")

	if that.closed {
		return
	}

	var state entity.GameState
	if err := json.Unmarshal(payload, &state); err != nil {
		log.Warn("ignoring undecodable match", "error", err)
		return
	}

	if err := state.Validate(); err != nil {
		log.Warn("ignoring invalid match", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), that.timings.StoreTimeout)
	defer cancel()

	if err := that.sessions.Save(ctx, &state); err != nil {
		log.Error("failed to persist match", "room", state.Room, "error", err)
	}

	that.view.State = MatchmakingMatched
	that.view.Searching = false
	that.notify()

	log.Info("match found", "room", state.Room, "symbol", state.Symbol)

	that.Close()
	that.navigator.ToGame(&state)
}

func (that *Matchmaker) notify() {
	if that.observer != nil {
		that.observer(that.view)
	}
}
