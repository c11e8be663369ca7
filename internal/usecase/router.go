package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

type Route string

const (
	RouteNone        Route = ""
	RouteMatchmaking Route = "matchmaking"
	RouteGame        Route = "game"
)

type CommandKind string

const (
	CommandSelect CommandKind = "select"
	CommandMove   CommandKind = "move"
	CommandExit   CommandKind = "exit"
)

// Command is one user action coming from an input device.
type Command struct {
	Kind   CommandKind
	Symbol string
	Cell   int
}

type RouteView struct {
	Route       Route            `json:"route"`
	Matchmaking *MatchmakingView `json:"matchmaking,omitempty"`
	Game        *GameView        `json:"game,omitempty"`
}

type presenter interface {
	ShowMatchmaking(view MatchmakingView)
	ShowGame(view GameView)
}

// Router owns the active view. At most one of matchmaker and session is set.
// All methods must be called on the event loop.
type Router struct {
	logger    *slog.Logger
	conn      connection
	sessions  sessionRepo
	scheduler scheduler
	timings   Timings
	presenter presenter

	route      Route
	matchmaker *Matchmaker
	session    *GameSession
}

func NewRouter(
	logger *slog.Logger,
	conn connection,
	sessions sessionRepo,
	scheduler scheduler,
	timings Timings,
	presenter presenter,
) *Router {
	return &Router{
		logger:    logger,
		conn:      conn,
		sessions:  sessions,
		scheduler: scheduler,
		timings:   timings.withDefaults(),
		presenter: presenter,
	}
}

// Start - resumes a stored match if there is one, otherwise opens matchmaking.
func (that *Router) Start(ctx context.Context) {
	log := that.logger.With("method", "Start")

	loadCtx, cancel := context.WithTimeout(ctx, that.timings.StoreTimeout)
	defer cancel()

	_, err := that.sessions.Load(loadCtx)
	switch {
	case err == nil:
		log.Info("resuming stored match")
		that.enterGame(ctx, nil)
	case errors.Is(err, apperror.ErrSessionNotFound):
		that.ToMatchmaking()
	default:
		log.Error("failed to read session, starting matchmaking", "error", err)
		that.ToMatchmaking()
	}
}

func (that *Router) ToGame(handoff *entity.GameState) {
	that.enterGame(context.Background(), handoff)
}

func (that *Router) ToMatchmaking() {
	that.closeActive()

	matchmaker := NewMatchmaker(that.logger, that.conn, that.sessions, that.scheduler, that, that.timings,
		that.presenter.ShowMatchmaking)

	that.route = RouteMatchmaking
	that.matchmaker = matchmaker

	matchmaker.Enter()
}

// HandleInput - forwards a command to the active view.
func (that *Router) HandleInput(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandSelect:
		if that.matchmaker == nil {
			return fmt.Errorf("%w: %s", apperror.ErrWrongView, cmd.Kind)
		}

		return that.matchmaker.SelectSymbol(cmd.Symbol)
	case CommandMove:
		if that.session == nil {
			return fmt.Errorf("%w: %s", apperror.ErrWrongView, cmd.Kind)
		}

		return that.session.ClickCell(cmd.Cell)
	case CommandExit:
		if that.session == nil {
			return fmt.Errorf("%w: %s", apperror.ErrWrongView, cmd.Kind)
		}

		return that.session.Exit(ctx)
	default:
		return fmt.Errorf("%w: %q", apperror.ErrUnknownInput, cmd.Kind)
	}
}

func (that *Router) Snapshot() RouteView {
	view := RouteView{Route: that.route}

	switch {
	case that.matchmaker != nil:
		matchmaking := that.matchmaker.View()
		view.Matchmaking = &matchmaking
	case that.session != nil:
		game := that.session.View()
		view.Game = &game
	}

	return view
}

// Close - tears down the active view on shutdown.
func (that *Router) Close() {
	that.closeActive()
	that.route = RouteNone
}

func (that *Router) enterGame(ctx context.Context, handoff *entity.GameState) {
	that.closeActive()

	session := NewGameSession(that.logger, that.conn, that.sessions, that.scheduler, that, that.timings,
		that.presenter.ShowGame)

	that.route = RouteGame
	that.session = session

	if err := session.Enter(ctx, handoff); err != nil {
		that.logger.Info("game view left on entry", "error", err)
	}
}

func (that *Router) closeActive() {
	if that.matchmaker != nil {
		that.matchmaker.Close()
		that.matchmaker = nil
	}

	if that.session != nil {
		that.session.Close()
		that.session = nil
	}
}
