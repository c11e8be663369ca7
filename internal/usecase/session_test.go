package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/repository"
)

type sessionFixture struct {
	session   *GameSession
	conn      *fakeConnection
	sessions  sessionRepo
	scheduler *manualScheduler
	navigator *navigatorSpy
	views     []GameView
}

func newSessionFixture(sessions sessionRepo) *sessionFixture {
	if sessions == nil {
		sessions = repository.NewMemorySessionRepository(discardLogger())
	}

	fixture := &sessionFixture{
		conn:      newFakeConnection(),
		sessions:  sessions,
		scheduler: &manualScheduler{},
		navigator: &navigatorSpy{},
	}
	fixture.conn.connected = true

	fixture.session = NewGameSession(discardLogger(), fixture.conn, sessions, fixture.scheduler, fixture.navigator,
		testTimings, func(view GameView) {
			fixture.views = append(fixture.views, view)
		})

	return fixture
}

// enteredSession returns a session already playing state.
func enteredSession(t *testing.T, state *entity.GameState) *sessionFixture {
	t.Helper()

	fx := newSessionFixture(nil)
	require.NoError(t, fx.session.Enter(context.Background(), state))

	return fx
}

func (that *sessionFixture) last() GameView {
	return that.views[len(that.views)-1]
}

func TestGameSession_Enter(t *testing.T) {
	ctx := context.Background()

	t.Run("Starts from the handoff and persists it", func(t *testing.T) {
		fx := newSessionFixture(nil)
		fx.conn.connected = false

		// When: entering with a fresh match and an empty store
		require.NoError(t, fx.session.Enter(ctx, activeState()))

		// Then: the match is stored, events are watched and the transport reconnects
		stored, err := fx.sessions.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, activeState(), stored)

		assert.True(t, fx.conn.subscribed(entity.EventGameUpdate))
		assert.True(t, fx.conn.subscribed(entity.EventPlayerDisconnected))
		assert.True(t, fx.conn.subscribed(entity.EventDisconnect))
		assert.Equal(t, 1, fx.conn.connects)

		assert.Equal(t, PhaseActive, fx.last().Phase)
		assert.Equal(t, "Your Turn", fx.last().TurnText)
	})

	t.Run("Prefers the stored snapshot of the same room", func(t *testing.T) {
		fx := newSessionFixture(nil)

		// Given: a snapshot that already has moves in it
		snapshot := activeState()
		snapshot.Board[0] = entity.PlayerX
		snapshot.Turn = entity.PlayerO
		require.NoError(t, fx.sessions.Save(ctx, snapshot))

		// When: entering after a reload with the first handoff
		require.NoError(t, fx.session.Enter(ctx, activeState()))

		// Then: the snapshot wins
		assert.Equal(t, entity.PlayerX, fx.last().Board[0])
		assert.Equal(t, "Opponent Turn", fx.last().TurnText)
	})

	t.Run("Resumes from the snapshot without handoff", func(t *testing.T) {
		fx := newSessionFixture(nil)
		require.NoError(t, fx.sessions.Save(ctx, activeState()))

		require.NoError(t, fx.session.Enter(ctx, nil))

		assert.Equal(t, "r1", fx.last().Room)
		assert.Zero(t, fx.conn.connects)
	})

	t.Run("Handoff of a new room replaces a stale snapshot", func(t *testing.T) {
		fx := newSessionFixture(nil)

		stale := activeState()
		stale.Room = "old"
		require.NoError(t, fx.sessions.Save(ctx, stale))

		require.NoError(t, fx.session.Enter(ctx, activeState()))

		assert.Equal(t, "r1", fx.last().Room)

		stored, err := fx.sessions.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "r1", stored.Room)
	})

	t.Run("Without any state it returns to matchmaking", func(t *testing.T) {
		fx := newSessionFixture(nil)

		err := fx.session.Enter(ctx, nil)

		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
		assert.Equal(t, 1, fx.navigator.matchmaking)
		assert.False(t, fx.conn.subscribed(entity.EventGameUpdate))
	})
}

func TestGameSession_ClickCell(t *testing.T) {
	ctx := context.Background()

	t.Run("Legal move is sent and drawn optimistically", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		// When: X clicks the center on an empty board
		require.NoError(t, fx.session.ClickCell(4))

		// Then: the move is submitted and shows immediately
		assert.Equal(t, []sentMessage{{
			Event:   entity.EventMakeMove,
			Payload: entity.MovePayload{Room: "r1", Position: 4},
		}}, fx.conn.emitted)

		want := entity.Board{}
		want[4] = entity.PlayerX
		assert.Equal(t, want, fx.last().Board)
		assert.Equal(t, []int{4}, fx.last().Pending)

		// And: the turn stays with the server and nothing is persisted
		assert.Equal(t, entity.PlayerX, fx.last().Turn)

		stored, err := fx.sessions.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, entity.Board{}, stored.Board)
	})

	t.Run("Occupied cells and decided games emit nothing", func(t *testing.T) {
		// Given: a board with some marks
		state := activeState()
		state.Board = entity.Board{entity.PlayerX, "", entity.PlayerO, "", entity.PlayerO, "", "", "", entity.PlayerX}
		fx := enteredSession(t, state)

		for cell := range entity.BoardSize {
			if state.Board.IsEmpty(cell) {
				continue
			}

			before := fx.last()

			// When: clicking a filled cell
			err := fx.session.ClickCell(cell)

			// Then: it is rejected without side effects
			require.ErrorIs(t, err, apperror.ErrCellOccupied)
			assert.Equal(t, before, fx.session.View())
		}

		// Given: the game is decided
		fx.conn.fire(entity.EventGameUpdate, `{"Turn":"O","board":["X",null,"O",null,"O",null,null,null,"X"],"winner":"O"}`)

		for cell := range entity.BoardSize {
			require.ErrorIs(t, fx.session.ClickCell(cell), apperror.ErrGameFinished)
		}

		assert.Empty(t, fx.conn.emitted)
	})

	t.Run("Out of range cell is rejected", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		require.ErrorIs(t, fx.session.ClickCell(9), apperror.ErrInvalidCell)
		require.ErrorIs(t, fx.session.ClickCell(-1), apperror.ErrInvalidCell)
		assert.Empty(t, fx.conn.emitted)
	})

	t.Run("Click out of turn shows the wait indicator for three seconds", func(t *testing.T) {
		state := activeState()
		state.Turn = entity.PlayerO
		fx := enteredSession(t, state)

		// When: X clicks while O is to move
		err := fx.session.ClickCell(0)

		// Then: nothing is sent and the indicator shows
		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Empty(t, fx.conn.emitted)
		assert.True(t, fx.last().WaitingForTurn)
		assert.Equal(t, entity.Board{}, fx.last().Board)

		fx.scheduler.Advance(3 * time.Second)

		assert.False(t, fx.last().WaitingForTurn)
	})

	t.Run("Another click out of turn restarts the countdown", func(t *testing.T) {
		state := activeState()
		state.Turn = entity.PlayerO
		fx := enteredSession(t, state)

		require.ErrorIs(t, fx.session.ClickCell(0), apperror.ErrNotYourTurn)
		fx.scheduler.Advance(2 * time.Second)
		require.ErrorIs(t, fx.session.ClickCell(1), apperror.ErrNotYourTurn)

		assert.Equal(t, 1, fx.scheduler.pending())

		fx.scheduler.Advance(2 * time.Second)
		assert.True(t, fx.last().WaitingForTurn)

		fx.scheduler.Advance(time.Second)
		assert.False(t, fx.last().WaitingForTurn)
	})

	t.Run("Failed emit leaves the board untouched", func(t *testing.T) {
		fx := enteredSession(t, activeState())
		fx.conn.emitErr = errStorageDown

		require.ErrorIs(t, fx.session.ClickCell(4), errStorageDown)
		assert.Empty(t, fx.session.View().Pending)
	})
}

func TestGameSession_GameUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("Server push overwrites the optimistic state", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		// Given: two optimistic moves
		require.NoError(t, fx.session.ClickCell(2))
		require.NoError(t, fx.session.ClickCell(4))

		// When: the server confirms only the center
		fx.conn.fire(entity.EventGameUpdate, `{"Turn":"O","board":[null,null,null,null,"X",null,null,null,null],"winner":null}`)

		// Then: local state matches the push exactly
		want := entity.Board{}
		want[4] = entity.PlayerX

		view := fx.last()
		assert.Equal(t, want, view.Board)
		assert.Equal(t, entity.PlayerO, view.Turn)
		assert.Empty(t, view.Pending)
		assert.Equal(t, PhaseActive, view.Phase)

		// And: the confirmed state is persisted
		stored, err := fx.sessions.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Board)
		assert.Equal(t, entity.PlayerO, stored.Turn)
	})

	t.Run("Undecodable push is ignored", func(t *testing.T) {
		fx := enteredSession(t, activeState())
		views := len(fx.views)

		fx.conn.fire(entity.EventGameUpdate, `{"Turn":"O","board":[1,2]}`)

		assert.Len(t, fx.views, views)
		assert.Equal(t, entity.PlayerX, fx.session.View().Turn)
	})

	t.Run("Push with a null board still records the winner", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		fx.conn.fire(entity.EventGameUpdate, `{"Turn":"O","board":null,"winner":"O"}`)

		assert.Equal(t, entity.PlayerO, fx.last().Winner)
		assert.Equal(t, PhaseOpponentWon, fx.last().Phase)
		assert.Equal(t, entity.Board{}, fx.last().Board)
	})

	t.Run("Push with an unknown winner is ignored", func(t *testing.T) {
		fx := enteredSession(t, activeState())
		views := len(fx.views)

		fx.conn.fire(entity.EventGameUpdate, `{"Turn":"O","board":[null,null,null,null,null,null,null,null,null],"winner":"Z"}`)

		assert.Len(t, fx.views, views)
		assert.Equal(t, PhaseActive, fx.session.View().Phase)

		stored, err := fx.sessions.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, stored.Winner)
	})

	t.Run("Outcome texts follow the winner", func(t *testing.T) {
		tests := []struct {
			winner string
			phase  GamePhase
			text   string
		}{
			{winner: entity.PlayerX, phase: PhaseWon, text: "You Won!"},
			{winner: entity.PlayerO, phase: PhaseOpponentWon, text: "Opponent Won!"},
			{winner: entity.Draw, phase: PhaseDraw, text: "Game Draw!"},
		}

		for _, tt := range tests {
			fx := enteredSession(t, activeState())

			fx.conn.fire(entity.EventGameUpdate, `{"Turn":"O","board":[null,null,null,null,null,null,null,null,null],"winner":"`+tt.winner+`"}`)

			assert.Equal(t, tt.phase, fx.last().Phase)
			assert.Equal(t, tt.text, fx.last().Outcome)
			assert.Empty(t, fx.last().TurnText)
		}
	})
}

func TestGameSession_Exit(t *testing.T) {
	ctx := context.Background()

	t.Run("Draw then exit clears the session", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		// When: the server declares a draw
		fx.conn.fire(entity.EventGameUpdate, `{"winner":"draw"}`)

		// Then: the outcome is shown
		assert.Equal(t, "Game Draw!", fx.last().Outcome)

		// When: the user exits
		require.NoError(t, fx.session.Exit(ctx))

		// Then: the snapshot is gone and matchmaking opens
		_, err := fx.sessions.Load(ctx)
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
		assert.Equal(t, 1, fx.navigator.matchmaking)
		assert.Equal(t, PhaseTerminated, fx.last().Phase)
	})

	t.Run("Exit is refused while the game runs", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		require.ErrorIs(t, fx.session.Exit(ctx), apperror.ErrExitUnavailable)
		assert.Zero(t, fx.navigator.matchmaking)
	})

	t.Run("Exit still navigates when clearing fails", func(t *testing.T) {
		sessions := &mockSessionRepo{}
		finished := activeState()
		finished.Winner = entity.PlayerX

		sessions.On("Load", mock.Anything).Return(finished, nil).Once()
		sessions.On("Clear", mock.Anything).Return(errStorageDown).Once()

		fx := newSessionFixture(sessions)
		require.NoError(t, fx.session.Enter(ctx, nil))

		require.NoError(t, fx.session.Exit(ctx))

		assert.Equal(t, 1, fx.navigator.matchmaking)
		sessions.AssertExpectations(t)
	})
}

func TestGameSession_PlayerDisconnected(t *testing.T) {
	ctx := context.Background()

	t.Run("Notice then automatic return to matchmaking after three seconds", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		// When: the opponent leaves
		fx.conn.fire(entity.EventPlayerDisconnected, "")

		// Then: the notice shows
		assert.True(t, fx.last().OpponentDisconnected)
		assert.Equal(t, PhaseOpponentDisconnected, fx.last().Phase)

		fx.scheduler.Advance(3*time.Second - time.Millisecond)
		assert.Zero(t, fx.navigator.matchmaking)

		// When: the notice expires
		fx.scheduler.Advance(time.Millisecond)

		// Then: the session is cleared without user action
		_, err := fx.sessions.Load(ctx)
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
		assert.Equal(t, 1, fx.navigator.matchmaking)
		assert.False(t, fx.last().OpponentDisconnected)
	})

	t.Run("Duplicate notices do not re-arm the timer", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		fx.conn.fire(entity.EventPlayerDisconnected, "")
		fx.scheduler.Advance(2 * time.Second)
		fx.conn.fire(entity.EventPlayerDisconnected, "")

		assert.Equal(t, 1, fx.scheduler.pending())

		fx.scheduler.Advance(time.Second)
		assert.Equal(t, 1, fx.navigator.matchmaking)
	})

	t.Run("Pushes after the opponent left are ignored", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		fx.conn.fire(entity.EventPlayerDisconnected, "")
		fx.conn.fire(entity.EventGameUpdate, `{"Turn":"O","board":["O",null,null,null,null,null,null,null,null],"winner":null}`)

		assert.Equal(t, entity.Board{}, fx.last().Board)
		require.ErrorIs(t, fx.session.ClickCell(4), apperror.ErrSessionTerminated)
	})
}

func TestGameSession_Disconnect(t *testing.T) {
	t.Run("Reconnects while the game is undecided", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		fx.conn.fire(entity.EventDisconnect, `"transport close"`)

		assert.Equal(t, 1, fx.conn.connects)
	})

	t.Run("Stays offline once a winner is recorded after subscribing", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		// Given: the game is decided after the handlers were registered
		fx.conn.fire(entity.EventGameUpdate, `{"Turn":"O","board":["X","X","X",null,"O","O",null,null,null],"winner":"X"}`)

		// When: the connection drops
		fx.conn.fire(entity.EventDisconnect, `"io server disconnect"`)

		// Then: no reconnection is attempted
		assert.Zero(t, fx.conn.connects)
	})
}

func TestGameSession_Reconnect(t *testing.T) {
	t.Run("Failed reconnect shows a notice and the next click retries", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		// Given: the connection drops mid-match
		fx.conn.connected = false
		fx.conn.fire(entity.EventDisconnect, `"transport close"`)

		require.Equal(t, 1, fx.conn.connects)
		assert.True(t, fx.last().ConnectionLost)

		// And: the reconnect fails
		fx.conn.fire(entity.EventConnectError, `"dial tcp: connection refused"`)
		assert.True(t, fx.last().ConnectionLost)

		// When: the user clicks a cell
		require.NoError(t, fx.session.ClickCell(4))

		// Then: a new connection is attempted and the move is queued
		assert.Equal(t, 2, fx.conn.connects)
		assert.Equal(t, []int{4}, fx.last().Pending)

		// When: that attempt fails as well
		fx.conn.fire(entity.EventConnectError, `"dial tcp: connection refused"`)

		// Then: the queued move is no longer drawn
		assert.Empty(t, fx.last().Pending)
		assert.Equal(t, entity.Board{}, fx.last().Board)
		assert.True(t, fx.last().ConnectionLost)
		assert.Equal(t, "Your Turn", fx.last().TurnText)

		// When: a later attempt succeeds
		fx.conn.connected = true
		fx.conn.fire(entity.EventConnect, "")

		// Then: the notice is cleared and play continues
		assert.False(t, fx.last().ConnectionLost)
		require.NoError(t, fx.session.ClickCell(4))
		assert.Equal(t, 2, fx.conn.connects)
		assert.Len(t, fx.conn.emitted, 2)
	})
}

func TestGameSession_Close(t *testing.T) {
	t.Run("Pending timers never fire after close", func(t *testing.T) {
		fx := enteredSession(t, activeState())

		fx.conn.fire(entity.EventPlayerDisconnected, "")
		views := len(fx.views)

		// When: the view is torn down before the notice expires
		fx.session.Close()
		fx.scheduler.Advance(10 * time.Second)

		// Then: nothing happens afterwards
		assert.Len(t, fx.views, views)
		assert.Zero(t, fx.navigator.matchmaking)
		assert.False(t, fx.conn.subscribed(entity.EventGameUpdate))
		assert.False(t, fx.conn.subscribed(entity.EventDisconnect))
		assert.False(t, fx.conn.subscribed(entity.EventConnectError))
	})
}
