package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/loop"
	"github.com/rocketscienceinc/tictactoe-client/internal/transport/socket"
)

var errStorageDown = errors.New("storage is down")

var testTimings = Timings{
	Search:           4 * time.Second,
	WaitTurn:         3 * time.Second,
	DisconnectNotice: 3 * time.Second,
	StoreTimeout:     time.Second,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type sentMessage struct {
	Event   string
	Payload any
}

// fakeConnection runs handlers synchronously, standing in for the manager plus the loop.
type fakeConnection struct {
	connected bool
	connects  int
	emitted   []sentMessage
	emitErr   error
	handlers  map[string][]socket.Handler
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{handlers: make(map[string][]socket.Handler)}
}

func (that *fakeConnection) Connect() {
	that.connects++
}

func (that *fakeConnection) Connected() bool {
	return that.connected
}

func (that *fakeConnection) Emit(event string, payload any) error {
	if that.emitErr != nil {
		return that.emitErr
	}

	that.emitted = append(that.emitted, sentMessage{Event: event, Payload: payload})

	return nil
}

func (that *fakeConnection) On(event string, handler socket.Handler) {
	that.handlers[event] = append(that.handlers[event], handler)
}

func (that *fakeConnection) Off(event string) {
	delete(that.handlers, event)
}

func (that *fakeConnection) subscribed(event string) bool {
	return len(that.handlers[event]) > 0
}

func (that *fakeConnection) fire(event, payload string) {
	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}

	for _, handler := range slices.Clone(that.handlers[event]) {
		handler(raw)
	}
}

// manualScheduler fires timers only when the test advances time.
type manualScheduler struct {
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	due  time.Duration
	fn   func()
	done bool
}

func (that *manualTimer) Stop() bool {
	if that.done {
		return false
	}

	that.done = true

	return true
}

func (that *manualScheduler) AfterFunc(d time.Duration, fn func()) loop.Timer {
	timer := &manualTimer{due: that.now + d, fn: fn}
	that.timers = append(that.timers, timer)

	return timer
}

func (that *manualScheduler) Advance(d time.Duration) {
	target := that.now + d

	for {
		var next *manualTimer
		for _, timer := range that.timers {
			if !timer.done && timer.due <= target && (next == nil || timer.due < next.due) {
				next = timer
			}
		}

		if next == nil {
			break
		}

		that.now = next.due
		next.done = true
		next.fn()
	}

	that.now = target
}

func (that *manualScheduler) pending() int {
	count := 0
	for _, timer := range that.timers {
		if !timer.done {
			count++
		}
	}

	return count
}

type navigatorSpy struct {
	games       []*entity.GameState
	matchmaking int
}

func (that *navigatorSpy) ToGame(handoff *entity.GameState) {
	that.games = append(that.games, handoff)
}

func (that *navigatorSpy) ToMatchmaking() {
	that.matchmaking++
}

type presenterSpy struct {
	matchmaking []MatchmakingView
	games       []GameView
}

func (that *presenterSpy) ShowMatchmaking(view MatchmakingView) {
	that.matchmaking = append(that.matchmaking, view)
}

func (that *presenterSpy) ShowGame(view GameView) {
	that.games = append(that.games, view)
}

type mockSessionRepo struct {
	mock.Mock
}

func (that *mockSessionRepo) Save(ctx context.Context, state *entity.GameState) error {
	args := that.Called(ctx, state)
	return args.Error(0)
}

func (that *mockSessionRepo) Load(ctx context.Context) (*entity.GameState, error) {
	args := that.Called(ctx)
	state, _ := args.Get(0).(*entity.GameState)

	return state, args.Error(1)
}

func (that *mockSessionRepo) Clear(ctx context.Context) error {
	args := that.Called(ctx)
	return args.Error(0)
}

func activeState() *entity.GameState {
	return &entity.GameState{
		Symbol: entity.PlayerX,
		Turn:   entity.PlayerX,
		Room:   "r1",
	}
}
