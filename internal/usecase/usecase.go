package usecase

import (
	"context"
	"time"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/loop"
	"github.com/rocketscienceinc/tictactoe-client/internal/transport/socket"
)

type connection interface {
	Connect()
	Connected() bool
	Emit(event string, payload any) error
	On(event string, handler socket.Handler)
	Off(event string)
}

type scheduler interface {
	AfterFunc(d time.Duration, fn func()) loop.Timer
}

type sessionRepo interface {
	Save(ctx context.Context, state *entity.GameState) error
	Load(ctx context.Context) (*entity.GameState, error)
	Clear(ctx context.Context) error
}

type navigator interface {
	ToGame(handoff *entity.GameState)
	ToMatchmaking()
}

// Timings holds the lifetimes of the transient indicators.
type Timings struct {
	Search           time.Duration
	WaitTurn         time.Duration
	DisconnectNotice time.Duration
	StoreTimeout     time.Duration
}

const (
	defaultSearch           = 4 * time.Second
	defaultWaitTurn         = 3 * time.Second
	defaultDisconnectNotice = 3 * time.Second
	defaultStoreTimeout     = 2 * time.Second
)

func (that Timings) withDefaults() Timings {
	if that.Search <= 0 {
		that.Search = defaultSearch
	}

	if that.WaitTurn <= 0 {
		that.WaitTurn = defaultWaitTurn
	}

	if that.DisconnectNotice <= 0 {
		that.DisconnectNotice = defaultDisconnectNotice
	}

	if that.StoreTimeout <= 0 {
		that.StoreTimeout = defaultStoreTimeout
	}

	return that
}

func stopTimer(timer loop.Timer) {
	if timer != nil {
		timer.Stop()
	}
}
