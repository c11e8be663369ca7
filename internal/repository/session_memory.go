package repository

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

// memorySession keeps the encoded snapshot, so it decodes exactly like the durable drivers.
type memorySession struct {
	logger *slog.Logger

	mu   sync.Mutex
	data []byte
}

func NewMemorySessionRepository(logger *slog.Logger) SessionRepository {
	return &memorySession{
		logger: logger.With("component", "session", "driver", "memory"),
	}
}

func (that *memorySession) Save(_ context.Context, state *entity.GameState) error {
	data, err := encodeSnapshot(state)
	if err != nil {
		return err
	}

	that.mu.Lock()
	that.data = data
	that.mu.Unlock()

	return nil
}

func (that *memorySession) Load(_ context.Context) (*entity.GameState, error) {
	that.mu.Lock()
	data := that.data
	that.mu.Unlock()

	if data == nil {
		return nil, apperror.ErrSessionNotFound
	}

	return decodeSnapshot(that.logger, data)
}

func (that *memorySession) Clear(_ context.Context) error {
	that.mu.Lock()
	that.data = nil
	that.mu.Unlock()

	return nil
}
