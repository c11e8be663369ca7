package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

const DefaultSessionKey = "gameState"

// SessionRepository keeps the snapshot of the current match across restarts.
// Load reports apperror.ErrSessionNotFound both when nothing is stored and
// when the stored value cannot be used.
type SessionRepository interface {
	Save(ctx context.Context, state *entity.GameState) error
	Load(ctx context.Context) (*entity.GameState, error)
	Clear(ctx context.Context) error
}

func encodeSnapshot(state *entity.GameState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("could not marshal game state: %w", err)
	}

	return data, nil
}

// decodeSnapshot treats unparsable or inconsistent snapshots as absent.
func decodeSnapshot(log *slog.Logger, data []byte) (*entity.GameState, error) {
	var state entity.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn("ignoring corrupted session snapshot", "error", err)
		return nil, apperror.ErrSessionNotFound
	}

	if err := state.Validate(); err != nil {
		log.Warn("ignoring invalid session snapshot", "error", err)
		return nil, apperror.ErrSessionNotFound
	}

	return &state, nil
}
