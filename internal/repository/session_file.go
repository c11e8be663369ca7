package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

type fileSession struct {
	logger *slog.Logger
	path   string

	mu sync.Mutex
}

// NewFileSessionRepository stores the snapshot as a single JSON file at path.
func NewFileSessionRepository(logger *slog.Logger, path string) SessionRepository {
	return &fileSession{
		logger: logger.With("component", "session", "driver", "file"),
		path:   path,
	}
}

// Save - replaces the snapshot through a temporary file and a rename, so readers never see a partial write.
func (that *fileSession) Save(ctx context.Context, state *entity.GameState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	data, err := encodeSnapshot(state)
	if err != nil {
		return err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	dir := filepath.Dir(that.path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp session file: %w", err)
	}

	if err = os.Rename(tmp.Name(), that.path); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}

	return nil
}

func (that *fileSession) Load(ctx context.Context) (*entity.GameState, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	that.mu.Lock()
	data, err := os.ReadFile(that.path)
	that.mu.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperror.ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	return decodeSnapshot(that.logger, data)
}

func (that *fileSession) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if err := os.Remove(that.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	return nil
}
