package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

type dbSession struct {
	logger *slog.Logger
	client *redis.Client
	key    string
}

func NewRedisSessionRepository(logger *slog.Logger, client *redis.Client, key string) SessionRepository {
	return &dbSession{
		logger: logger.With("component", "session", "driver", "redis"),
		client: client,
		key:    "session:" + key,
	}
}

func (that *dbSession) Save(ctx context.Context, state *entity.GameState) error {
	stateJSON, err := encodeSnapshot(state)
	if err != nil {
		return err
	}

	if err = that.client.Set(ctx, that.key, stateJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (that *dbSession) Load(ctx context.Context) (*entity.GameState, error) {
	response, err := that.client.Get(ctx, that.key).Bytes()

	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return decodeSnapshot(that.logger, response)
}

func (that *dbSession) Clear(ctx context.Context) error {
	if err := that.client.Del(ctx, that.key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
