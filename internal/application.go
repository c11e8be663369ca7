package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rocketscienceinc/tictactoe-client/internal/config"
	"github.com/rocketscienceinc/tictactoe-client/internal/loop"
	"github.com/rocketscienceinc/tictactoe-client/internal/repository"
	"github.com/rocketscienceinc/tictactoe-client/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-client/internal/transport/socket"
	"github.com/rocketscienceinc/tictactoe-client/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-client/transport/console"
	"github.com/rocketscienceinc/tictactoe-client/transport/rest"
)

const shutdownTimeout = 5 * time.Second

var (
	ErrAddrNotFound         = errors.New("redis address string is empty")
	ErrUnknownSessionDriver = errors.New("unknown session driver")
)

// RunApp - runs the client until a signal arrives.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	sessions, closeSessions, err := newSessionRepository(ctx, logger, &conf.Session)
	if err != nil {
		return err
	}
	defer closeSessions()

	// the loop outlives ctx so that teardown still runs on it
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	eventLoop := loop.New(clock.New(), 0)
	go eventLoop.Run(loopCtx)

	manager := socket.New(ctx, logger, eventLoop, socket.Options{
		URL:              conf.Server.URL,
		HandshakeTimeout: conf.Server.HandshakeTimeout,
		WriteTimeout:     conf.Server.WriteTimeout,
		SendBuffer:       conf.Server.SendBuffer,
	})
	defer manager.Close()

	ui := console.New(logger, os.Stdout)
	router := usecase.NewRouter(logger, manager, sessions, eventLoop, usecase.Timings{
		Search:           conf.Timers.Search,
		WaitTurn:         conf.Timers.WaitTurn,
		DisconnectNotice: conf.Timers.DisconnectNotice,
		StoreTimeout:     conf.Session.Timeout,
	}, ui)

	if err = eventLoop.Call(ctx, func() { router.Start(ctx) }); err != nil {
		return fmt.Errorf("failed to start router: %w", err)
	}

	defer func() {
		teardownCtx, cancelTeardown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelTeardown()

		if err := eventLoop.Call(teardownCtx, router.Close); err != nil {
			log.Error("failed to close router", "error", err)
		}
	}()

	// read console input
	inputErrCh := make(chan error, 1)
	go func() {
		inputErrCh <- ui.Run(ctx, os.Stdin, func(ctx context.Context, cmd usecase.Command) error {
			var cmdErr error
			if err := eventLoop.Call(ctx, func() { cmdErr = router.HandleInput(ctx, cmd) }); err != nil {
				return fmt.Errorf("failed to handle input: %w", err)
			}

			return cmdErr
		})
	}()

	// run HTTP server
	httpErrCh := make(chan error, 1)
	if conf.HTTPPort != "" {
		server := rest.NewServer(logger, conf.HTTPPort, &stateReader{loop: eventLoop, router: router})

		go func() {
			if httpErr := server.Start(); httpErr != nil {
				log.Error("HTTP server error", "error", httpErr)
				httpErrCh <- httpErr
			}
		}()

		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("could not stop HTTP server", "error", err)
			}
		}()
	}

	for {
		select {
		case err = <-httpErrCh:
			return fmt.Errorf("HTTP server error: %w", err)
		case err = <-inputErrCh:
			if err != nil {
				return fmt.Errorf("console error: %w", err)
			}

			log.Info("Console input closed, waiting for a signal")
			inputErrCh = nil
		case <-ctx.Done():
			log.Info("Application context canceled, shutting down")
			return nil
		}
	}
}

func newSessionRepository(
	ctx context.Context,
	logger *slog.Logger,
	conf *config.Session,
) (repository.SessionRepository, func(), error) {
	switch conf.Driver {
	case config.SessionDriverFile, "":
		return repository.NewFileSessionRepository(logger, conf.Path), func() {}, nil
	case config.SessionDriverMemory:
		return repository.NewMemorySessionRepository(logger), func() {}, nil
	case config.SessionDriverRedis:
		redisAddrString := conf.Redis.GetRedisAddr()
		if redisAddrString == ":" {
			return nil, nil, ErrAddrNotFound
		}

		redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString, conf.Redis.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		closeStorage := func() {
			if err := redisStorage.Close(); err != nil {
				logger.Error("could not close redis storage", "error", err)
			}
		}

		return repository.NewRedisSessionRepository(logger, redisStorage, conf.Key), closeStorage, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSessionDriver, conf.Driver)
	}
}

// stateReader reads the router's view on the event loop.
type stateReader struct {
	loop   *loop.Loop
	router *usecase.Router
}

func (that *stateReader) Snapshot(ctx context.Context) (usecase.RouteView, error) {
	var view usecase.RouteView

	if err := that.loop.Call(ctx, func() { view = that.router.Snapshot() }); err != nil {
		return usecase.RouteView{}, fmt.Errorf("failed to read state: %w", err)
	}

	return view, nil
}
