package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/tictactoe-client/internal/usecase"
)

type stateSource interface {
	Snapshot(ctx context.Context) (usecase.RouteView, error)
}

type stateHandler struct {
	logger *slog.Logger
	source stateSource
}

// ServeHTTP - reports the active view and its current state as JSON.
func (that *stateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "State")

	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	view, err := that.source.Snapshot(r.Context())
	if err != nil {
		log.Warn("failed to read state", "error", err)
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err = json.NewEncoder(w).Encode(view); err != nil {
		log.Error("failed to write state", "error", err)
	}
}
