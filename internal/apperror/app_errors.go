package apperror

import "errors"

var (
	ErrGameFinished  = errors.New("game is already finished")
	ErrNotYourTurn   = errors.New("it's not your turn")
	ErrCellOccupied  = errors.New("cell is already occupied")
	ErrInvalidCell   = errors.New("invalid cell index")
	ErrInvalidSymbol = errors.New("invalid symbol")

	ErrInvalidGameState  = errors.New("invalid game state")
	ErrSessionNotFound   = errors.New("session not found")
	ErrExitUnavailable   = errors.New("exit is available only after the game is decided")
	ErrSessionTerminated = errors.New("session is terminated")

	ErrFlowClosed   = errors.New("flow is closed")
	ErrWrongView    = errors.New("command is not available in the current view")
	ErrUnknownInput = errors.New("unknown command")
)
