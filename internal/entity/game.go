package entity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
)

const (
	PlayerX      = "X"
	PlayerO      = "O"
	PlayerRandom = "R"
	Draw         = "draw"

	EmptyCell = ""
	BoardSize = 9
)

var ErrInvalidBoard = errors.New("board must have exactly 9 cells")

// Board is addressed by index only, 0..8 left to right, top to bottom.
type Board [BoardSize]string

// UnmarshalJSON accepts null for an empty cell or an empty board and rejects
// boards of any other length.
func (that *Board) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*that = Board{}
		return nil
	}

	var cells []*string
	if err := json.Unmarshal(data, &cells); err != nil {
		return fmt.Errorf("failed to unmarshal board: %w", err)
	}

	if len(cells) != BoardSize {
		return fmt.Errorf("%w: got %d", ErrInvalidBoard, len(cells))
	}

	var board Board
	for i, cell := range cells {
		if cell == nil {
			continue
		}

		if *cell != EmptyCell && !IsValidSymbol(*cell) {
			return fmt.Errorf("%w: cell %d holds %q", ErrInvalidBoard, i, *cell)
		}

		board[i] = *cell
	}

	*that = board

	return nil
}

// MarshalJSON writes empty cells as null, the way the server sends them.
func (that Board) MarshalJSON() ([]byte, error) {
	cells := make([]*string, BoardSize)
	for i := range that {
		if that[i] != EmptyCell {
			cell := that[i]
			cells[i] = &cell
		}
	}

	return json.Marshal(cells)
}

func (that Board) IsEmpty(cell int) bool {
	return that[cell] == EmptyCell
}

func IsValidCell(cell int) bool {
	return cell >= 0 && cell < BoardSize
}

// IsValidSymbol reports whether s is a symbol a player can hold during a match.
func IsValidSymbol(s string) bool {
	return s == PlayerX || s == PlayerO
}

// IsValidWinner reports whether s is a winner value the server may send.
func IsValidWinner(s string) bool {
	return s == "" || s == Draw || IsValidSymbol(s)
}

// IsValidChoice reports whether s may be sent with a join request.
func IsValidChoice(s string) bool {
	return IsValidSymbol(s) || s == PlayerRandom
}

// GameState is the match snapshot delivered by the server and kept in the session store.
type GameState struct {
	Board  Board  `json:"board"`
	Turn   string `json:"Turn"`
	Symbol string `json:"symbol"`
	Room   string `json:"room"`
	Winner string `json:"winner,omitempty"`
}

// GameUpdate is the authoritative state push for an ongoing match.
type GameUpdate struct {
	Turn   string `json:"Turn"`
	Board  Board  `json:"board"`
	Winner string `json:"winner"`
}

// Validate - checks a state received from the server or read back from storage.
// A finished game may carry no turn.
func (that *GameState) Validate() error {
	switch {
	case !IsValidSymbol(that.Symbol):
		return fmt.Errorf("%w: symbol %q", apperror.ErrInvalidGameState, that.Symbol)
	case !IsValidSymbol(that.Turn) && !that.IsFinished():
		return fmt.Errorf("%w: turn %q", apperror.ErrInvalidGameState, that.Turn)
	case that.Room == "":
		return fmt.Errorf("%w: room is empty", apperror.ErrInvalidGameState)
	case !IsValidWinner(that.Winner):
		return fmt.Errorf("%w: winner %q", apperror.ErrInvalidGameState, that.Winner)
	}

	return nil
}

func (that GameUpdate) Validate() error {
	if !IsValidWinner(that.Winner) {
		return fmt.Errorf("%w: winner %q", apperror.ErrInvalidGameState, that.Winner)
	}

	return nil
}

// Apply overwrites turn, board and winner with the server's values.
func (that *GameState) Apply(update GameUpdate) {
	that.Turn = update.Turn
	that.Board = update.Board
	that.Winner = update.Winner
}

func (that *GameState) IsFinished() bool {
	return that.Winner != ""
}

func (that *GameState) IsMyTurn() bool {
	return that.Symbol != "" && that.Symbol == that.Turn
}

// CanMove - checks if this client may play the cell right now.
func (that *GameState) CanMove(cell int) error {
	if !IsValidCell(cell) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that.IsFinished() {
		return apperror.ErrGameFinished
	}

	if !that.Board.IsEmpty(cell) {
		return apperror.ErrCellOccupied
	}

	if !that.IsMyTurn() {
		return apperror.ErrNotYourTurn
	}

	return nil
}

// Outcome - derives the result of the match from this client's point of view.
func (that *GameState) Outcome() Outcome {
	switch that.Winner {
	case "":
		return OutcomeNone
	case Draw:
		return OutcomeDraw
	case that.Symbol:
		return OutcomeWon
	default:
		return OutcomeOpponentWon
	}
}

func (that *GameState) Clone() *GameState {
	clone := *that
	return &clone
}

type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeWon         Outcome = "won"
	OutcomeDraw        Outcome = "draw"
	OutcomeOpponentWon Outcome = "opponentWon"
)

func (that Outcome) Text() string {
	switch that {
	case OutcomeWon:
		return "You Won!"
	case OutcomeDraw:
		return "Game Draw!"
	case OutcomeOpponentWon:
		return "Opponent Won!"
	default:
		return ""
	}
}
