// Package console is a line-oriented front end: it prints every view the
// client produces and turns typed lines into commands.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/usecase"
)

const help = "commands: x | o | r (join), 0-8 (move), exit"

// CommandHandler executes one parsed command.
type CommandHandler func(ctx context.Context, cmd usecase.Command) error

type Console struct {
	logger *slog.Logger

	mu   sync.Mutex
	out  io.Writer
	last string
}

func New(logger *slog.Logger, out io.Writer) *Console {
	return &Console{
		logger: logger.With("component", "console"),
		out:    out,
	}
}

func (that *Console) ShowMatchmaking(view usecase.MatchmakingView) {
	var b strings.Builder

	b.WriteString("== matchmaking ==\n")

	switch {
	case view.ConnectionError:
		b.WriteString("Unable to connect to the server. Pick a symbol to retry.\n")
	case view.Searching:
		fmt.Fprintf(&b, "Searching for an opponent as %s...\n", view.Symbol)
	case view.State == usecase.MatchmakingSearching:
		fmt.Fprintf(&b, "Still waiting for an opponent as %s.\n", view.Symbol)
	case view.State == usecase.MatchmakingMatched:
		b.WriteString("Opponent found!\n")
	default:
		b.WriteString("Choose X, O or R for random.\n")
	}

	that.render(b.String())
}

func (that *Console) ShowGame(view usecase.GameView) {
	var b strings.Builder

	fmt.Fprintf(&b, "== room %s, you are %s ==\n", view.Room, view.Symbol)
	b.WriteString(renderBoard(view.Board))

	switch {
	case view.Phase == usecase.PhaseTerminated:
		b.WriteString("Leaving the game.\n")
	case view.OpponentDisconnected:
		b.WriteString("Your opponent disconnected. Returning to matchmaking...\n")
	case view.Outcome != "":
		fmt.Fprintf(&b, "%s Type exit to play again.\n", view.Outcome)
	default:
		b.WriteString(view.TurnText + "\n")
	}

	if view.ConnectionLost {
		b.WriteString("Connection lost. Make a move to retry.\n")
	}

	if view.WaitingForTurn {
		b.WriteString("Wait for your turn!\n")
	}

	that.render(b.String())
}

// Run - reads commands line by line until the input ends or ctx is canceled.
func (that *Console) Run(ctx context.Context, in io.Reader, handle CommandHandler) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			that.print(fmt.Sprintf("%v\n%s\n", err, help))
			continue
		}

		if err = handle(ctx, cmd); err != nil {
			that.report(err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	return nil
}

// ParseCommand - turns a typed line into a command.
func ParseCommand(line string) (usecase.Command, error) {
	fields := strings.Fields(strings.ToUpper(line))
	if len(fields) == 0 {
		return usecase.Command{}, apperror.ErrUnknownInput
	}

	word := fields[0]
	if (word == "JOIN" || word == "MOVE") && len(fields) == 2 {
		word = fields[1]
	}

	switch word {
	case entity.PlayerX, entity.PlayerO, entity.PlayerRandom:
		return usecase.Command{Kind: usecase.CommandSelect, Symbol: word}, nil
	case "EXIT":
		return usecase.Command{Kind: usecase.CommandExit}, nil
	}

	cell, err := strconv.Atoi(word)
	if err != nil {
		return usecase.Command{}, fmt.Errorf("%w: %q", apperror.ErrUnknownInput, line)
	}

	return usecase.Command{Kind: usecase.CommandMove, Cell: cell}, nil
}

func (that *Console) report(err error) {
	switch {
	case errors.Is(err, apperror.ErrNotYourTurn):
		// the wait indicator is already on screen
	case errors.Is(err, apperror.ErrCellOccupied),
		errors.Is(err, apperror.ErrInvalidCell),
		errors.Is(err, apperror.ErrGameFinished),
		errors.Is(err, apperror.ErrExitUnavailable),
		errors.Is(err, apperror.ErrInvalidSymbol),
		errors.Is(err, apperror.ErrWrongView):
		that.print(err.Error() + "\n")
	default:
		that.logger.Error("command failed", "error", err)
		that.print(err.Error() + "\n")
	}
}

// render skips a view identical to the previously rendered one.
func (that *Console) render(text string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if text == that.last {
		return
	}

	that.last = text
	that.writeLocked(text)
}

func (that *Console) print(text string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.writeLocked(text)
}

func (that *Console) writeLocked(text string) {
	if _, err := io.WriteString(that.out, text); err != nil {
		that.logger.Error("failed to write to console", "error", err)
	}
}

func renderBoard(board entity.Board) string {
	var b strings.Builder

	for row := range 3 {
		for col := range 3 {
			cell := board[row*3+col]
			if cell == entity.EmptyCell {
				cell = strconv.Itoa(row*3 + col)
			}

			b.WriteString(" " + cell)
		}

		b.WriteString("\n")
	}

	return b.String()
}
