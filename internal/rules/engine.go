package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Game is one live rules-engine instance backing a session. It owns move
// legality, turn and terminal detection, and state/history serialization;
// it knows nothing about clocks, players, or transport.
type Game interface {
	// ApplyMove validates and applies a move given in coordinate form.
	// A nil move with error means the move is illegal in this position.
	ApplyMove(from, to, promotion string) (*Move, error)
	TurnToMove() string
	IsTerminal() bool
	// Terminal reports the winner color ("" on draws) and reason once
	// IsTerminal is true.
	Terminal() (winner, reason string)
	State() string
	History() []string
}

// Move is the accepted-move report handed back to the orchestrator.
type Move struct {
	From      string
	To        string
	Promotion string
	SAN       string
	State     string
}

type chessGame struct {
	g   *nchess.Game
	san []string
}

// NewGame starts a game from the standard initial position.
func NewGame() Game {
	return &chessGame{g: nchess.NewGame()}
}

// Load restores a game from a FEN token. History prior to the token is not
// recoverable and starts empty.
func Load(state string) (Game, error) {
	fen, err := nchess.FEN(strings.TrimSpace(state))
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return &chessGame{g: nchess.NewGame(fen)}, nil
}

func (c *chessGame) ApplyMove(from, to, promotion string) (*Move, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if from == "" || to == "" {
		return nil, fmt.Errorf("empty move")
	}

	// Coordinate input maps onto UCI. A promotion square without an
	// explicit piece promotes to a queen, matching common client behavior.
	candidates := []string{from + to}
	if promotion != "" {
		candidates = []string{from + to + promotion}
	} else {
		candidates = append(candidates, from+to+"q")
	}

	pos := c.g.Position()
	notation := nchess.UCINotation{}
	for _, uci := range candidates {
		mv, err := notation.Decode(pos, uci)
		if err != nil {
			continue
		}
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		if err := c.g.Move(mv, nil); err != nil {
			continue
		}
		c.san = append(c.san, san)
		return &Move{
			From:      from,
			To:        to,
			Promotion: promotion,
			SAN:       san,
			State:     c.g.FEN(),
		}, nil
	}
	return nil, fmt.Errorf("illegal move %s%s", from, to)
}

func (c *chessGame) TurnToMove() string {
	if c.g.Position().Turn() == nchess.White {
		return "white"
	}
	return "black"
}

func (c *chessGame) IsTerminal() bool {
	return c.g.Outcome() != nchess.NoOutcome
}

func (c *chessGame) Terminal() (string, string) {
	switch c.g.Outcome() {
	case nchess.WhiteWon:
		return "white", reasonFromMethod(c.g.Method())
	case nchess.BlackWon:
		return "black", reasonFromMethod(c.g.Method())
	case nchess.Draw:
		return "", reasonFromMethod(c.g.Method())
	default:
		return "", ""
	}
}

func (c *chessGame) State() string { return c.g.FEN() }

func (c *chessGame) History() []string {
	return append([]string(nil), c.san...)
}

func reasonFromMethod(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return "threefold repetition"
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return "fifty-move rule"
	case nchess.InsufficientMaterial:
		return "insufficient material"
	default:
		return "draw"
	}
}
