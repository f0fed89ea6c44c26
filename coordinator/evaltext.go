package coordinator

import (
	"fmt"

	"github.com/notnil/chess"
)

// EvaluationText renders a candidate score from White's point of view:
// "+0.35", "-1.20", "0.00", "#" when the side to move is mated, and
// "+#3" or "-#3" for a forced mate.
func EvaluationText(c Candidate, turn chess.Color) string {
	if c.IsMate {
		if c.MateIn == 0 {
			return "#"
		}
		moves := c.MateIn
		if turn == chess.Black {
			moves = -moves
		}
		if moves > 0 {
			return fmt.Sprintf("+#%d", moves)
		}
		return fmt.Sprintf("-#%d", -moves)
	}

	cp := c.ScoreCP
	if turn == chess.Black {
		cp = -cp
	}
	text := fmt.Sprintf("%.2f", float64(cp)/100)
	if cp > 0 {
		text = "+" + text
	}
	return text
}

// sideToMove reads the active color of fen. Unparseable positions count as
// White to move.
func sideToMove(fen string) (chess.Color, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return chess.White, err
	}
	return chess.NewGame(opt).Position().Turn(), nil
}
