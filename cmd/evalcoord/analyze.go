package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RajanDhamala/evalcoord/coordinator"
	"github.com/RajanDhamala/evalcoord/workbook"
)

var (
	startFEN string
	moveList string
	duration time.Duration
)

var errNoMoves = errors.New("--moves must play at least one move; the start position itself is never evaluated")

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyse the position after a move list until the duration runs out",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newSession(cfg, cmd.OutOrStdout(), os.Stderr)
		if err != nil {
			return err
		}
		return s.run(cmd.Context(), s.analyze)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{analyzeCmd, lineCmd, playCmd} {
		cmd.Flags().StringVar(&startFEN, "fen", workbook.StartFEN, "start position")
		cmd.Flags().StringVar(&moveList, "moves", "", "moves in UCI notation, separated by spaces or commas")
	}
	analyzeCmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to analyse")
}

// openLine builds a tree from the flags and plays the move list into it.
func (s *session) openLine(requireMoves bool) (*workbook.Tree, *workbook.Line, error) {
	moves := splitMoves(moveList)
	if requireMoves && len(moves) == 0 {
		return nil, nil, errNoMoves
	}
	tree, err := s.book.NewTree(startFEN)
	if err != nil {
		return nil, nil, err
	}
	line, err := tree.PlayLine(tree.Root(), moves)
	if err != nil {
		return nil, nil, err
	}
	return tree, line, nil
}

func (s *session) analyze(ctx context.Context) error {
	tree, line, err := s.openLine(true)
	if err != nil {
		return err
	}
	nodes := line.Nodes()
	node := nodes[len(nodes)-1]

	err = s.do(ctx, func() error {
		s.coord.SetActiveLine(line)
		return s.coord.StartContinuous(node, tree.ID())
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "analysing %s with %s\n", node.FEN(), s.coord.EngineName())

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	var last []coordinator.Candidate
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			last = s.coord.Candidates()
			if len(last) > 0 {
				if best := last[0]; best.Depth > 0 {
					fmt.Fprintf(s.out, "depth %d  %s  %s\n",
						best.Depth, coordinator.EvaluationText(best, node.Turn()), best.PV)
				}
			}
		case <-deadline.C:
			if current := s.coord.Candidates(); len(current) > 0 {
				last = current
			}
			if err := s.do(ctx, s.coord.Stop); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "\n%s after %s\n", node.FEN(), line.Moves())
			if len(last) == 0 {
				fmt.Fprintln(s.out, "  no evaluation")
				return nil
			}
			s.printCandidates(last, node)
			return nil
		}
	}
}
