package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/notnil/chess"
	"github.com/spf13/cobra"

	"github.com/RajanDhamala/evalcoord/coordinator"
	"github.com/RajanDhamala/evalcoord/workbook"
)

var engineWhite bool

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a game against the engine, moves read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newSession(cfg, cmd.OutOrStdout(), os.Stderr)
		if err != nil {
			return err
		}
		in := bufio.NewScanner(cmd.InOrStdin())
		return s.run(cmd.Context(), func(ctx context.Context) error {
			return s.play(ctx, in)
		})
	},
}

func init() {
	playCmd.Flags().BoolVar(&engineWhite, "engine-white", false, "the engine plays White")
}

func (s *session) play(ctx context.Context, in *bufio.Scanner) error {
	tree, line, err := s.openLine(false)
	if err != nil {
		return err
	}
	nodes := line.Nodes()
	node := nodes[len(nodes)-1]

	engine := chess.Black
	if engineWhite {
		engine = chess.White
	}
	if err := s.do(ctx, func() error {
		s.coord.SetLearningContext(coordinator.ContextGameVsEngine)
		return nil
	}); err != nil {
		return err
	}
	defer func() { _ = s.do(context.Background(), s.coord.Stop) }()

	for {
		if outcome := s.outcome(node); outcome != coordinator.GameOngoing {
			fmt.Fprintf(s.out, "game over: %s\n", outcome)
			return nil
		}

		if node.Turn() != engine {
			next, err := s.readMove(tree, node, in)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			node = next
			continue
		}

		if node.IsRoot() {
			return errors.New("the engine cannot move from the start position; pass --moves or let the engine play Black")
		}
		if err := s.do(ctx, func() error { return s.coord.RequestEngineMove(node, tree.ID()) }); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case moved := <-s.moves:
			if moved.outcome == coordinator.GameAborted {
				return fmt.Errorf("engine found no move from %s", moved.node.FEN())
			}
			fmt.Fprintf(s.out, "engine plays %s (%s)\n", moved.node.Move(), node.Evaluation())
			node = moved.node
			if moved.outcome != coordinator.GameOngoing {
				fmt.Fprintf(s.out, "game over: %s\n", moved.outcome)
				return nil
			}
		}
	}
}

func (s *session) outcome(node *workbook.Node) coordinator.GameOutcome {
	switch {
	case s.book.IsCheckmate(node.FEN()):
		return coordinator.GameCheckmate
	case s.book.IsStalemate(node.FEN()):
		return coordinator.GameStalemate
	}
	return coordinator.GameOngoing
}

// readMove prompts until the user enters a legal move. "quit" or end of input
// ends the game.
func (s *session) readMove(tree *workbook.Tree, node *workbook.Node, in *bufio.Scanner) (*workbook.Node, error) {
	for {
		fmt.Fprintf(s.out, "%s\nyour move: ", node.FEN())
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		move := strings.TrimSpace(in.Text())
		if move == "quit" {
			return nil, io.EOF
		}
		next, err := tree.Play(node, move)
		if err != nil {
			fmt.Fprintf(s.out, "%v\n", err)
			continue
		}
		return next, nil
	}
}
