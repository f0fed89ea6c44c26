package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/RajanDhamala/evalcoord/uci"
)

var lineCmd = &cobra.Command{
	Use:   "line",
	Short: "Evaluate every move of a line for the configured line move time",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newSession(cfg, cmd.OutOrStdout(), os.Stderr)
		if err != nil {
			return err
		}
		return s.run(cmd.Context(), s.sweep)
	},
}

func (s *session) sweep(ctx context.Context) error {
	tree, line, err := s.openLine(true)
	if err != nil {
		return err
	}
	err = s.do(ctx, func() error {
		s.coord.SetActiveLine(line)
		return s.coord.StartLine(1)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "sweeping %d moves of tree %d, %s per move\n",
		line.Len()-1, tree.ID(), s.cfg.Evaluation.LineMoveTime)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-ctx.Done():
			_ = s.do(context.Background(), s.coord.Stop)
			return ctx.Err()
		case ev := <-s.evaluations:
			fmt.Fprintf(s.out, "%-6s %s\n", ev.node.Move(), ev.text)
		case <-ticker.C:
			done = s.coord.Mode() == uci.ModeIdle
		}
	}
	for drained := false; !drained; {
		select {
		case ev := <-s.evaluations:
			fmt.Fprintf(s.out, "%-6s %s\n", ev.node.Move(), ev.text)
		default:
			drained = true
		}
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nply\tmove\teval")
	for i, node := range line.Nodes()[1:] {
		eval := node.Evaluation()
		if eval == "" {
			eval = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, node.Move(), eval)
	}
	return tw.Flush()
}
