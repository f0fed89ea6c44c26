package coordinator

import (
	"github.com/RajanDhamala/evalcoord/uci"
)

func (c *Coordinator) handleBestMove(env uci.Envelope, best uci.BestMove) {
	if !env.Correlated() {
		c.log.Debug().Str("move", best.Move).Msg("uncorrelated bestmove")
		return
	}
	node, ok := c.positions.ResolveNode(env.TreeID, env.NodeID)
	if !ok {
		c.metrics.stale.Inc()
		c.metrics.completions.WithLabelValues("stale").Inc()
		c.log.Info().
			Int("tree", env.TreeID).
			Int("node", env.NodeID).
			Stringer("mode", env.Mode).
			Msg("bestmove for unknown node dropped")
		return
	}
	c.setLastNode(node)
	c.complete(node, env, best)
}

// complete routes one finished search. Priority is engine game, then
// training, then manual review.
func (c *Coordinator) complete(node Node, env uci.Envelope, best uci.BestMove) {
	snapshot := c.candidates.Snapshot()
	c.setLastCandidates(snapshot)
	c.ClearCandidates(false)

	if !env.Delayed {
		c.metrics.searchTime.Observe(c.sinceRequest().Seconds())
	}

	mode := c.Mode()
	switch {
	case mode == uci.ModeEngineGame && env.Mode == uci.ModeEngineGame:
		c.metrics.completions.WithLabelValues("game").Inc()
		c.completeGameMove(node, env, best, snapshot)
	case c.training.Active():
		c.metrics.completions.WithLabelValues("training").Inc()
		c.completeTraining(node, env, snapshot)
	default:
		c.metrics.completions.WithLabelValues("review").Inc()
		c.completeManualReview(node, env, snapshot)
	}
}

func (c *Coordinator) completeGameMove(node Node, env uci.Envelope, best uci.BestMove, snapshot []Candidate) {
	if text, ok := c.evaluationText(node, snapshot); ok {
		c.post(func() { c.notifier.EvaluationUpdated(node, text) })
	}
	if env.Delayed {
		c.ClearCandidates(true)
		c.log.Debug().Int("node", env.NodeID).Msg("superseded engine move ignored")
		return
	}

	move := c.selectMove(snapshot, best.Move)
	if move == "" || move == "(none)" {
		c.ClearCandidates(true)
		c.log.Warn().Int("node", env.NodeID).Str("bestmove", best.Raw).Msg("engine returned no move")
		c.abortGame(node)
		return
	}

	successor, err := c.positions.ApplyBestMove(node, move)
	c.ClearCandidates(true)
	if err != nil {
		c.log.Error().Err(err).Int("node", env.NodeID).Str("move", move).Msg("apply engine move")
		c.abortGame(node)
		return
	}

	outcome := GameOngoing
	fen := c.positions.Position(successor)
	switch {
	case c.positions.IsCheckmate(fen):
		outcome = GameCheckmate
	case c.positions.IsStalemate(fen):
		outcome = GameStalemate
	}
	c.stopWatch()
	c.log.Info().Int("node", successor.NodeID()).Str("move", move).Stringer("outcome", outcome).Msg("engine moved")

	c.post(func() {
		_ = c.ChangeCurrentMode(uci.ModeIdle)
		c.game.EngineMoved(successor, outcome)
	})
}

// abortGame ends an engine move that could not be played. The observer gets
// the position the engine was to move from.
func (c *Coordinator) abortGame(node Node) {
	c.stopWatch()
	c.post(func() {
		_ = c.ChangeCurrentMode(uci.ModeIdle)
		c.game.EngineMoved(node, GameAborted)
	})
}

func (c *Coordinator) completeTraining(node Node, env uci.Envelope, snapshot []Candidate) {
	text, _ := c.evaluationText(node, snapshot)
	c.post(func() {
		if text != "" {
			c.notifier.EvaluationUpdated(node, text)
		}
		c.training.EvaluationFinished(node, text, env.Delayed)
	})
}

func (c *Coordinator) completeManualReview(node Node, env uci.Envelope, snapshot []Candidate) {
	line := c.ActiveLine()
	if line == nil || line.TreeID() != env.TreeID {
		c.log.Debug().Int("tree", env.TreeID).Int("node", env.NodeID).Msg("completion outside active line")
		return
	}
	index := line.IndexOf(node)
	if index < 0 {
		c.log.Debug().Int("tree", env.TreeID).Int("node", env.NodeID).Msg("completion outside active line")
		return
	}

	if text, ok := c.evaluationText(node, snapshot); ok {
		c.post(func() { c.notifier.EvaluationUpdated(node, text) })
	}
	if env.Delayed {
		return
	}

	switch mode := c.Mode(); {
	case mode == uci.ModeLine && env.Mode == uci.ModeLine && index < line.Len()-1:
		next, ok := line.NodeAt(index + 1)
		if !ok {
			c.post(func() { _ = c.ChangeCurrentMode(uci.ModeIdle) })
			return
		}
		c.post(func() {
			if err := c.AdvanceLineEvaluation(next, env.TreeID); err != nil {
				c.log.Warn().Err(err).Int("node", next.NodeID()).Msg("advance line evaluation")
			}
		})
	case mode != uci.ModeContinuous && mode != uci.ModeIdle:
		c.post(func() { _ = c.ChangeCurrentMode(uci.ModeIdle) })
	}
}

func (c *Coordinator) evaluationText(node Node, snapshot []Candidate) (string, bool) {
	if len(snapshot) == 0 {
		return "", false
	}
	turn, err := sideToMove(c.positions.Position(node))
	if err != nil {
		c.log.Debug().Err(err).Int("node", node.NodeID()).Msg("side to move unknown")
	}
	return EvaluationText(snapshot[0], turn), true
}

// selectMove picks the engine game move. With a viable window, every
// candidate within ViableMoveCP of the best is equally likely; mates are
// always played.
func (c *Coordinator) selectMove(snapshot []Candidate, fallback string) string {
	if len(snapshot) == 0 {
		return fallback
	}
	best := snapshot[0]
	if c.viableMoveCP <= 0 || best.IsMate {
		if move := best.Move(); move != "" {
			return move
		}
		return fallback
	}

	viable := 1
	for _, cand := range snapshot[1:] {
		if cand.IsMate || cand.Move() == "" || cand.ScoreCP < best.ScoreCP-c.viableMoveCP {
			break
		}
		viable++
	}
	if move := snapshot[c.intn(viable)].Move(); move != "" {
		return move
	}
	return fallback
}
