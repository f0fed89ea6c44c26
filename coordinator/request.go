package coordinator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/RajanDhamala/evalcoord/stockfish"
	"github.com/RajanDhamala/evalcoord/uci"
)

// Request describes one evaluation. FEN and MultiPV default to the node's
// position and the configured line count. A zero MoveTime searches until
// stopped.
type Request struct {
	Mode     uci.EvaluationMode
	Node     Node
	TreeID   int
	FEN      string
	MultiPV  int
	MoveTime time.Duration

	singleNode bool
}

// RequestEvaluation sends a correlated go command. The position is shown to
// the user before the command reaches the engine.
func (c *Coordinator) RequestEvaluation(req Request) error {
	if !c.channel.Ready() {
		c.metrics.refused.WithLabelValues("engine").Inc()
		c.notifier.Alert(msgEngineUnavailable)
		return ErrEngineUnavailable
	}
	if !c.session.Loaded() {
		c.metrics.refused.WithLabelValues("session").Inc()
		c.notifier.Alert(msgNoSession)
		return ErrNoSession
	}
	if req.Node == nil || req.Node.IsRoot() {
		c.metrics.refused.WithLabelValues("root").Inc()
		return ErrRootNode
	}

	fen := req.FEN
	if fen == "" {
		fen = c.positions.Position(req.Node)
	}
	multiPV := req.MultiPV
	if multiPV <= 0 {
		multiPV = c.multiPV
	}

	c.ClearCandidates(false)
	c.setEvaluated(req.Node, req.TreeID, req.singleNode)
	c.notifier.PositionShown(req.Node)

	env := uci.Envelope{TreeID: req.TreeID, NodeID: req.Node.NodeID(), Mode: req.Mode}
	err := c.channel.SendGo(stockfish.GoRequest{
		FEN:     fen,
		MultiPV: multiPV,
		Command: uci.Encode(env, goCommand(req.MoveTime)),
	})
	if err != nil {
		return fmt.Errorf("request evaluation of node %d: %w", env.NodeID, err)
	}
	c.metrics.requests.WithLabelValues(req.Mode.String()).Inc()
	c.log.Debug().
		Int("tree", env.TreeID).
		Int("node", env.NodeID).
		Stringer("mode", env.Mode).
		Dur("movetime", req.MoveTime).
		Msg("evaluation requested")
	return nil
}

func goCommand(moveTime time.Duration) string {
	if moveTime <= 0 {
		return uci.CmdGo
	}
	ms := moveTime.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return uci.CmdGoMoveTime + " " + strconv.FormatInt(ms, 10)
}

// StartContinuous analyses node until the mode changes.
func (c *Coordinator) StartContinuous(node Node, treeID int) error {
	if err := c.ChangeCurrentMode(uci.ModeContinuous); err != nil {
		return err
	}
	err := c.RequestEvaluation(Request{Mode: uci.ModeContinuous, Node: node, TreeID: treeID})
	if err != nil {
		_ = c.ChangeCurrentMode(uci.ModeIdle)
	}
	return err
}

// StartLine evaluates the active line from startIndex to its end, one node
// per line move time. The root is skipped.
func (c *Coordinator) StartLine(startIndex int) error {
	line := c.ActiveLine()
	if line == nil || line.Len() == 0 {
		return ErrNoActiveLine
	}
	if startIndex < 0 {
		startIndex = 0
	}
	node, ok := line.NodeAt(startIndex)
	if !ok {
		return fmt.Errorf("%w: index %d", ErrUnknownNode, startIndex)
	}
	if node.IsRoot() {
		startIndex++
		if node, ok = line.NodeAt(startIndex); !ok {
			return ErrRootNode
		}
	}

	if err := c.ChangeCurrentMode(uci.ModeLine); err != nil {
		return err
	}
	c.setSweepIndex(startIndex)
	err := c.RequestEvaluation(Request{
		Mode:     uci.ModeLine,
		Node:     node,
		TreeID:   line.TreeID(),
		MoveTime: c.lineMoveTime,
	})
	if err != nil {
		_ = c.ChangeCurrentMode(uci.ModeIdle)
	}
	return err
}

// AdvanceLineEvaluation requests the next node of a line sweep. A failure
// ends the sweep.
func (c *Coordinator) AdvanceLineEvaluation(node Node, treeID int) error {
	if c.Mode() != uci.ModeLine {
		return nil
	}
	if line := c.ActiveLine(); line != nil {
		c.setSweepIndex(line.IndexOf(node))
	}
	err := c.RequestEvaluation(Request{
		Mode:     uci.ModeLine,
		Node:     node,
		TreeID:   treeID,
		MoveTime: c.lineMoveTime,
	})
	if err != nil {
		_ = c.ChangeCurrentMode(uci.ModeIdle)
	}
	return err
}

// SweepIndex is the active line index under evaluation, or -1.
func (c *Coordinator) SweepIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sweepIndex
}

// RequestEngineMove asks the engine to play from node in a game against the
// user.
func (c *Coordinator) RequestEngineMove(node Node, treeID int) error {
	if c.Mode() != uci.ModeEngineGame {
		if err := c.ChangeCurrentMode(uci.ModeEngineGame); err != nil {
			return err
		}
	} else {
		c.mu.Lock()
		c.watch.restart()
		c.mu.Unlock()
	}
	c.ClearCandidates(true)
	err := c.RequestEvaluation(Request{
		Mode:     uci.ModeEngineGame,
		Node:     node,
		TreeID:   treeID,
		MoveTime: c.gameMoveTime,
	})
	if err != nil {
		_ = c.ChangeCurrentMode(uci.ModeIdle)
	}
	return err
}

// RequestTrainingEvaluation evaluates a single training node. The search
// budget follows the current mode and the mode itself is left alone.
func (c *Coordinator) RequestTrainingEvaluation(node Node, treeID int) error {
	req := Request{Node: node, TreeID: treeID, singleNode: true}
	switch c.Mode() {
	case uci.ModeEngineGame:
		req.Mode = uci.ModeEngineGame
		req.MoveTime = c.gameMoveTime
	case uci.ModeLine:
		req.Mode = uci.ModeLine
		req.MoveTime = c.lineMoveTime
	default:
		req.Mode = uci.ModeContinuous
	}
	return c.RequestEvaluation(req)
}

// Stop ends any evaluation and returns to Idle.
func (c *Coordinator) Stop() error {
	return c.ChangeCurrentMode(uci.ModeIdle)
}
