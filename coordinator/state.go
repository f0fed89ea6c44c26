package coordinator

import (
	"fmt"
	"time"

	"github.com/RajanDhamala/evalcoord/uci"
)

// LearningContext is what the user is doing with the workbook. Continuous
// and line evaluation exist only in manual review.
type LearningContext int

const (
	ContextManualReview LearningContext = iota
	ContextTraining
	ContextGameVsEngine
)

func (l LearningContext) String() string {
	switch l {
	case ContextManualReview:
		return "manual-review"
	case ContextTraining:
		return "training"
	case ContextGameVsEngine:
		return "game-vs-engine"
	}
	return fmt.Sprintf("context(%d)", int(l))
}

type stopwatch struct {
	now     func() time.Time
	started time.Time
	running bool
	elapsed time.Duration
}

func (s *stopwatch) restart() {
	s.started = s.now()
	s.elapsed = 0
	s.running = true
}

func (s *stopwatch) stop() {
	if !s.running {
		return
	}
	s.elapsed += s.now().Sub(s.started)
	s.running = false
}

func (s *stopwatch) read() time.Duration {
	if s.running {
		return s.elapsed + s.now().Sub(s.started)
	}
	return s.elapsed
}

func (c *Coordinator) Mode() uci.EvaluationMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Coordinator) LearningContext() LearningContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.learning
}

// Suspended is the manual review mode that was interrupted by the last
// engine game, or Idle.
func (c *Coordinator) Suspended() uci.EvaluationMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.suspended
}

// Elapsed is the stopwatch reading for the current line sweep or engine
// game move.
func (c *Coordinator) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watch.read()
}

// EvaluatedNode returns the node of the last request and its tree.
func (c *Coordinator) EvaluatedNode() (Node, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.evaluated, c.evaluatedTree
}

func (c *Coordinator) ActiveLine() ActiveLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.line
}

// SetActiveLine switches the displayed line. A running line sweep stops.
func (c *Coordinator) SetActiveLine(line ActiveLine) {
	c.mu.Lock()
	c.line = line
	sweeping := c.mode == uci.ModeLine
	c.mu.Unlock()
	if sweeping {
		_ = c.ChangeCurrentMode(uci.ModeIdle)
	}
}

// SetLearningContext switches the user activity. Leaving manual review stops
// continuous and line evaluation.
func (c *Coordinator) SetLearningContext(ctx LearningContext) {
	c.mu.Lock()
	prev := c.learning
	c.learning = ctx
	mode := c.mode
	c.mu.Unlock()

	c.log.Debug().Stringer("from", prev).Stringer("to", ctx).Msg("learning context changed")
	if ctx != ContextManualReview && (mode == uci.ModeContinuous || mode == uci.ModeLine) {
		_ = c.ChangeCurrentMode(uci.ModeIdle)
	}
}

// ChangeCurrentMode moves the evaluation state machine. It must be called
// from the UI thread.
func (c *Coordinator) ChangeCurrentMode(mode uci.EvaluationMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %s", ErrIllegalTransition, mode)
	}

	c.mu.Lock()
	prev := c.mode
	switch mode {
	case uci.ModeContinuous, uci.ModeLine:
		if c.learning != ContextManualReview {
			learning := c.learning
			c.mu.Unlock()
			return fmt.Errorf("%w: %s during %s", ErrIllegalTransition, mode, learning)
		}
		c.suspended = uci.ModeIdle
	case uci.ModeEngineGame:
		if prev == uci.ModeContinuous || prev == uci.ModeLine {
			c.suspended = prev
		}
	}

	c.mode = mode
	switch mode {
	case uci.ModeIdle:
		c.watch.stop()
		c.sweepIndex = -1
		c.singleNode = false
	case uci.ModeLine, uci.ModeEngineGame:
		c.watch.restart()
	}
	if mode != uci.ModeLine {
		c.sweepIndex = -1
	}
	c.mu.Unlock()

	if prev != mode {
		c.log.Debug().Stringer("from", prev).Stringer("to", mode).Msg("evaluation mode changed")
	}

	switch {
	case mode == uci.ModeIdle && prev != uci.ModeIdle:
		if err := c.channel.ClearState(); err != nil {
			c.log.Warn().Err(err).Msg("stop engine")
		}
	case mode == uci.ModeEngineGame && (prev == uci.ModeContinuous || prev == uci.ModeLine):
		if err := c.channel.Stop(true); err != nil {
			c.log.Warn().Err(err).Msg("suspend evaluation")
		}
		c.candidates.reset()
	case mode == uci.ModeEngineGame && prev != uci.ModeEngineGame:
		c.candidates.reset()
	}
	return nil
}

func (c *Coordinator) setEvaluated(node Node, treeID int, singleNode bool) {
	c.mu.Lock()
	c.evaluated = node
	c.evaluatedTree = treeID
	c.singleNode = singleNode
	c.requestedAt = c.watch.now()
	c.mu.Unlock()
}

// isEvaluated reports whether env belongs to the node of the last request.
func (c *Coordinator) isEvaluated(env uci.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.evaluated != nil && c.evaluated.NodeID() == env.NodeID && c.evaluatedTree == env.TreeID
}

func (c *Coordinator) sinceRequest() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.requestedAt.IsZero() {
		return 0
	}
	return c.watch.now().Sub(c.requestedAt)
}

func (c *Coordinator) stopWatch() {
	c.mu.Lock()
	c.watch.stop()
	c.mu.Unlock()
}

func (c *Coordinator) setSweepIndex(index int) {
	c.mu.Lock()
	c.sweepIndex = index
	c.mu.Unlock()
}

// SingleNode reports whether the last request came from training.
func (c *Coordinator) SingleNode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.singleNode
}
