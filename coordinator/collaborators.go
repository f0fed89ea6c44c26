package coordinator

import (
	"github.com/RajanDhamala/evalcoord/stockfish"
)

// Node is an opaque handle to a position in a move tree. The coordinator
// only reads it; all changes go through Positions and Notifier.
type Node interface {
	NodeID() int
	IsRoot() bool
}

// Positions is the move tree and position codec.
type Positions interface {
	ResolveNode(treeID, nodeID int) (Node, bool)
	Position(node Node) string
	// ApplyBestMove plays a UCI move from node and returns the successor.
	ApplyBestMove(node Node, move string) (Node, error)
	IsCheckmate(fen string) bool
	IsStalemate(fen string) bool
}

// ActiveLine is the line currently displayed to the user.
type ActiveLine interface {
	TreeID() int
	// IndexOf returns -1 when node is not part of the line.
	IndexOf(node Node) int
	NodeAt(index int) (Node, bool)
	Len() int
}

// Notifier receives GUI-facing updates. Calls arrive on the UI thread.
type Notifier interface {
	EvaluationUpdated(node Node, text string)
	PositionShown(node Node)
	Alert(message string)
}

// GameOutcome is the state of a game after an engine move.
type GameOutcome int

const (
	GameOngoing GameOutcome = iota
	GameCheckmate
	GameStalemate
	// GameAborted means the engine produced no playable move.
	GameAborted
)

func (o GameOutcome) String() string {
	switch o {
	case GameCheckmate:
		return "checkmate"
	case GameStalemate:
		return "stalemate"
	case GameAborted:
		return "aborted"
	}
	return "ongoing"
}

// GameObserver is told about engine moves in a game against the user.
// GameOngoing means the game now awaits the opponent. GameAborted carries
// the node the engine failed to move from.
type GameObserver interface {
	EngineMoved(node Node, outcome GameOutcome)
}

// Training owns completions while a training session is active.
type Training interface {
	Active() bool
	EvaluationFinished(node Node, text string, delayed bool)
}

// Session reports whether a workbook is loaded.
type Session interface {
	Loaded() bool
}

// Channel is the engine connection. *stockfish.Engine implements it.
type Channel interface {
	Ready() bool
	SendGo(req stockfish.GoRequest) error
	Stop(ignoreNextBestMove bool) error
	ClearState() error
}

// UIThread runs fn on the thread that owns GUI state.
type UIThread interface {
	Post(fn func())
}

type UIFunc func(fn func())

func (f UIFunc) Post(fn func()) { f(fn) }

// Immediate runs posted functions on the calling goroutine.
var Immediate UIThread = UIFunc(func(fn func()) { fn() })

type nopNotifier struct{}

func (nopNotifier) EvaluationUpdated(Node, string) {}
func (nopNotifier) PositionShown(Node) {}
func (nopNotifier) Alert(string) {}

type nopGame struct{}

func (nopGame) EngineMoved(Node, GameOutcome) {}

type noTraining struct{}

func (noTraining) Active() bool { return false }
func (noTraining) EvaluationFinished(Node, string, bool) {}

type alwaysLoaded struct{}

func (alwaysLoaded) Loaded() bool { return true }

var _ Channel = (*stockfish.Engine)(nil)
