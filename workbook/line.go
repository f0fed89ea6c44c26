package workbook

import (
	"github.com/RajanDhamala/evalcoord/coordinator"
)

// Line is a root-to-leaf path through one tree. It is a snapshot: later
// edits to the tree do not change it.
type Line struct {
	treeID int
	nodes  []*Node
}

func (l *Line) TreeID() int { return l.treeID }
func (l *Line) Len() int { return len(l.nodes) }

func (l *Line) IndexOf(node coordinator.Node) int {
	if node == nil {
		return -1
	}
	for i, n := range l.nodes {
		if n.id == node.NodeID() {
			return i
		}
	}
	return -1
}

func (l *Line) NodeAt(index int) (coordinator.Node, bool) {
	if index < 0 || index >= len(l.nodes) {
		return nil, false
	}
	return l.nodes[index], true
}

func (l *Line) Nodes() []*Node {
	return append([]*Node(nil), l.nodes...)
}

// Moves returns the UCI moves played along the line.
func (l *Line) Moves() []string {
	if len(l.nodes) == 0 {
		return nil
	}
	moves := make([]string, 0, len(l.nodes)-1)
	for _, n := range l.nodes[1:] {
		moves = append(moves, n.move)
	}
	return moves
}

var _ coordinator.ActiveLine = (*Line)(nil)
