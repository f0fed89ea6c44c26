package workbook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/notnil/chess"

	"github.com/RajanDhamala/evalcoord/coordinator"
)

// Workbook holds the open trees. It resolves the tree and node ids carried
// by engine messages back to positions.
type Workbook struct {
	mu     sync.RWMutex
	trees  map[int]*Tree
	nextID int
}

func New() *Workbook {
	return &Workbook{trees: make(map[int]*Tree)}
}

// NewTree opens a tree rooted at fen, or the initial position when fen is
// empty.
func (w *Workbook) NewTree(fen string) (*Tree, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tree, err := newTree(w.nextID, fen)
	if err != nil {
		return nil, err
	}
	w.trees[tree.id] = tree
	w.nextID++
	return tree, nil
}

func (w *Workbook) Tree(id int) (*Tree, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	tree, ok := w.trees[id]
	return tree, ok
}

// CloseTree drops a tree. Its node ids stop resolving.
func (w *Workbook) CloseTree(id int) {
	w.mu.Lock()
	delete(w.trees, id)
	w.mu.Unlock()
}

func (w *Workbook) TreeIDs() []int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]int, 0, len(w.trees))
	for id := range w.trees {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Loaded reports whether any tree is open.
func (w *Workbook) Loaded() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.trees) > 0
}

func (w *Workbook) ResolveNode(treeID, nodeID int) (coordinator.Node, bool) {
	tree, ok := w.Tree(treeID)
	if !ok {
		return nil, false
	}
	node, ok := tree.Node(nodeID)
	if !ok {
		return nil, false
	}
	return node, true
}

func (w *Workbook) Position(node coordinator.Node) string {
	n, err := w.own(node)
	if err != nil {
		return ""
	}
	return n.fen
}

// ApplyBestMove plays move from node, reusing an existing child.
func (w *Workbook) ApplyBestMove(node coordinator.Node, move string) (coordinator.Node, error) {
	n, err := w.own(node)
	if err != nil {
		return nil, err
	}
	child, err := n.tree.Play(n, move)
	if err != nil {
		return nil, err
	}
	return child, nil
}

func (w *Workbook) IsCheckmate(fen string) bool {
	return status(fen) == chess.Checkmate
}

func (w *Workbook) IsStalemate(fen string) bool {
	return status(fen) == chess.Stalemate
}

// StoreEvaluation keeps the evaluation text on the node.
func (w *Workbook) StoreEvaluation(node coordinator.Node, text string) {
	if n, err := w.own(node); err == nil {
		n.tree.setEvaluation(n, text)
	}
}

func (w *Workbook) own(node coordinator.Node) (*Node, error) {
	n, ok := node.(*Node)
	if !ok || n == nil {
		return nil, fmt.Errorf("%w: %T", ErrForeignNode, node)
	}
	if tree, ok := w.Tree(n.tree.id); !ok || tree != n.tree {
		return nil, fmt.Errorf("%w: tree %d is closed", ErrForeignNode, n.tree.id)
	}
	return n, nil
}

var (
	_ coordinator.Positions = (*Workbook)(nil)
	_ coordinator.Session   = (*Workbook)(nil)
)
