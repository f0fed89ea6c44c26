package workbook

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/notnil/chess"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrInvalidFEN  = errors.New("invalid fen")
	ErrForeignNode = errors.New("node belongs to another tree")
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Node is one position in a tree. The move that led to it is empty for the
// root.
type Node struct {
	id       int
	tree     *Tree
	parent   *Node
	children []*Node
	move     string
	fen      string
	eval     string
}

func (n *Node) NodeID() int { return n.id }
func (n *Node) IsRoot() bool { return n.parent == nil }
func (n *Node) FEN() string { return n.fen }
func (n *Node) Move() string { return n.move }
func (n *Node) Parent() *Node { return n.parent }
func (n *Node) TreeID() int { return n.tree.id }

// Turn is the side to move.
func (n *Node) Turn() chess.Color {
	opt, err := chess.FEN(n.fen)
	if err != nil {
		return chess.White
	}
	return chess.NewGame(opt).Position().Turn()
}

// Evaluation is the last evaluation text stored for the node.
func (n *Node) Evaluation() string {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.eval
}

func (n *Node) Children() []*Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return append([]*Node(nil), n.children...)
}

// Tree is a variation tree rooted at one position. Node ids are unique
// within the tree and never reused.
type Tree struct {
	id int

	mu     sync.RWMutex
	root   *Node
	nodes  map[int]*Node
	nextID int
}

func newTree(id int, fen string) (*Tree, error) {
	if strings.TrimSpace(fen) == "" {
		fen = StartFEN
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	t := &Tree{id: id, nodes: make(map[int]*Node)}
	t.root = t.addLocked(nil, "", chess.NewGame(opt).Position().String())
	return t, nil
}

func (t *Tree) ID() int { return t.id }
func (t *Tree) Root() *Node { return t.root }

func (t *Tree) Node(id int) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.nodes[id]
	return node, ok
}

func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Play adds the UCI move from node and returns the child. An existing child
// with the same move is reused.
func (t *Tree) Play(from *Node, move string) (*Node, error) {
	if from == nil || from.tree != t {
		return nil, ErrForeignNode
	}

	t.mu.RLock()
	for _, child := range from.children {
		if child.move == move {
			t.mu.RUnlock()
			return child, nil
		}
	}
	t.mu.RUnlock()

	fen, err := playUCI(from.fen, move)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[from.id]; !ok {
		return nil, fmt.Errorf("%w: node %d was deleted", ErrForeignNode, from.id)
	}
	return t.addLocked(from, move, fen), nil
}

// PlayLine plays moves in sequence from node and returns the line from the
// root to the last node played.
func (t *Tree) PlayLine(from *Node, moves []string) (*Line, error) {
	node := from
	for _, move := range moves {
		next, err := t.Play(node, move)
		if err != nil {
			return nil, err
		}
		node = next
	}
	return t.LineTo(node), nil
}

// Delete removes node and its subtree. Engine results that still refer to
// the removed ids no longer resolve.
func (t *Tree) Delete(node *Node) error {
	if node == nil || node.tree != t {
		return ErrForeignNode
	}
	if node.IsRoot() {
		return fmt.Errorf("cannot delete the root")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	parent := node.parent
	for i, child := range parent.children {
		if child == node {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	t.forgetLocked(node)
	return nil
}

func (t *Tree) forgetLocked(node *Node) {
	delete(t.nodes, node.id)
	for _, child := range node.children {
		t.forgetLocked(child)
	}
}

// LineTo returns the path from the root to node.
func (t *Tree) LineTo(node *Node) *Line {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var path []*Node
	for n := node; n != nil; n = n.parent {
		path = append(path, n)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return &Line{treeID: t.id, nodes: path}
}

// MainLine follows the first child from the root.
func (t *Tree) MainLine() *Line {
	t.mu.RLock()
	node := t.root
	for len(node.children) > 0 {
		node = node.children[0]
	}
	t.mu.RUnlock()
	return t.LineTo(node)
}

func (t *Tree) addLocked(parent *Node, move, fen string) *Node {
	node := &Node{id: t.nextID, tree: t, parent: parent, move: move, fen: fen}
	t.nextID++
	t.nodes[node.id] = node
	if parent != nil {
		parent.children = append(parent.children, node)
	}
	return node
}

func (t *Tree) setEvaluation(node *Node, text string) {
	t.mu.Lock()
	node.eval = text
	t.mu.Unlock()
}

func playUCI(fen, move string) (string, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	game := chess.NewGame(opt)
	m, err := chess.UCINotation{}.Decode(game.Position(), move)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}
	if err := game.Move(m); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}
	return game.Position().String(), nil
}

func status(fen string) chess.Method {
	opt, err := chess.FEN(fen)
	if err != nil {
		return chess.NoMethod
	}
	return chess.NewGame(opt).Position().Status()
}
