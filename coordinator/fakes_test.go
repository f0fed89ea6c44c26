package coordinator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RajanDhamala/evalcoord/stockfish"
)

const (
	startFEN  = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	afterE4   = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	afterE5   = "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2"
	afterNf3  = "rnbqkbnr/pppp1ppp/8/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2"
	foolsMate = "rnbqkbnr/pppp1ppp/8/4p3/6P1/5P2/PPPPP2P/RNBQKBNR b KQkq g3 0 2"
	almostPat = "k7/8/2K5/1Q6/8/8/8/8 w - - 0 1"
)

// recorder keeps the order of collaborator calls across fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

type fakeNode struct {
	id   int
	root bool
	fen  string
}

func (n *fakeNode) NodeID() int { return n.id }
func (n *fakeNode) IsRoot() bool { return n.root }

// fakeTree is both the position store and the active line. Moves are
// played with a real chess library so terminal detection is genuine.
type fakeTree struct {
	rec    *recorder
	treeID int

	mu        sync.Mutex
	nodes     map[int]*fakeNode
	line      []*fakeNode
	nextID    int
	lookups   int
	applyHook func()
	panicking bool
}

func newFakeTree(rec *recorder, treeID int, fens ...string) *fakeTree {
	tree := &fakeTree{rec: rec, treeID: treeID, nodes: make(map[int]*fakeNode)}
	for i, fen := range fens {
		node := tree.addNode(fen)
		node.root = i == 0
		tree.line = append(tree.line, node)
	}
	return tree
}

func (f *fakeTree) addNode(fen string) *fakeNode {
	node := &fakeNode{id: f.nextID, fen: fen}
	f.nodes[node.id] = node
	f.nextID++
	return node
}

func (f *fakeTree) node(index int) *fakeNode {
	return f.line[index]
}

func (f *fakeTree) ResolveNode(treeID, nodeID int) (Node, bool) {
	f.mu.Lock()
	f.lookups++
	panicking := f.panicking
	node, ok := f.nodes[nodeID]
	f.mu.Unlock()
	if panicking {
		panic("tree corrupted")
	}
	if treeID != f.treeID || !ok {
		return nil, false
	}
	return node, true
}

func (f *fakeTree) Position(node Node) string {
	return node.(*fakeNode).fen
}

func (f *fakeTree) ApplyBestMove(node Node, move string) (Node, error) {
	f.rec.add("apply:%d:%s", node.NodeID(), move)
	if f.applyHook != nil {
		f.applyHook()
	}
	opt, err := chess.FEN(node.(*fakeNode).fen)
	if err != nil {
		return nil, err
	}
	game := chess.NewGame(opt)
	for _, m := range game.ValidMoves() {
		if m.String() != move {
			continue
		}
		if err := game.Move(m); err != nil {
			return nil, err
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.addNode(game.Position().String()), nil
	}
	return nil, fmt.Errorf("illegal move %s", move)
}

func (f *fakeTree) IsCheckmate(fen string) bool {
	return positionStatus(fen) == chess.Checkmate
}

func (f *fakeTree) IsStalemate(fen string) bool {
	return positionStatus(fen) == chess.Stalemate
}

func positionStatus(fen string) chess.Method {
	opt, err := chess.FEN(fen)
	if err != nil {
		return chess.NoMethod
	}
	return chess.NewGame(opt).Position().Status()
}

func (f *fakeTree) TreeID() int { return f.treeID }

func (f *fakeTree) IndexOf(node Node) int {
	for i, n := range f.line {
		if n.id == node.NodeID() {
			return i
		}
	}
	return -1
}

func (f *fakeTree) NodeAt(index int) (Node, bool) {
	if index < 0 || index >= len(f.line) {
		return nil, false
	}
	return f.line[index], true
}

func (f *fakeTree) Len() int { return len(f.line) }

type recordingChannel struct {
	rec *recorder

	mu    sync.Mutex
	ready bool
	sent  []stockfish.GoRequest
	stops []bool
	clear int
}

func (c *recordingChannel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *recordingChannel) SendGo(req stockfish.GoRequest) error {
	c.rec.add("go:%s", req.Command)
	c.mu.Lock()
	c.sent = append(c.sent, req)
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) Stop(ignore bool) error {
	c.rec.add("stop:%t", ignore)
	c.mu.Lock()
	c.stops = append(c.stops, ignore)
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) ClearState() error {
	c.rec.add("clear")
	c.mu.Lock()
	c.clear++
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, req := range c.sent {
		out = append(out, req.Command)
	}
	return out
}

type evaluationUpdate struct {
	node int
	text string
}

type recordingNotifier struct {
	rec *recorder

	mu          sync.Mutex
	evaluations []evaluationUpdate
	alerts      []string
}

func (n *recordingNotifier) EvaluationUpdated(node Node, text string) {
	n.rec.add("eval:%d:%s", node.NodeID(), text)
	n.mu.Lock()
	n.evaluations = append(n.evaluations, evaluationUpdate{node: node.NodeID(), text: text})
	n.mu.Unlock()
}

func (n *recordingNotifier) PositionShown(node Node) {
	n.rec.add("shown:%d", node.NodeID())
}

func (n *recordingNotifier) Alert(message string) {
	n.rec.add("alert")
	n.mu.Lock()
	n.alerts = append(n.alerts, message)
	n.mu.Unlock()
}

func (n *recordingNotifier) lastEvaluation() (evaluationUpdate, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.evaluations) == 0 {
		return evaluationUpdate{}, false
	}
	return n.evaluations[len(n.evaluations)-1], true
}

type gameMove struct {
	node    Node
	outcome GameOutcome
}

type recordingGame struct {
	rec   *recorder
	moves []gameMove
}

func (g *recordingGame) EngineMoved(node Node, outcome GameOutcome) {
	g.rec.add("engine-moved:%s", outcome)
	g.moves = append(g.moves, gameMove{node: node, outcome: outcome})
}

type trainingResult struct {
	node    int
	text    string
	delayed bool
}

type fakeTraining struct {
	active   bool
	finished []trainingResult
}

func (t *fakeTraining) Active() bool { return t.active }

func (t *fakeTraining) EvaluationFinished(node Node, text string, delayed bool) {
	t.finished = append(t.finished, trainingResult{node: node.NodeID(), text: text, delayed: delayed})
}

type fakeSession struct{ loaded bool }

func (s fakeSession) Loaded() bool { return s.loaded }

type harness struct {
	coord    *Coordinator
	rec      *recorder
	tree     *fakeTree
	channel  *recordingChannel
	notifier *recordingNotifier
	game     *recordingGame
	training *fakeTraining
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	rec := &recorder{}
	h := &harness{
		rec:      rec,
		tree:     newFakeTree(rec, 0, startFEN, afterE4, afterE5, afterNf3),
		channel:  &recordingChannel{rec: rec, ready: true},
		notifier: &recordingNotifier{rec: rec},
		game:     &recordingGame{rec: rec},
		training: &fakeTraining{},
	}
	cfg := Config{
		Channel:      h.channel,
		Positions:    h.tree,
		Notifier:     h.notifier,
		Game:         h.game,
		Training:     h.training,
		Line:         h.tree,
		Logger:       zerolog.Nop(),
		MultiPV:      2,
		LineMoveTime: 250 * time.Millisecond,
		GameMoveTime: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	coord, err := New(cfg)
	require.NoError(t, err)
	h.coord = coord
	return h
}

func (h *harness) feed(lines ...string) {
	for _, line := range lines {
		h.coord.HandleLine(line)
	}
}
