package coordinator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RajanDhamala/evalcoord/uci"
)

const (
	defaultMultiPV      = 3
	defaultLineMoveTime = time.Second
	defaultGameMoveTime = time.Second
)

// Config wires the coordinator to its collaborators. Channel and Positions
// are required; the rest have defaults.
type Config struct {
	Channel   Channel
	Positions Positions
	Notifier  Notifier
	Game      GameObserver
	Training  Training
	Session   Session
	UI        UIThread
	Line      ActiveLine

	Logger  zerolog.Logger
	Metrics *Metrics

	MultiPV      int
	LineMoveTime time.Duration
	GameMoveTime time.Duration
	// ViableMoveCP widens engine game move choice to every candidate within
	// this many centipawns of the best. Zero always plays the best move.
	ViableMoveCP int

	// Intn and Now default to math/rand and time.Now.
	Intn func(n int) int
	Now  func() time.Time
}

// Coordinator correlates engine output with evaluation requests and routes
// completions to the evaluation context that asked for them.
type Coordinator struct {
	channel   Channel
	positions Positions
	notifier  Notifier
	game      GameObserver
	training  Training
	session   Session
	ui        UIThread

	log     zerolog.Logger
	metrics *Metrics

	multiPV      int
	lineMoveTime time.Duration
	gameMoveTime time.Duration
	viableMoveCP int
	intn         func(int) int

	candidates Candidates

	mu            sync.RWMutex
	mode          uci.EvaluationMode
	learning      LearningContext
	suspended     uci.EvaluationMode
	singleNode    bool
	line          ActiveLine
	sweepIndex    int
	evaluated     Node
	evaluatedTree int
	requestedAt   time.Time
	watch         stopwatch

	lastMu         sync.Mutex
	lastCandidates []Candidate
	lastNode       Node
	engineName     string
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Channel == nil || cfg.Positions == nil {
		return nil, ErrMissingCollaborator
	}

	c := &Coordinator{
		channel:      cfg.Channel,
		positions:    cfg.Positions,
		notifier:     cfg.Notifier,
		game:         cfg.Game,
		training:     cfg.Training,
		session:      cfg.Session,
		ui:           cfg.UI,
		metrics:      cfg.Metrics,
		multiPV:      cfg.MultiPV,
		lineMoveTime: cfg.LineMoveTime,
		gameMoveTime: cfg.GameMoveTime,
		viableMoveCP: cfg.ViableMoveCP,
		intn:         cfg.Intn,
		mode:         uci.ModeIdle,
		suspended:    uci.ModeIdle,
		learning:     ContextManualReview,
		line:         cfg.Line,
		sweepIndex:   -1,
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.game == nil {
		c.game = nopGame{}
	}
	if c.training == nil {
		c.training = noTraining{}
	}
	if c.session == nil {
		c.session = alwaysLoaded{}
	}
	if c.ui == nil {
		c.ui = Immediate
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if c.multiPV <= 0 {
		c.multiPV = defaultMultiPV
	}
	if c.lineMoveTime <= 0 {
		c.lineMoveTime = defaultLineMoveTime
	}
	if c.gameMoveTime <= 0 {
		c.gameMoveTime = defaultGameMoveTime
	}
	if c.viableMoveCP < 0 {
		c.viableMoveCP = 0
	}
	if c.intn == nil {
		c.intn = rand.Intn
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	c.watch = stopwatch{now: now}
	c.log = cfg.Logger.With().
		Str("component", "coordinator").
		Str("session", uuid.NewString()).
		Logger()
	return c, nil
}

// HandleLine is the engine line handler. It runs on the engine read
// goroutine and never panics.
func (c *Coordinator) HandleLine(line string) {
	env, payload := uci.Decode(line)
	defer func() {
		if r := recover(); r != nil {
			c.metrics.panics.Inc()
			c.log.Error().
				Interface("panic", r).
				Int("tree", env.TreeID).
				Int("node", env.NodeID).
				Str("line", line).
				Msg("engine line handling failed")
		}
	}()

	event := uci.ParseLine(payload)
	c.metrics.lines.WithLabelValues(event.Kind.String()).Inc()

	switch event.Kind {
	case uci.EventIDName:
		c.setEngineName(event.Name)
	case uci.EventInfo:
		c.handleInfo(env, event.Info)
	case uci.EventBestMove:
		c.handleBestMove(env, event.BestMove)
	default:
		c.log.Debug().Str("line", payload).Msg("unrecognized engine line")
	}
}

func (c *Coordinator) handleInfo(env uci.Envelope, info uci.Info) {
	if env.Correlated() {
		if !c.isEvaluated(env) {
			c.metrics.stale.Inc()
			c.log.Debug().Int("tree", env.TreeID).Int("node", env.NodeID).Msg("info for superseded search")
			return
		}
		node, ok := c.positions.ResolveNode(env.TreeID, env.NodeID)
		if !ok {
			c.metrics.stale.Inc()
			c.log.Debug().Int("tree", env.TreeID).Int("node", env.NodeID).Msg("info for unknown node")
			return
		}
		c.setLastNode(node)
	}
	c.ApplyInfo(info)
}

// ApplyInfo merges an info line into the candidate list. It returns false
// when the line was dropped by the processing guard.
func (c *Coordinator) ApplyInfo(info uci.Info) bool {
	if !c.candidates.Apply(info) {
		c.metrics.infoDropped.Inc()
		return false
	}
	return true
}

// ClearCandidates empties the candidate list. Without force it does nothing
// during an engine game, whose move is picked from the list on completion.
func (c *Coordinator) ClearCandidates(force bool) {
	if !force && c.Mode() == uci.ModeEngineGame {
		return
	}
	c.candidates.reset()
}

// Candidates returns a copy of the live candidate list.
func (c *Coordinator) Candidates() []Candidate {
	return c.candidates.Snapshot()
}

func (c *Coordinator) Best() (Candidate, bool) {
	return c.candidates.Best()
}

// LastCandidates returns the list consumed by the most recent completion.
func (c *Coordinator) LastCandidates() []Candidate {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return append([]Candidate(nil), c.lastCandidates...)
}

// LastMessageNode is the node of the most recent correlated engine message.
func (c *Coordinator) LastMessageNode() Node {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.lastNode
}

// EngineName is the name the engine reported with "id name".
func (c *Coordinator) EngineName() string {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.engineName
}

func (c *Coordinator) setEngineName(name string) {
	c.lastMu.Lock()
	c.engineName = name
	c.lastMu.Unlock()
	c.log.Info().Str("engine", name).Msg("engine identified")
}

func (c *Coordinator) setLastNode(node Node) {
	c.lastMu.Lock()
	c.lastNode = node
	c.lastMu.Unlock()
}

func (c *Coordinator) setLastCandidates(list []Candidate) {
	c.lastMu.Lock()
	c.lastCandidates = list
	c.lastMu.Unlock()
}

func (c *Coordinator) post(fn func()) {
	c.ui.Post(fn)
}
