package stockfish

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/RajanDhamala/evalcoord/uci"
)

// Engine is the line-oriented channel to one UCI engine process.
//
// The engine starts NotReady and becomes Idle on "readyok". A go request
// moves it to Calculating. A second request while calculating sends "stop",
// queues the request and moves to Stopping; the bestmove of the stopped search
// is delivered with the delayed tag and the queued request is sent. If the
// bestmove never arrives the stopping watchdog forces Idle.
type Engine struct {
	cfg     validatedConfig
	log     zerolog.Logger
	handler LineHandler

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	uciOK    chan struct{}
	readyOK  chan struct{}
	exited   chan struct{}
	readDone chan struct{}

	waitErrMu sync.RWMutex
	waitErr   error

	mu                 sync.Mutex
	state              State
	current            *pendingGo
	queued             *pendingGo
	ignoreNextBestMove bool
	stopTimer          *time.Timer

	readyOnce sync.Once
	uciOnce   sync.Once
	closeOnce sync.Once
	alive     atomic.Bool
	ready     atomic.Bool
}

type pendingGo struct {
	envelope uci.Envelope
	fen      string
	multiPV  int
	command  string
}

// Start launches the engine binary and completes the UCI handshake.
func Start(ctx context.Context, cfg Config, handler LineHandler) (*Engine, error) {
	normalized, err := validateConfig(cfg)
	if err != nil {
		return nil, err
	}
	return start(ctx, normalized, handler)
}

func start(ctx context.Context, cfg validatedConfig, handler LineHandler) (*Engine, error) {
	cmd := exec.Command(cfg.binaryPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &OpError{Op: "stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &OpError{Op: "stdout pipe", Err: err}
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, &OpError{Op: "start process", Err: err}
	}

	engine := newEngine(cfg, stdin, stdout, handler)
	engine.cmd = cmd
	go engine.readLoop()
	go func() {
		err := cmd.Wait()
		engine.markDead()
		if err != nil {
			engine.setWaitErr(&OpError{Op: "wait process", Err: err})
		}
		close(engine.exited)
	}()

	startCtx, cancel := context.WithTimeout(ctx, cfg.startTimeout)
	defer cancel()
	if err := engine.bootstrap(startCtx); err != nil {
		_ = closeEngine(engine, cfg.shutdownTimeout)
		return nil, err
	}
	return engine, nil
}

func newEngine(cfg validatedConfig, stdin io.WriteCloser, stdout io.ReadCloser, handler LineHandler) *Engine {
	if handler == nil {
		handler = func(string) {}
	}
	engine := &Engine{
		cfg:      cfg,
		log:      cfg.logger,
		handler:  handler,
		stdin:    stdin,
		stdout:   stdout,
		uciOK:    make(chan struct{}),
		readyOK:  make(chan struct{}),
		exited:   make(chan struct{}),
		readDone: make(chan struct{}),
		state:    StateNotReady,
	}
	engine.alive.Store(true)
	return engine
}

func (e *Engine) bootstrap(ctx context.Context) error {
	if err := e.send(uci.CmdUCI); err != nil {
		return err
	}
	if err := e.waitFor(ctx, e.uciOK); err != nil {
		return &OpError{Op: "wait uciok", Err: err}
	}

	if err := e.send("setoption name Threads value " + strconv.Itoa(e.cfg.threads)); err != nil {
		return err
	}
	if err := e.send("setoption name Hash value " + strconv.Itoa(e.cfg.hashMB)); err != nil {
		return err
	}
	if err := e.send("setoption name Ponder value false"); err != nil {
		return err
	}
	for _, opt := range e.cfg.options {
		if err := e.send(fmt.Sprintf("setoption name %s value %s", opt.Name, opt.Value)); err != nil {
			return err
		}
	}
	if err := e.send(uci.CmdIsReady); err != nil {
		return err
	}
	if err := e.waitFor(ctx, e.readyOK); err != nil {
		return &OpError{Op: "wait readyok", Err: err}
	}
	if err := e.send(uci.CmdUCINewGame); err != nil {
		return err
	}
	e.log.Info().Str("binary", e.cfg.binaryPath).Msg("engine ready")
	return nil
}

// Ready reports whether the engine accepts go requests.
func (e *Engine) Ready() bool {
	return e.alive.Load() && e.ready.Load()
}

func (e *Engine) Alive() bool {
	return e.alive.Load()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SendGo starts a search, or queues it behind the one in progress.
// Only the latest queued request survives.
func (e *Engine) SendGo(req GoRequest) error {
	env, command := uci.Decode(strings.TrimSpace(req.Command))
	if command != uci.CmdGo && !strings.HasPrefix(command, uci.CmdGo+" ") {
		return ErrInvalidCommand
	}
	fen, err := normalizeFEN(req.FEN)
	if err != nil {
		return err
	}
	multiPV := req.MultiPV
	if multiPV <= 0 {
		multiPV = 1
	}
	if multiPV > e.cfg.maxMultiPV {
		multiPV = e.cfg.maxMultiPV
	}
	pending := &pendingGo{envelope: env, fen: fen, multiPV: multiPV, command: command}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.alive.Load() {
		return ErrEngineStopped
	}
	switch e.state {
	case StateNotReady:
		return ErrEngineNotReady
	case StateIdle:
		return e.startLocked(pending)
	case StateCalculating:
		e.queued = pending
		e.state = StateStopping
		e.armStoppingTimerLocked()
		return e.writeLocked(uci.CmdStop)
	case StateStopping:
		e.queued = pending
	}
	return nil
}

// Stop asks the engine to finish the current search. It does not wait for
// the bestmove. With ignoreNextBestMove the bestmove of the stopped search is
// swallowed instead of being delivered.
func (e *Engine) Stop(ignoreNextBestMove bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked(ignoreNextBestMove)
}

// ClearState stops any search and forgets the queued request.
func (e *Engine) ClearState() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queued = nil
	return e.stopLocked(false)
}

func (e *Engine) stopLocked(ignoreNextBestMove bool) error {
	switch e.state {
	case StateNotReady:
		return ErrEngineNotReady
	case StateIdle:
		return e.writeLocked(uci.CmdStop)
	case StateCalculating:
		e.ignoreNextBestMove = ignoreNextBestMove
		e.state = StateStopping
		e.armStoppingTimerLocked()
		return e.writeLocked(uci.CmdStop)
	case StateStopping:
		e.ignoreNextBestMove = ignoreNextBestMove
		e.log.Warn().Msg("stop requested while already stopping")
		e.armStoppingTimerLocked()
	}
	return nil
}

func (e *Engine) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var closeErr error
	e.closeOnce.Do(func() {
		_ = e.send(uci.CmdQuit)
		e.mu.Lock()
		if e.stopTimer != nil {
			e.stopTimer.Stop()
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			if e.cmd != nil && e.cmd.Process != nil {
				if killErr := e.cmd.Process.Kill(); killErr != nil {
					closeErr = &OpError{Op: "kill process", Err: killErr}
				}
				<-e.exited
			}
		case <-e.exited:
		}

		e.markDead()
		_ = e.stdin.Close()
		_ = e.stdout.Close()
	})
	return closeErr
}

// Err returns the process exit error, if any.
func (e *Engine) Err() error {
	e.waitErrMu.RLock()
	defer e.waitErrMu.RUnlock()
	return e.waitErr
}

func (e *Engine) startLocked(p *pendingGo) error {
	if err := e.writeLocked("setoption name MultiPV value " + strconv.Itoa(p.multiPV)); err != nil {
		return err
	}
	if err := e.writeLocked("position fen " + p.fen); err != nil {
		return err
	}
	if err := e.writeLocked(p.command); err != nil {
		return err
	}
	e.current = p
	e.state = StateCalculating
	e.log.Debug().
		Int("tree", p.envelope.TreeID).
		Int("node", p.envelope.NodeID).
		Stringer("mode", p.envelope.Mode).
		Str("command", p.command).
		Msg("search started")
	return nil
}

func (e *Engine) sendQueuedLocked() {
	if e.queued == nil {
		return
	}
	next := e.queued
	e.queued = nil
	if err := e.startLocked(next); err != nil {
		e.log.Error().Err(err).Int("node", next.envelope.NodeID).Msg("send queued search")
	}
}

func (e *Engine) armStoppingTimerLocked() {
	if e.stopTimer != nil {
		e.stopTimer.Stop()
	}
	e.stopTimer = time.AfterFunc(e.cfg.stoppingTimeout, e.exitStoppingState)
}

func (e *Engine) exitStoppingState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopping {
		return
	}
	e.log.Warn().Dur("timeout", e.cfg.stoppingTimeout).Msg("no bestmove after stop, forcing idle")
	e.state = StateIdle
	e.current = nil
	e.ignoreNextBestMove = false
	e.sendQueuedLocked()
}

func (e *Engine) send(command string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeLocked(command)
}

func (e *Engine) writeLocked(command string) error {
	if !e.alive.Load() {
		return ErrEngineStopped
	}
	if _, err := io.WriteString(e.stdin, command+"\n"); err != nil {
		e.markDead()
		return &OpError{Op: "write command", Err: err}
	}
	e.log.Trace().Str("command", command).Stringer("state", e.state).Msg("tx")
	return nil
}

func (e *Engine) waitFor(ctx context.Context, signal <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.readDone:
		return ErrEngineStopped
	case <-e.exited:
		if err := e.Err(); err != nil {
			return err
		}
		return ErrEngineStopped
	case <-signal:
		return nil
	}
}

func (e *Engine) readLoop() {
	defer close(e.readDone)

	scanner := bufio.NewScanner(e.stdout)
	buffer := make([]byte, 0, 64*1024)
	scanner.Buffer(buffer, 1024*1024)

	for scanner.Scan() {
		e.processLine(strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		e.log.Error().Err(err).Msg("read engine output")
	}
	e.markDead()
	if e.cmd == nil {
		close(e.exited)
	}
}

func (e *Engine) processLine(line string) {
	if line == "" || strings.Contains(line, uci.TokenCurrMove) {
		return
	}
	e.log.Trace().Str("line", line).Msg("rx")

	switch {
	case line == uci.TokenUCIOK:
		e.uciOnce.Do(func() { close(e.uciOK) })
		return
	case line == uci.TokenReadyOK:
		e.handleReadyOK()
		return
	case strings.HasPrefix(line, uci.TokenBestMove):
		if message, deliver := e.handleBestMove(line); deliver {
			e.deliver(message)
		}
		return
	}
	e.deliver(e.wrapCurrent(line))
}

func (e *Engine) handleReadyOK() {
	e.mu.Lock()
	if e.state == StateNotReady {
		e.state = StateIdle
	}
	e.mu.Unlock()
	e.ready.Store(true)
	e.readyOnce.Do(func() { close(e.readyOK) })
}

// handleBestMove completes the current search. When a newer request was
// queued the result is tagged delayed and the queued request is started.
func (e *Engine) handleBestMove(line string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	completed := e.current
	e.current = nil
	e.state = StateIdle
	if e.stopTimer != nil {
		e.stopTimer.Stop()
	}

	message := line
	if completed != nil {
		message = uci.Encode(completed.envelope, line)
		e.log.Debug().
			Int("tree", completed.envelope.TreeID).
			Int("node", completed.envelope.NodeID).
			Msg("bestmove received")
	}

	ignore := e.ignoreNextBestMove
	e.ignoreNextBestMove = false

	if e.queued != nil {
		message = uci.WithDelayed(message)
		e.sendQueuedLocked()
	}
	return message, !ignore
}

func (e *Engine) wrapCurrent(line string) string {
	e.mu.Lock()
	current := e.current
	e.mu.Unlock()
	if current == nil {
		return line
	}
	return uci.Encode(current.envelope, line)
}

func (e *Engine) deliver(line string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("line", line).Msg("line handler panicked")
		}
	}()
	e.handler(line)
}

func (e *Engine) markDead() {
	e.alive.Store(false)
	e.ready.Store(false)
}

func (e *Engine) setWaitErr(err error) {
	e.waitErrMu.Lock()
	defer e.waitErrMu.Unlock()
	e.waitErr = err
}
