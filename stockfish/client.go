package stockfish

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrClientClosed = errors.New("stockfish client is closed")

type startFunc func(ctx context.Context, cfg validatedConfig, handler LineHandler) (*Engine, error)

// Client keeps one engine process running for a line handler and replaces
// it when the process dies. It is created stopped so the handler's owner can
// be built around it first.
type Client struct {
	cfg   validatedConfig
	start startFunc

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	handler  LineHandler
	engine   *Engine
	restarts int
	closed   bool
}

func NewClient(cfg Config) (*Client, error) {
	normalized, err := validateConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: normalized, start: start}, nil
}

// Start launches the engine. Every engine line, including those of later
// restarts, goes to handler.
func (c *Client) Start(ctx context.Context, handler LineHandler) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.engine != nil {
		return fmt.Errorf("stockfish client already started")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.handler = handler

	engine, err := c.startEngineWithRetriesLocked()
	if err != nil {
		c.cancel()
		return err
	}
	c.engine = engine
	return nil
}

// Ready reports whether the current engine accepts go requests.
func (c *Client) Ready() bool {
	engine := c.current()
	return engine != nil && engine.Ready()
}

func (c *Client) Engine() *Engine {
	return c.current()
}

// Restarts counts engine replacements since Start.
func (c *Client) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

// SendGo forwards to the engine. A dead engine is restarted and the request
// sent once more.
func (c *Client) SendGo(req GoRequest) error {
	engine := c.current()
	if engine == nil {
		return ErrEngineNotReady
	}
	err := engine.SendGo(req)
	if err == nil || !shouldRestartEngine(err, engine) {
		return err
	}

	restarted, restartErr := c.replace(engine)
	if restartErr != nil {
		return fmt.Errorf("%w: %v", err, restartErr)
	}
	return restarted.SendGo(req)
}

func (c *Client) Stop(ignoreNextBestMove bool) error {
	engine := c.current()
	if engine == nil {
		return ErrEngineNotReady
	}
	return engine.Stop(ignoreNextBestMove)
}

func (c *Client) ClearState() error {
	engine := c.current()
	if engine == nil {
		return ErrEngineNotReady
	}
	return engine.ClearState()
}

// EnsureRunning restarts the engine if its process has died.
func (c *Client) EnsureRunning() error {
	engine := c.current()
	if engine == nil {
		return ErrEngineNotReady
	}
	if engine.Alive() {
		return nil
	}
	_, err := c.replace(engine)
	return err
}

// Restart replaces the engine unconditionally.
func (c *Client) Restart() error {
	engine := c.current()
	if engine == nil {
		return ErrEngineNotReady
	}
	_, err := c.replace(engine)
	return err
}

func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	engine := c.engine
	c.engine = nil
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if engine == nil {
		return nil
	}
	return engine.Close(ctx)
}

func (c *Client) current() *Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// replace swaps failed for a fresh engine unless another caller already did.
func (c *Client) replace(failed *Engine) (*Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if c.engine != failed && c.engine != nil {
		return c.engine, nil
	}

	_ = closeEngine(failed, c.cfg.shutdownTimeout)
	engine, err := c.startEngineWithRetriesLocked()
	if err != nil {
		c.cfg.logger.Error().Err(err).Msg("engine restart failed")
		return nil, err
	}
	c.engine = engine
	c.restarts++
	c.cfg.logger.Warn().Int("restarts", c.restarts).Msg("engine restarted")
	return engine, nil
}

func (c *Client) startEngineWithRetriesLocked() (*Engine, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.maxRestarts; attempt++ {
		if c.ctx.Err() != nil {
			return nil, ErrClientClosed
		}
		engine, err := c.start(c.ctx, c.cfg, c.handler)
		if err == nil {
			return engine, nil
		}
		c.cfg.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("engine start failed")
		lastErr = err
	}
	return nil, fmt.Errorf("engine start failed after %d attempts: %w", c.cfg.maxRestarts+1, lastErr)
}

func shouldRestartEngine(err error, engine *Engine) bool {
	if engine == nil {
		return true
	}
	if !engine.Alive() {
		return true
	}
	return errors.Is(err, ErrEngineStopped)
}
