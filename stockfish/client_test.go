package stockfish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RajanDhamala/evalcoord/uci"
)

// fakeStarter hands out pipe engines and remembers their fakes.
type fakeStarter struct {
	mu     sync.Mutex
	fakes  []*fakeEngine
	failed int
}

func (s *fakeStarter) start(ctx context.Context, cfg validatedConfig, handler LineHandler) (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed > 0 {
		s.failed--
		return nil, errors.New("binary missing")
	}
	engine, fake, err := pipeEngine(ctx, cfg, handler)
	if err != nil {
		return nil, err
	}
	s.fakes = append(s.fakes, fake)
	return engine, nil
}

func (s *fakeStarter) fake(i int) *fakeEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fakes[i]
}

func newTestClient(t *testing.T, starter *fakeStarter) (*Client, chan string) {
	t.Helper()

	cfg := testConfig(time.Second)
	cfg.maxRestarts = 1
	client := &Client{cfg: cfg, start: starter.start}

	received := make(chan string, 64)
	require.NoError(t, client.Start(context.Background(), func(line string) { received <- line }))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = client.Close(ctx)
	})
	return client, received
}

func TestClientNotReadyBeforeStart(t *testing.T) {
	client := &Client{cfg: testConfig(time.Second)}

	assert.False(t, client.Ready())
	assert.ErrorIs(t, client.SendGo(GoRequest{FEN: startFEN, Command: "go"}), ErrEngineNotReady)
	assert.ErrorIs(t, client.Stop(false), ErrEngineNotReady)
}

func TestClientRetriesFailedStart(t *testing.T) {
	starter := &fakeStarter{failed: 1}
	client, _ := newTestClient(t, starter)

	assert.True(t, client.Ready())
	assert.Zero(t, client.Restarts())
}

func TestClientRestartsDeadEngineOnSend(t *testing.T) {
	starter := &fakeStarter{}
	client, received := newTestClient(t, starter)
	first := client.Engine()

	starter.fake(0).crash()
	require.Eventually(t, func() bool { return !first.Alive() }, time.Second, 5*time.Millisecond)
	assert.False(t, client.Ready())

	env := uci.Envelope{TreeID: 0, NodeID: 3, Mode: uci.ModeContinuous}
	require.NoError(t, client.SendGo(GoRequest{FEN: startFEN, MultiPV: 1, Command: uci.Encode(env, "go")}))

	assert.True(t, client.Ready())
	assert.Equal(t, 1, client.Restarts())
	assert.NotSame(t, first, client.Engine())

	second := starter.fake(1)
	second.skipUntil(t, "go")
	second.out <- "bestmove e2e4"

	deadline := time.After(time.Second)
	for {
		select {
		case line := <-received:
			if line == "tree=0 node=3 mode=1 bestmove e2e4" {
				return
			}
		case <-deadline:
			t.Fatalf("bestmove from restarted engine not delivered")
		}
	}
}

func TestClientEnsureRunningLeavesLiveEngine(t *testing.T) {
	starter := &fakeStarter{}
	client, _ := newTestClient(t, starter)
	engine := client.Engine()

	require.NoError(t, client.EnsureRunning())
	assert.Same(t, engine, client.Engine())

	require.NoError(t, client.Restart())
	assert.NotSame(t, engine, client.Engine())
	assert.Equal(t, 1, client.Restarts())
}

func TestClientClosedRejectsStart(t *testing.T) {
	client := &Client{cfg: testConfig(time.Second), start: (&fakeStarter{}).start}
	require.NoError(t, client.Close(context.Background()))
	assert.ErrorIs(t, client.Start(context.Background(), nil), ErrClientClosed)
}
