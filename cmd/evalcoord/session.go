package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/RajanDhamala/evalcoord/config"
	"github.com/RajanDhamala/evalcoord/coordinator"
	"github.com/RajanDhamala/evalcoord/stockfish"
	"github.com/RajanDhamala/evalcoord/uci"
	"github.com/RajanDhamala/evalcoord/workbook"
)

var errUIStopped = errors.New("ui loop stopped")

type evaluation struct {
	node *workbook.Node
	text string
}

type engineMove struct {
	node    *workbook.Node
	outcome coordinator.GameOutcome
}

// session owns the engine, the workbook and the coordinator for one command.
// All coordinator calls run on the ui goroutine.
type session struct {
	cfg config.Config
	log zerolog.Logger
	out io.Writer

	book     *workbook.Workbook
	client   *stockfish.Client
	coord    *coordinator.Coordinator
	registry *prometheus.Registry

	posts  chan func()
	uiDone chan struct{}

	evaluations chan evaluation
	moves       chan engineMove
}

func newSession(cfg config.Config, out, logOut io.Writer) (*session, error) {
	s := &session{
		cfg:         cfg,
		log:         newLogger(cfg, logOut),
		out:         out,
		book:        workbook.New(),
		registry:    prometheus.NewRegistry(),
		posts:       make(chan func(), 64),
		uiDone:      make(chan struct{}),
		evaluations: make(chan evaluation, 64),
		moves:       make(chan engineMove, 4),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := stockfish.NewClient(cfg.Stockfish(s.log))
	if err != nil {
		return nil, err
	}
	s.client = client

	coordCfg := cfg.Coordinator(s.log)
	coordCfg.Channel = client
	coordCfg.Positions = s.book
	coordCfg.Session = s.book
	coordCfg.Notifier = consoleNotifier{s}
	coordCfg.Game = gameObserver{s}
	coordCfg.UI = coordinator.UIFunc(s.post)
	coordCfg.Metrics = coordinator.NewMetrics(s.registry)
	coord, err := coordinator.New(coordCfg)
	if err != nil {
		return nil, err
	}
	s.coord = coord
	return s, nil
}

// run starts the engine and runs body next to the ui loop and the metrics
// server. Everything stops when body returns.
func (s *session) run(ctx context.Context, body func(ctx context.Context) error) error {
	if err := s.client.Start(ctx, s.coord.HandleLine); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Engine.ShutdownTimeout)
		defer cancel()
		if err := s.client.Close(closeCtx); err != nil {
			s.log.Warn().Err(err).Msg("close engine")
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		s.uiLoop(gctx)
		return nil
	})
	if s.cfg.Metrics.Addr != "" {
		g.Go(func() error { return s.serveMetrics(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		return body(gctx)
	})
	return g.Wait()
}

func (s *session) uiLoop(ctx context.Context) {
	defer close(s.uiDone)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.posts:
			fn()
		}
	}
}

// post queues fn for the ui goroutine. After the loop has stopped posts are
// dropped.
func (s *session) post(fn func()) {
	select {
	case s.posts <- fn:
	case <-s.uiDone:
	}
}

// do runs fn on the ui goroutine and waits for its result.
func (s *session) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.posts <- func() { errc <- fn() }:
	case <-s.uiDone:
		return errUIStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-s.uiDone:
		return errUIStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: s.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.cfg.Metrics.Addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// waitIdle blocks until the coordinator is back in Idle.
func (s *session) waitIdle(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.coord.Mode() == uci.ModeIdle {
				return nil
			}
		}
	}
}

func (s *session) printCandidates(list []coordinator.Candidate, node *workbook.Node) {
	turn := node.Turn()
	for _, cand := range list {
		fmt.Fprintf(s.out, "  %d. %-7s depth %-3d %s\n",
			cand.Rank, coordinator.EvaluationText(cand, turn), cand.Depth, cand.PV)
	}
}

type consoleNotifier struct{ s *session }

func (n consoleNotifier) EvaluationUpdated(node coordinator.Node, text string) {
	n.s.book.StoreEvaluation(node, text)
	wn, ok := node.(*workbook.Node)
	if !ok {
		return
	}
	select {
	case n.s.evaluations <- evaluation{node: wn, text: text}:
	default:
		n.s.log.Debug().Int("node", node.NodeID()).Msg("evaluation event dropped")
	}
}

func (n consoleNotifier) PositionShown(node coordinator.Node) {
	n.s.log.Debug().Int("node", node.NodeID()).Str("fen", n.s.book.Position(node)).Msg("position shown")
}

func (n consoleNotifier) Alert(message string) {
	n.s.log.Error().Msg(message)
}

type gameObserver struct{ s *session }

func (g gameObserver) EngineMoved(node coordinator.Node, outcome coordinator.GameOutcome) {
	wn, ok := node.(*workbook.Node)
	if !ok {
		return
	}
	select {
	case g.s.moves <- engineMove{node: wn, outcome: outcome}:
	default:
		g.s.log.Warn().Int("node", node.NodeID()).Msg("engine move event dropped")
	}
}
