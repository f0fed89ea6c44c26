package stockfish

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultHashMB          = 16
	defaultMaxMultiPV      = 5
	maxAllowedMultiPV      = 256
	defaultStartTimeout    = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultStoppingTimeout = 500 * time.Millisecond
	defaultMaxRestarts     = 1
)

type validatedConfig struct {
	binaryPath      string
	threads         int
	hashMB          int
	maxMultiPV      int
	options         []Option
	startTimeout    time.Duration
	shutdownTimeout time.Duration
	stoppingTimeout time.Duration
	maxRestarts     int
	logger          zerolog.Logger
}

func validateConfig(cfg Config) (validatedConfig, error) {
	cpuCount := runtime.NumCPU()
	if cpuCount < 1 {
		cpuCount = 1
	}

	threads := cfg.Threads
	if threads < 0 {
		return validatedConfig{}, fmt.Errorf("threads must be >= 0")
	}
	if threads == 0 {
		threads = 1
	}
	if !cfg.AllowUnsafeCPUOvercommit && threads > cpuCount {
		return validatedConfig{}, fmt.Errorf("threads %d exceeds CPU count %d", threads, cpuCount)
	}

	hashMB := cfg.HashMB
	if hashMB < 0 {
		return validatedConfig{}, fmt.Errorf("hash must be >= 0 MB")
	}
	if hashMB == 0 {
		hashMB = defaultHashMB
	}

	maxRestarts := cfg.MaxRestarts
	if maxRestarts < 0 {
		return validatedConfig{}, fmt.Errorf("max restarts must be >= 0")
	}
	if maxRestarts == 0 {
		maxRestarts = defaultMaxRestarts
	}

	maxMultiPV := cfg.MaxMultiPV
	if maxMultiPV < 0 {
		return validatedConfig{}, fmt.Errorf("max multipv must be >= 0")
	}
	if maxMultiPV == 0 {
		maxMultiPV = defaultMaxMultiPV
	}
	if maxMultiPV > maxAllowedMultiPV {
		return validatedConfig{}, fmt.Errorf("max multipv must be <= %d", maxAllowedMultiPV)
	}

	for _, opt := range cfg.Options {
		if strings.TrimSpace(opt.Name) == "" {
			return validatedConfig{}, fmt.Errorf("engine option name must not be empty")
		}
		if strings.ContainsAny(opt.Name+opt.Value, "\r\n") {
			return validatedConfig{}, fmt.Errorf("engine option %q must be single-line", opt.Name)
		}
	}

	startTimeout := cfg.StartTimeout
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	stoppingTimeout := cfg.StoppingTimeout
	if stoppingTimeout <= 0 {
		stoppingTimeout = defaultStoppingTimeout
	}

	binaryPath, err := resolveBinaryPath(cfg.BinaryPath)
	if err != nil {
		return validatedConfig{}, err
	}

	return validatedConfig{
		binaryPath:      binaryPath,
		threads:         threads,
		hashMB:          hashMB,
		maxMultiPV:      maxMultiPV,
		options:         append([]Option(nil), cfg.Options...),
		startTimeout:    startTimeout,
		shutdownTimeout: shutdownTimeout,
		stoppingTimeout: stoppingTimeout,
		maxRestarts:     maxRestarts,
		logger:          cfg.Logger.With().Str("component", "stockfish").Logger(),
	}, nil
}

func resolveBinaryPath(configuredPath string) (string, error) {
	trimmed := strings.TrimSpace(configuredPath)
	if trimmed != "" {
		if found, err := exec.LookPath(trimmed); err == nil {
			return found, nil
		}
	}

	if found, err := exec.LookPath("stockfish"); err == nil {
		return found, nil
	}

	if trimmed == "" {
		return "", fmt.Errorf("stockfish binary not found in PATH")
	}
	return "", fmt.Errorf("stockfish binary not found at %q and default lookup failed", trimmed)
}

func closeEngine(engine *Engine, timeout time.Duration) error {
	if engine == nil {
		return nil
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), timeout)
	defer closeCancel()
	return engine.Close(closeCtx)
}

func normalizeFEN(fen string) (string, error) {
	trimmed := strings.TrimSpace(fen)
	if trimmed == "" {
		return "", fmt.Errorf("fen must not be empty")
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", fmt.Errorf("fen must be single-line")
	}
	return trimmed, nil
}
