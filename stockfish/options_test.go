package stockfish

import (
	"runtime"
	"testing"
	"time"
)

func TestValidateConfigDefaults(t *testing.T) {
	cfg, err := validateConfig(Config{BinaryPath: "sh"})
	if err != nil {
		t.Fatalf("validateConfig() error = %v", err)
	}
	if cfg.threads != 1 {
		t.Fatalf("threads = %d, want 1", cfg.threads)
	}
	if cfg.hashMB != 16 {
		t.Fatalf("hashMB = %d, want 16", cfg.hashMB)
	}
	if cfg.maxMultiPV != 5 {
		t.Fatalf("maxMultiPV = %d, want 5", cfg.maxMultiPV)
	}
	if cfg.maxRestarts != 1 {
		t.Fatalf("maxRestarts = %d, want 1", cfg.maxRestarts)
	}
	if cfg.stoppingTimeout != 500*time.Millisecond {
		t.Fatalf("stoppingTimeout = %v, want 500ms", cfg.stoppingTimeout)
	}
}

func TestValidateConfigRejectsCPUOvercommit(t *testing.T) {
	_, err := validateConfig(Config{
		BinaryPath: "sh",
		Threads:    runtime.NumCPU() + 1,
	})
	if err == nil {
		t.Fatalf("expected overcommit error, got nil")
	}
}

func TestValidateConfigAllowsOvercommitWhenAsked(t *testing.T) {
	cfg, err := validateConfig(Config{
		BinaryPath:               "sh",
		Threads:                  runtime.NumCPU() + 1,
		AllowUnsafeCPUOvercommit: true,
	})
	if err != nil {
		t.Fatalf("validateConfig() error = %v", err)
	}
	if cfg.threads != runtime.NumCPU()+1 {
		t.Fatalf("threads = %d", cfg.threads)
	}
}

func TestValidateConfigRejectsNegativeMaxMultiPV(t *testing.T) {
	_, err := validateConfig(Config{
		BinaryPath: "sh",
		MaxMultiPV: -1,
	})
	if err == nil {
		t.Fatalf("expected max multipv validation error, got nil")
	}
}

func TestValidateConfigRejectsBadOptions(t *testing.T) {
	_, err := validateConfig(Config{
		BinaryPath: "sh",
		Options:    []Option{{Name: " ", Value: "1"}},
	})
	if err == nil {
		t.Fatalf("expected empty option name error, got nil")
	}
	_, err = validateConfig(Config{
		BinaryPath: "sh",
		Options:    []Option{{Name: "Skill Level", Value: "3\nquit"}},
	})
	if err == nil {
		t.Fatalf("expected multi-line option error, got nil")
	}
}

func TestNormalizeFEN(t *testing.T) {
	fen, err := normalizeFEN("  rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1  ")
	if err != nil {
		t.Fatalf("normalizeFEN() error = %v", err)
	}
	if fen != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1" {
		t.Fatalf("normalizeFEN() = %q", fen)
	}
}

func TestNormalizeFENRejectsNewLine(t *testing.T) {
	_, err := normalizeFEN("8/8/8/8/8/8/8/8 w - - 0 1\nisready")
	if err == nil {
		t.Fatalf("expected newline rejection, got nil")
	}
}
