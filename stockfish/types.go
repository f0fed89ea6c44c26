package stockfish

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrEngineStopped  = errors.New("stockfish engine is not running")
	ErrEngineNotReady = errors.New("stockfish engine is not ready")
	ErrInvalidCommand = errors.New("stockfish command must be a go command")
)

// Option is an extra "setoption" pair sent during the handshake.
type Option struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type Config struct {
	BinaryPath               string
	Threads                  int
	HashMB                   int
	MaxMultiPV               int
	Options                  []Option
	StartTimeout             time.Duration
	ShutdownTimeout          time.Duration
	StoppingTimeout          time.Duration
	MaxRestarts              int
	AllowUnsafeCPUOvercommit bool
	Logger                   zerolog.Logger
}

// State of the engine process as seen by the channel.
type State int

const (
	StateNotReady State = iota
	StateIdle
	StateCalculating
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateNotReady:
		return "not-ready"
	case StateIdle:
		return "idle"
	case StateCalculating:
		return "calculating"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// GoRequest asks the engine to analyse FEN. Command is a correlation-prefixed
// go command; the prefix is stripped before the command reaches the engine
// and put back on every line the search produces.
type GoRequest struct {
	FEN     string
	MultiPV int
	Command string
}

// LineHandler receives engine output on the engine's read goroutine.
type LineHandler func(line string)

type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("stockfish %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
