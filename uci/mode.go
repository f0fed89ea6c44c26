package uci

import "strconv"

// EvaluationMode identifies the evaluation context a request belongs to.
// The numeric value is what travels in the correlation envelope.
type EvaluationMode int

const (
	ModeInvalid    EvaluationMode = -1
	ModeIdle       EvaluationMode = 0
	ModeContinuous EvaluationMode = 1
	ModeLine       EvaluationMode = 2
	ModeEngineGame EvaluationMode = 3
)

func (m EvaluationMode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeContinuous:
		return "continuous"
	case ModeLine:
		return "line"
	case ModeEngineGame:
		return "engine-game"
	case ModeInvalid:
		return "invalid"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Valid reports whether m is one of the known modes.
func (m EvaluationMode) Valid() bool {
	return m >= ModeIdle && m <= ModeEngineGame
}
