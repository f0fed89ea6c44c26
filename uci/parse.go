package uci

import (
	"strconv"
	"strings"
)

// Engine output tokens.
const (
	TokenIDName   = "id name"
	TokenInfo     = "info"
	TokenBestMove = "bestmove"
	TokenUCIOK    = "uciok"
	TokenReadyOK  = "readyok"
	TokenCurrMove = "currmove"
)

// Commands sent to the engine.
const (
	CmdUCI        = "uci"
	CmdIsReady    = "isready"
	CmdUCINewGame = "ucinewgame"
	CmdStop       = "stop"
	CmdQuit       = "quit"
	CmdGo         = "go"
	CmdGoMoveTime = "go movetime"
)

const pvMarker = " pv "

// EventKind classifies an engine output line.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventInfo
	EventBestMove
	EventIDName
)

func (k EventKind) String() string {
	switch k {
	case EventInfo:
		return "info"
	case EventBestMove:
		return "bestmove"
	case EventIDName:
		return "idname"
	}
	return "unrecognized"
}

// Info is a single analysis update. Absent fields are nil.
type Info struct {
	MultiPV *int
	Depth   *int
	ScoreCP *int
	Mate    *int
	PV      string
}

// BestMove is the terminal line of a search. Raw holds everything after the
// bestmove token; the ponder move is not interpreted.
type BestMove struct {
	Move string
	Raw  string
}

// Event is one parsed line of engine output.
type Event struct {
	Kind     EventKind
	Info     Info
	BestMove BestMove
	Name     string
	Line     string
}

// ParseLine classifies one engine output line.
func ParseLine(line string) Event {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, TokenIDName):
		return Event{
			Kind: EventIDName,
			Name: strings.TrimSpace(strings.TrimPrefix(trimmed, TokenIDName)),
			Line: trimmed,
		}
	case hasToken(trimmed, TokenInfo):
		return Event{Kind: EventInfo, Info: parseInfoLine(trimmed), Line: trimmed}
	case hasToken(trimmed, TokenBestMove):
		return Event{Kind: EventBestMove, BestMove: parseBestMoveLine(trimmed), Line: trimmed}
	}
	return Event{Kind: EventUnrecognized, Line: trimmed}
}

func hasToken(line, token string) bool {
	if !strings.HasPrefix(line, token) {
		return false
	}
	return len(line) == len(token) || line[len(token)] == ' '
}

func parseBestMoveLine(line string) BestMove {
	rest := strings.TrimSpace(strings.TrimPrefix(line, TokenBestMove))
	move := rest
	if idx := strings.IndexByte(rest, ' '); idx >= 0 {
		move = rest[:idx]
	}
	return BestMove{Move: move, Raw: rest}
}

// parseInfoLine pulls multipv, depth, score and pv out of an info line.
// The pv is taken verbatim from the first " pv " so move tokens are never
// mistaken for keywords.
func parseInfoLine(line string) Info {
	fields := strings.Fields(line)
	update := Info{}
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if i+1 < len(fields) {
				if multiPV, err := strconv.Atoi(fields[i+1]); err == nil {
					update.MultiPV = intPtr(multiPV)
				}
				i++
			}
		case "depth":
			if i+1 < len(fields) {
				if depth, err := strconv.Atoi(fields[i+1]); err == nil {
					update.Depth = intPtr(depth)
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				scoreType := fields[i+1]
				if value, err := strconv.Atoi(fields[i+2]); err == nil {
					if scoreType == "cp" {
						update.ScoreCP = intPtr(value)
					}
					if scoreType == "mate" {
						update.Mate = intPtr(value)
					}
				}
				i += 2
			}
		case "pv":
			if idx := strings.Index(line, pvMarker); idx >= 0 {
				update.PV = strings.TrimSpace(line[idx+len(pvMarker):])
			}
			return update
		}
	}
	return update
}

func intPtr(value int) *int {
	return &value
}
