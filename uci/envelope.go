package uci

import (
	"strconv"
	"strings"
)

// Correlation prefix tags.
const (
	DelayedTag = "delayed:"
	TreeIDTag  = "tree="
	NodeIDTag  = "node="
	ModeTag    = "mode="
)

// Envelope ties a protocol line to the tree node and mode that requested it.
// A value of -1 in TreeID or NodeID means "no match".
type Envelope struct {
	TreeID  int
	NodeID  int
	Mode    EvaluationMode
	Delayed bool
}

// Unsolicited is the envelope of lines that do not answer a request.
var Unsolicited = Envelope{TreeID: -1, NodeID: -1, Mode: ModeIdle}

// Correlated reports whether the envelope can be matched to a node.
func (e Envelope) Correlated() bool {
	return e.TreeID >= 0 && e.NodeID >= 0
}

// Encode prefixes command with the envelope.
func Encode(env Envelope, command string) string {
	var b strings.Builder
	if env.Delayed {
		b.WriteString(DelayedTag)
		b.WriteByte(' ')
	}
	b.WriteString(TreeIDTag)
	b.WriteString(strconv.Itoa(env.TreeID))
	b.WriteByte(' ')
	b.WriteString(NodeIDTag)
	b.WriteString(strconv.Itoa(env.NodeID))
	b.WriteByte(' ')
	b.WriteString(ModeTag)
	b.WriteString(strconv.Itoa(int(env.Mode)))
	b.WriteByte(' ')
	b.WriteString(command)
	return b.String()
}

// WithDelayed marks an already encoded line as delayed.
func WithDelayed(line string) string {
	if strings.HasPrefix(line, DelayedTag) {
		return line
	}
	return DelayedTag + " " + line
}

// Decode splits a line into its envelope and the wrapped protocol line.
// It never fails: unparsable ids come back as -1 and lines without the
// tree tag are returned unchanged as unsolicited.
func Decode(line string) (Envelope, string) {
	env := Unsolicited
	rest := line
	if strings.HasPrefix(rest, DelayedTag) {
		env.Delayed = true
		rest = strings.TrimPrefix(rest[len(DelayedTag):], " ")
	}
	if !strings.HasPrefix(rest, TreeIDTag) {
		return env, rest
	}

	boundary := nthIndexByte(rest, ' ', 3)
	head, payload := rest, ""
	if boundary >= 0 {
		head, payload = rest[:boundary], rest[boundary+1:]
	}

	env.TreeID, env.NodeID, env.Mode = -1, -1, ModeInvalid
	for _, token := range strings.Split(head, " ") {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		n := parseID(value)
		switch key + "=" {
		case TreeIDTag:
			env.TreeID = n
		case NodeIDTag:
			env.NodeID = n
		case ModeTag:
			env.Mode = EvaluationMode(n)
			if !env.Mode.Valid() {
				env.Mode = ModeInvalid
			}
		}
	}
	return env, payload
}

func parseID(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return n
}

func nthIndexByte(s string, c byte, n int) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			n--
			if n == 0 {
				return i
			}
		}
	}
	return -1
}
