package coordinator

import (
	"strings"
	"sync"

	"github.com/RajanDhamala/evalcoord/uci"
)

const maxCandidateRank = 256

// Candidate is one engine line. Rank is 1-based; 1 is the engine's best.
type Candidate struct {
	Rank    int
	PV      string
	Depth   int
	ScoreCP int
	IsMate  bool
	MateIn  int
}

// Move returns the first move of the principal variation.
func (c Candidate) Move() string {
	move, _, _ := strings.Cut(c.PV, " ")
	return move
}

// Candidates aggregates info lines into a ranked list.
//
// Updates go through a try-and-drop guard: an info line arriving while
// another is being applied is discarded, never queued. Readers use the list
// lock only and always get a copy.
type Candidates struct {
	guardMu    sync.Mutex
	processing bool

	mu   sync.Mutex
	list []Candidate
}

// Apply merges one parsed info line. It returns false when the line was
// dropped because another update was in progress.
func (c *Candidates) Apply(info uci.Info) bool {
	if !c.tryBegin() {
		return false
	}
	defer c.end()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case info.MultiPV != nil && (info.ScoreCP != nil || info.Mate != nil):
		rank := *info.MultiPV
		if rank < 1 || rank > maxCandidateRank {
			return true
		}
		c.growLocked(rank)
		cand := &c.list[rank-1]
		cand.PV = info.PV
		if info.Depth != nil {
			cand.Depth = *info.Depth
		}
		if info.Mate != nil {
			cand.IsMate = true
			cand.MateIn = *info.Mate
		} else {
			cand.IsMate = false
			cand.MateIn = 0
			cand.ScoreCP = *info.ScoreCP
		}
	case info.MultiPV == nil && info.Mate != nil && *info.Mate == 0:
		// side to move is checkmated
		c.growLocked(1)
		c.list[0].IsMate = true
		c.list[0].MateIn = 0
	case info.MultiPV == nil && info.ScoreCP != nil && *info.ScoreCP == 0:
		// stalemate
		c.growLocked(1)
		c.list[0].IsMate = false
		c.list[0].MateIn = 0
		c.list[0].ScoreCP = 0
	}
	return true
}

func (c *Candidates) growLocked(rank int) {
	for len(c.list) < rank {
		c.list = append(c.list, Candidate{Rank: len(c.list) + 1})
	}
}

func (c *Candidates) Snapshot() []Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.list) == 0 {
		return nil
	}
	return append([]Candidate(nil), c.list...)
}

// Len is the number of ranks held.
func (c *Candidates) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list)
}

// Best returns the rank 1 candidate.
func (c *Candidates) Best() (Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.list) == 0 {
		return Candidate{}, false
	}
	return c.list[0], true
}

func (c *Candidates) reset() {
	c.mu.Lock()
	c.list = nil
	c.mu.Unlock()
}

func (c *Candidates) tryBegin() bool {
	c.guardMu.Lock()
	defer c.guardMu.Unlock()
	if c.processing {
		return false
	}
	c.processing = true
	return true
}

func (c *Candidates) end() {
	c.guardMu.Lock()
	c.processing = false
	c.guardMu.Unlock()
}
