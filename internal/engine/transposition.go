package engine

import (
	"sync/atomic"
)

// Bound indicates the type of score stored in a transposition table entry.
type Bound uint8

const (
	BoundExact Bound = iota // Exact score
	BoundLower              // Failed high (beta cutoff)
	BoundUpper              // Failed low
)

// smpInf biases the stored score so score+smpInf is always non-negative and
// fits the 17-bit payload field (|score| never exceeds Infinity).
const smpInf = Infinity

// ttEntry is one slot of the transposition table. It is read and written
// without a lock: smpData and smpKey are stored in independent atomic words,
// and smpKey is defined as smpData XOR the position key it was written for.
// A probe recomputes testKey = position.key XOR entry.smpData and compares
// it against entry.smpKey; a writer racing with a reader between the two
// atomic stores makes that comparison fail with probability ~1/2^64, which
// is reported as a safe miss rather than a corrupted hit. Age lives outside
// the folded payload in its own atomic word and is only ever used as a
// replacement heuristic.
type ttEntry struct {
	smpKey  atomic.Uint64
	smpData atomic.Uint64
	age     atomic.Uint32
}

// TranspositionTable is a lock-free hash table for storing search results,
// shared by reference across every lazy-SMP worker.
type TranspositionTable struct {
	entries []ttEntry
	mask    uint64
	age     atomic.Uint32

	hits   atomic.Uint64
	probes atomic.Uint64
}

// NewTranspositionTable creates a transposition table sized to sizeMB
// megabytes, rounded down to a power of two entry count.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	const entrySize = 24 // two uint64 + one uint32, rounded for padding
	numEntries := (uint64(sizeMB) * 1024 * 1024) / entrySize
	numEntries = roundDownToPowerOf2(numEntries)
	if numEntries == 0 {
		numEntries = 1
	}

	return &TranspositionTable{
		entries: make([]ttEntry, numEntries),
		mask:    numEntries - 1,
	}
}

func roundDownToPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

func foldPayload(score, depth int, bound Bound) uint64 {
	return uint64(score+smpInf) | uint64(depth)<<17 | uint64(bound)<<23
}

func unfoldPayload(data uint64) (score, depth int, bound Bound) {
	score = int(data&0x1FFFF) - smpInf
	depth = int((data >> 17) & 0x3F)
	bound = Bound((data >> 23) & 0x3)
	return
}

// Probe looks up key in the table. It returns the stored score (already
// adjusted from root-relative mate distance to ply-relative), depth, bound
// and whether the slot was present and passed the XOR consistency check.
func (tt *TranspositionTable) Probe(key uint64, ply int) (score, depth int, bound Bound, ok bool) {
	tt.probes.Add(1)

	e := &tt.entries[key&tt.mask]
	smpKey := e.smpKey.Load()
	if smpKey == 0 {
		return 0, 0, 0, false
	}

	data := e.smpData.Load()
	if key^data != smpKey {
		return 0, 0, 0, false
	}

	score, depth, bound = unfoldPayload(data)
	score = AdjustScoreFromTT(score, ply)
	tt.hits.Add(1)
	return score, depth, bound, true
}

// Store writes a search result for key. score is ply-relative and is
// converted to root-relative mate distance before folding, per §4.7.
func (tt *TranspositionTable) Store(key uint64, depth, score, ply int, bound Bound) {
	e := &tt.entries[key&tt.mask]

	currentAge := tt.age.Load()
	if e.smpKey.Load() != 0 {
		_, storedDepth, _ := unfoldPayload(e.smpData.Load())
		if e.age.Load() == currentAge && depth < storedDepth {
			return
		}
	}

	data := foldPayload(AdjustScoreToTT(score, ply), depth, bound)
	smpKey := data ^ key

	e.smpData.Store(data)
	e.smpKey.Store(smpKey)
	e.age.Store(currentAge)
}

// NewSearch increments the age counter, marking the start of a new
// top-level search for replacement purposes.
func (tt *TranspositionTable) NewSearch() {
	tt.age.Add(1)
}

// Clear zeroes every slot and resets counters.
func (tt *TranspositionTable) Clear() {
	for i := range tt.entries {
		tt.entries[i].smpKey.Store(0)
		tt.entries[i].smpData.Store(0)
		tt.entries[i].age.Store(0)
	}
	tt.age.Store(0)
	tt.hits.Store(0)
	tt.probes.Store(0)
}

// HashFull returns the permille of the table occupied, sampled from the
// first 1000 slots.
func (tt *TranspositionTable) HashFull() int {
	sampleSize := 1000
	if uint64(sampleSize) > uint64(len(tt.entries)) {
		sampleSize = len(tt.entries)
	}

	used := 0
	for i := 0; i < sampleSize; i++ {
		if tt.entries[i].smpKey.Load() != 0 {
			used++
		}
	}

	return (used * 1000) / sampleSize
}

// HitRate returns the cache hit rate as a percentage.
func (tt *TranspositionTable) HitRate() float64 {
	probes := tt.probes.Load()
	if probes == 0 {
		return 0
	}
	return float64(tt.hits.Load()) / float64(probes) * 100
}

// Size returns the number of entries in the table.
func (tt *TranspositionTable) Size() uint64 {
	return uint64(len(tt.entries))
}

// AdjustScoreFromTT converts a root-relative mate score read from the table
// into a ply-relative one, so mate distance is measured from the current
// node rather than the search root.
func AdjustScoreFromTT(score int, ply int) int {
	if score > MateScore-MaxPly {
		return score - ply
	}
	if score < -MateScore+MaxPly {
		return score + ply
	}
	return score
}

// AdjustScoreToTT converts a ply-relative mate score back into root-relative
// form before it is written to the table.
func AdjustScoreToTT(score int, ply int) int {
	if score > MateScore-MaxPly {
		return score + ply
	}
	if score < -MateScore+MaxPly {
		return score - ply
	}
	return score
}
