package engine

import (
	"sync/atomic"
	"time"

	"github.com/evanreyes/chessd/internal/board"
	"github.com/evanreyes/chessd/internal/book"
)

// DefaultThreads and MaxThreads bound the lazy-SMP worker pool per §4.9
// ("threadCount workers, default 2, capped by a compile-time MAX_THREADS").
const (
	DefaultThreads = 2
	MaxThreads     = 64
)

// SearchInfo is emitted to OnInfo once per completed iterative-deepening
// depth, carrying everything a UCI "info" line needs.
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // permille of hash table used
}

// SearchLimits specifies constraints on a fixed (non-UCI-clock) search.
type SearchLimits struct {
	Depth    int           // Maximum depth (0 = no limit)
	Nodes    uint64        // Maximum nodes (0 = no limit)
	MoveTime time.Duration // Time for this move (0 = no limit)
	Infinite bool          // Search until stopped
	MultiPV  int           // Number of principal variations (0 or 1 = single best move)
}

// SearchResult is one line of a multi-PV search.
type SearchResult struct {
	Move  board.Move
	Score int
	PV    []board.Move
	Depth int
}

// Difficulty selects a canned set of search limits.
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
)

// DifficultySettings maps difficulty to search limits.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 3, MoveTime: 500 * time.Millisecond},
	Medium: {Depth: 7, MoveTime: 1 * time.Second},
	Hard:   {Depth: 40, MoveTime: 3 * time.Second},
}

// Engine ties together the transposition table, the lazy-SMP worker pool,
// the opening book, and a dedicated single-threaded searcher used for
// multi-PV analysis (which the pool's lockstep worker-0-is-reporter
// convention doesn't support directly).
type Engine struct {
	tt   *TranspositionTable
	pool *Pool

	mpvSearcher *Searcher
	mpvStop     atomic.Bool

	difficulty  Difficulty
	book        *book.Book
	bookEnabled bool
	rootKeys    []uint64

	OnInfo func(SearchInfo)
}

// NewEngine creates a chess engine with a transposition table sized to
// ttSizeMB megabytes and a DefaultThreads-worker pool.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)
	e := &Engine{
		tt:          tt,
		pool:        NewPool(DefaultThreads, tt),
		difficulty:  Medium,
		bookEnabled: true,
	}
	e.mpvSearcher = NewSearcher(0, tt, &e.mpvStop)
	return e
}

// SetThreads resizes the worker pool, clamped to [1, MaxThreads].
func (e *Engine) SetThreads(n int) {
	if n < 1 {
		n = 1
	}
	if n > MaxThreads {
		n = MaxThreads
	}
	e.pool = NewPool(n, e.tt)
	e.pool.SetRootHistory(e.rootKeys)
}

// Threads returns the current worker count.
func (e *Engine) Threads() int {
	return e.pool.Size()
}

// SetHashSizeMB replaces the transposition table with one of the requested
// size, carrying the worker count and position history over to the new
// table. Search heuristics (killers/history) are not preserved.
func (e *Engine) SetHashSizeMB(mb int) {
	threads := e.pool.Size()
	tt := NewTranspositionTable(mb)
	e.tt = tt
	e.pool = NewPool(threads, tt)
	e.pool.SetRootHistory(e.rootKeys)
	e.mpvSearcher = NewSearcher(0, tt, &e.mpvStop)
	e.mpvSearcher.SetRootHistory(e.rootKeys)
}

// SetDifficulty sets the engine difficulty used by Search.
func (e *Engine) SetDifficulty(d Difficulty) {
	e.difficulty = d
}

// LoadBook loads an opening book from a Polyglot file.
func (e *Engine) LoadBook(filename string) error {
	b, err := book.LoadPolyglot(filename)
	if err != nil {
		return err
	}
	e.book = b
	return nil
}

// SetBook sets the opening book directly.
func (e *Engine) SetBook(b *book.Book) {
	e.book = b
}

// HasBook returns true if an opening book is loaded.
func (e *Engine) HasBook() bool {
	return e.book != nil
}

// SetBookEnabled toggles book consultation without discarding the loaded
// book ("setoption name Book value <bool>").
func (e *Engine) SetBookEnabled(enabled bool) {
	e.bookEnabled = enabled
}

// BookEnabled reports whether book consultation is currently active.
func (e *Engine) BookEnabled() bool {
	return e.bookEnabled
}

func (e *Engine) probeBook(pos *board.Position) (board.Move, bool) {
	if e.book == nil || !e.bookEnabled {
		return board.NoMove, false
	}
	return e.book.Probe(pos)
}

// SetPositionHistory sets the repetition history for the position about to
// be searched. keys must include the current position's own key as the
// last entry; deeper search nodes compare against this table to detect a
// returning position.
func (e *Engine) SetPositionHistory(keys []uint64) {
	e.rootKeys = append(e.rootKeys[:0], keys...)
	e.pool.SetRootHistory(e.rootKeys)
	e.mpvSearcher.SetRootHistory(e.rootKeys)
}

// Search finds the best move for pos using the current difficulty setting.
func (e *Engine) Search(pos *board.Position) board.Move {
	return e.SearchWithLimits(pos, DifficultySettings[e.difficulty])
}

// SearchWithLimits finds the best move for pos with explicit search limits,
// consulting the opening book first.
func (e *Engine) SearchWithLimits(pos *board.Position, limits SearchLimits) board.Move {
	if move, ok := e.probeBook(pos); ok {
		return move
	}

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = time.Now().Add(limits.MoveTime)
	}

	move, score := e.pool.Search(pos, maxDepth, deadline, limits.Nodes, func(info DepthInfo) {
		if e.OnInfo != nil {
			e.OnInfo(SearchInfo{
				Depth:    info.Depth,
				Score:    info.Score,
				Nodes:    e.pool.TotalNodes(),
				Time:     info.Elapsed,
				PV:       info.PV,
				HashFull: e.tt.HashFull(),
			})
		}
	})
	_ = score

	return move
}

// SearchWithUCILimits finds the best move using UCI clock semantics
// (wtime/btime/winc/binc/movestogo), via the time manager.
func (e *Engine) SearchWithUCILimits(pos *board.Position, limits UCILimits, ply int) board.Move {
	if move, ok := e.probeBook(pos); ok {
		return move
	}

	tm := NewTimeManager()
	tm.Init(limits, pos.SideToMove, ply)

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	deadline := time.Now().Add(tm.MaximumTime())

	move, _ := e.pool.Search(pos, maxDepth, deadline, limits.Nodes, func(info DepthInfo) {
		if e.OnInfo != nil {
			e.OnInfo(SearchInfo{
				Depth:    info.Depth,
				Score:    info.Score,
				Nodes:    e.pool.TotalNodes(),
				Time:     info.Elapsed,
				PV:       info.PV,
				HashFull: e.tt.HashFull(),
			})
		}
		if tm.PastOptimum() {
			e.pool.Stop()
		}
	})

	return move
}

// SearchMultiPV finds the top limits.MultiPV principal variations via
// repeated single-threaded searches, each excluding the moves already
// found.
func (e *Engine) SearchMultiPV(pos *board.Position, limits SearchLimits) []SearchResult {
	numPV := limits.MultiPV
	if numPV <= 0 {
		numPV = 1
	}

	results := make([]SearchResult, 0, numPV)
	excluded := make([]board.Move, 0, numPV)

	for i := 0; i < numPV; i++ {
		move, score, pv, depth := e.searchWithExclusions(pos, limits, excluded)
		if move == board.NoMove {
			break
		}
		results = append(results, SearchResult{Move: move, Score: score, PV: pv, Depth: depth})
		excluded = append(excluded, move)
	}

	for i := 0; i < len(results)-1; i++ {
		best := i
		for j := i + 1; j < len(results); j++ {
			if results[j].Score > results[best].Score {
				best = j
			}
		}
		if best != i {
			results[i], results[best] = results[best], results[i]
		}
	}

	return results
}

func (e *Engine) searchWithExclusions(pos *board.Position, limits SearchLimits, excluded []board.Move) (board.Move, int, []board.Move, int) {
	e.mpvStop.Store(false)
	e.tt.NewSearch()

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = time.Now().Add(limits.MoveTime)
	}

	e.mpvSearcher.Reset(deadline, limits.Nodes)
	e.mpvSearcher.SetExcludedMoves(excluded)

	move, score := e.mpvSearcher.IterativeDeepening(pos, maxDepth, time.Now(), nil)
	pv := e.mpvSearcher.GetPV()

	return move, score, pv, len(pv)
}

// Stop stops any in-progress search.
func (e *Engine) Stop() {
	e.pool.Stop()
	e.mpvStop.Store(true)
}

// Clear clears the transposition table and every worker's heuristic tables.
func (e *Engine) Clear() {
	e.tt.Clear()
	e.pool.ClearHistory()
	e.mpvSearcher.ClearAll()
}

// Perft performs a perft benchmark (for move-generator correctness checks).
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}

	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := pos.MakeMove(move)
		nodes += e.Perft(pos, depth-1)
		pos.UnmakeMove(move, undo)
	}

	return nodes
}

// Evaluate returns the static evaluation of a position.
func (e *Engine) Evaluate(pos *board.Position) int {
	return Evaluate(pos)
}

// ScoreToString converts a centipawn or mate score to a human-readable string.
func ScoreToString(score int) string {
	if score > MateScore-100 {
		mateIn := (MateValue - score + 1) / 2
		return "Mate in " + itoa(mateIn)
	}
	if score < -MateScore+100 {
		mateIn := (MateValue + score + 1) / 2
		return "Mated in " + itoa(mateIn)
	}

	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	pawns := score / 100
	centipawns := score % 100

	return sign + itoa(pawns) + "." + itoa(centipawns)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}
