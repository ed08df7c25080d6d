package engine

import (
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evanreyes/chessd/internal/board"
)

// Pool is the lazy-SMP worker pool described in §4.9: every worker runs the
// iterative-deepening driver independently over a deep copy of the root
// position, cooperating only through the shared, lock-free TranspositionTable.
// Worker 0 is the reporter: only its info lines and final best move count.
type Pool struct {
	searchers []*Searcher
	tt        *TranspositionTable
	stopFlag  atomic.Bool
}

// NewPool creates a pool of n workers sharing tt.
func NewPool(n int, tt *TranspositionTable) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{tt: tt}
	p.searchers = make([]*Searcher, n)
	for i := range p.searchers {
		p.searchers[i] = NewSearcher(i, tt, &p.stopFlag)
	}
	return p
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.searchers)
}

// SetRootHistory installs the game's repetition history (including the
// current root position's key) on every worker.
func (p *Pool) SetRootHistory(keys []uint64) {
	for _, s := range p.searchers {
		s.SetRootHistory(keys)
	}
}

// Stop requests cancellation of any in-progress search. Workers notice at
// their next stop poll (every stopPollNodes nodes).
func (p *Pool) Stop() {
	p.stopFlag.Store(true)
}

// ClearHistory fully zeroes every worker's killer/history tables, for
// "ucinewgame".
func (p *Pool) ClearHistory() {
	for _, s := range p.searchers {
		s.ClearAll()
	}
}

// TotalNodes sums the node counts from the most recently completed search
// across all workers.
func (p *Pool) TotalNodes() uint64 {
	var total uint64
	for _, s := range p.searchers {
		total += s.Nodes()
	}
	return total
}

// Search spawns one errgroup goroutine per worker, joins them on completion
// or on Stop, and returns the reporter's (worker 0's) best move and score.
// onInfo is invoked only for the reporter's completed depths.
func (p *Pool) Search(pos *board.Position, maxDepth int, deadline time.Time, nodeLimit uint64, onInfo func(DepthInfo)) (board.Move, int) {
	p.stopFlag.Store(false)
	p.tt.NewSearch()
	startedAt := time.Now()

	perWorkerNodeLimit := nodeLimit
	if nodeLimit > 0 {
		perWorkerNodeLimit = nodeLimit / uint64(len(p.searchers))
		if perWorkerNodeLimit == 0 {
			perWorkerNodeLimit = 1
		}
	}

	var bestMove board.Move
	var bestScore int

	var g errgroup.Group
	for i, s := range p.searchers {
		i, s := i, s
		rootCopy := pos.Copy()
		g.Go(func() error {
			s.Reset(deadline, perWorkerNodeLimit)

			var cb func(DepthInfo)
			if i == 0 {
				cb = onInfo
			}

			move, score := s.IterativeDeepening(rootCopy, maxDepth, startedAt, cb)
			if i == 0 {
				bestMove = move
				bestScore = score
			}
			return nil
		})
	}
	g.Wait()

	p.stopFlag.Store(true)
	return bestMove, bestScore
}
