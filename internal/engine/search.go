package engine

import (
	"sync/atomic"
	"time"

	"github.com/evanreyes/chessd/internal/board"
)

// Search constants, named to match the strict ordering
// -INF < -MATE_VALUE < -MATE_SCORE < ordinary scores < MATE_SCORE < MATE_VALUE < INF.
const (
	Infinity  = 50000 // INF
	MateValue = 49000 // MATE_VALUE: returned at the root for a mate in n plies (MateValue - n)
	MateScore = 48000 // MATE_SCORE: |score| above this is a compressed mate distance
	MaxPly    = 128

	fullDepthMoves = 4 // FULL_DEPTH_MOVES
	reductionLimit = 3 // REDUCTION_LIMIT
	nullMoveLimit  = 3 // minimum depth for null-move pruning
	stopPollNodes  = 2048
)

// DepthInfo is emitted once per completed iterative-deepening depth, for the
// reporter worker only (see Pool in worker.go).
type DepthInfo struct {
	Depth   int
	Score   int
	Nodes   uint64
	Elapsed time.Duration
	PV      []board.Move
}

// Searcher holds one worker's search state: a position copy, killer and
// history tables, the triangular PV store, and the repetition table used to
// detect draws. Every lazy-SMP worker owns one of these; only the
// TranspositionTable is shared.
type Searcher struct {
	id int // 0 is the reporter

	pos *board.Position
	tt  *TranspositionTable

	nodes     uint64
	stopFlag  *atomic.Bool
	deadline  time.Time
	nodeLimit uint64

	// repetition holds the game's key history followed by the keys visited
	// along the current search path. rootLen marks where the search path
	// begins, so Reset can trim back to the game history.
	repetition []uint64
	rootLen    int

	killers [MaxPly][2]board.Move
	history [12][64]int

	pvLength [MaxPly]int
	pv       [MaxPly][MaxPly]board.Move
	followPV bool
	scorePV  bool

	undoStack [MaxPly]board.Undo

	excluded []board.Move // root-level move exclusions, for multi-PV search
}

// NewSearcher creates a searcher sharing tt and stopFlag with its siblings.
func NewSearcher(id int, tt *TranspositionTable, stopFlag *atomic.Bool) *Searcher {
	return &Searcher{id: id, tt: tt, stopFlag: stopFlag}
}

// SetRootHistory installs the repetition table ancestors: the game's key
// history up to and including the position about to be searched.
func (s *Searcher) SetRootHistory(keys []uint64) {
	s.repetition = append(s.repetition[:0], keys...)
	s.rootLen = len(s.repetition)
}

// Reset prepares the searcher for a new top-level search: node count,
// killers, and PV are cleared; history is halved rather than cleared
// outright so move-ordering knowledge carries over from earlier searches.
func (s *Searcher) Reset(deadline time.Time, nodeLimit uint64) {
	s.nodes = 0
	s.deadline = deadline
	s.nodeLimit = nodeLimit
	s.repetition = s.repetition[:s.rootLen]
	s.excluded = s.excluded[:0]

	for i := range s.killers {
		s.killers[i][0] = board.NoMove
		s.killers[i][1] = board.NoMove
	}
	for i := range s.history {
		for j := range s.history[i] {
			s.history[i][j] /= 2
		}
	}
	for i := range s.pvLength {
		s.pvLength[i] = 0
	}
}

// SetExcludedMoves excludes the given moves from consideration at the root,
// used by multi-PV search to find the second-, third-, ... best move.
func (s *Searcher) SetExcludedMoves(moves []board.Move) {
	s.excluded = append(s.excluded[:0], moves...)
}

func (s *Searcher) isExcluded(m board.Move) bool {
	for _, e := range s.excluded {
		if e == m {
			return true
		}
	}
	return false
}

// ClearAll fully zeroes killer and history tables, unlike Reset which only
// halves history at the start of each top-level search.
func (s *Searcher) ClearAll() {
	s.nodes = 0
	for i := range s.killers {
		s.killers[i][0] = board.NoMove
		s.killers[i][1] = board.NoMove
	}
	for i := range s.history {
		for j := range s.history[i] {
			s.history[i][j] = 0
		}
	}
	for i := range s.pvLength {
		s.pvLength[i] = 0
	}
}

// Nodes returns the number of nodes visited in the most recent search.
func (s *Searcher) Nodes() uint64 {
	return s.nodes
}

// GetPV returns the principal variation from the most recently completed
// depth.
func (s *Searcher) GetPV() []board.Move {
	pv := make([]board.Move, s.pvLength[0])
	copy(pv, s.pv[0][:s.pvLength[0]])
	return pv
}

func (s *Searcher) pushRepetition(key uint64) {
	s.repetition = append(s.repetition, key)
}

func (s *Searcher) popRepetition() {
	s.repetition = s.repetition[:len(s.repetition)-1]
}

// isRepetition reports whether the current (just-pushed) key occurred
// earlier in the repetition table. Per spec, a single earlier occurrence is
// enough to call the position drawn, not the strict threefold count — a
// deliberate engine-strength choice carried over from the legacy behavior.
func (s *Searcher) isRepetition() bool {
	n := len(s.repetition)
	if n == 0 {
		return false
	}
	key := s.repetition[n-1]
	for i := n - 2; i >= 0; i-- {
		if s.repetition[i] == key {
			return true
		}
	}
	return false
}

// stopped polls the shared stop flag and the deadline/node budget every
// stopPollNodes nodes. Between polls a stop request is invisible, matching
// the weak ordering guarantees of the worker pool.
func (s *Searcher) stopped() bool {
	if s.nodes&(stopPollNodes-1) != 0 {
		return false
	}
	if s.stopFlag.Load() {
		return true
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		s.stopFlag.Store(true)
		return true
	}
	if s.nodeLimit > 0 && s.nodes >= s.nodeLimit {
		s.stopFlag.Store(true)
		return true
	}
	return false
}

// IterativeDeepening runs the depth 1..maxDepth driver over pos, widening
// the aspiration window to (-INF, INF) and retrying the same depth on
// failure, narrowing to (score-50, score+50) otherwise. onInfo, if non-nil,
// is called once per completed depth (the dispatcher only wires it up for
// the reporter worker).
func (s *Searcher) IterativeDeepening(pos *board.Position, maxDepth int, startedAt time.Time, onInfo func(DepthInfo)) (board.Move, int) {
	s.pos = pos
	if maxDepth <= 0 || maxDepth > MaxPly {
		maxDepth = MaxPly
	}

	var bestMove board.Move
	var bestScore int
	prevScore := 0

	for depth := 1; depth <= maxDepth; depth++ {
		alpha, beta := -Infinity, Infinity
		if depth > 1 {
			alpha, beta = prevScore-50, prevScore+50
		}

		s.followPV = true
		s.scorePV = false
		score := s.negamax(depth, 0, alpha, beta)

		if score <= alpha || score >= beta {
			s.followPV = true
			s.scorePV = false
			score = s.negamax(depth, 0, -Infinity, Infinity)
		}

		if s.stopFlag.Load() {
			break
		}

		prevScore = score
		if s.pvLength[0] > 0 {
			bestMove = s.pv[0][0]
			bestScore = score
		}

		if onInfo != nil {
			onInfo(DepthInfo{
				Depth:   depth,
				Score:   bestScore,
				Nodes:   s.nodes,
				Elapsed: time.Since(startedAt),
				PV:      s.GetPV(),
			})
		}

		if bestScore > MateScore || bestScore < -MateScore {
			break
		}
	}

	return bestMove, bestScore
}

// negamax implements the alpha-beta search described in §4.8: TT probe,
// null-move pruning, PVS with late-move reduction, and PV/killer/history
// maintenance.
func (s *Searcher) negamax(depth, ply, alpha, beta int) int {
	s.pvLength[ply] = ply

	if ply > 0 && s.isRepetition() {
		return 0
	}

	pvNode := beta-alpha > 1
	if ply > 0 {
		if score, ttDepth, bound, ok := s.tt.Probe(s.pos.Key, ply); ok && ttDepth >= depth && !pvNode {
			switch bound {
			case BoundExact:
				return score
			case BoundLower:
				if score >= beta {
					return score
				}
			case BoundUpper:
				if score <= alpha {
					return score
				}
			}
		}
	}

	if s.stopped() {
		return 0
	}

	// The check extension is applied before the horizon test, so a side in
	// check at depth 0 still searches its replies and a mate is scored.
	inCheck := s.pos.InCheck()
	if inCheck {
		depth++
	}

	if depth <= 0 {
		return s.quiescence(ply, alpha, beta)
	}
	if ply >= MaxPly {
		return Evaluate(s.pos)
	}

	s.nodes++

	// Null-move pruning: if passing the turn still beats beta, the real
	// move here presumably does too. Skipped in pure pawn endings to avoid
	// returning a false cutoff in zugzwang.
	if depth >= nullMoveLimit && !inCheck && ply > 0 && s.pos.HasNonPawnMaterial() {
		undo := s.pos.MakeNullMove()
		s.pushRepetition(s.pos.Key)
		score := -s.negamax(depth-3, ply+1, -beta, -beta+1)
		s.popRepetition()
		s.pos.UnmakeNullMove(undo)

		if s.stopFlag.Load() {
			return 0
		}
		if score >= beta {
			return beta
		}
	}

	moves := s.pos.GenerateLegalMoves()
	if moves.Len() == 0 {
		if inCheck {
			return -MateValue + ply
		}
		return 0
	}

	scores := s.scoreMoves(moves, ply)

	raisedAlpha := false
	played := 0

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		if ply == 0 && s.isExcluded(move) {
			continue
		}

		s.undoStack[ply] = s.pos.MakeMove(move)
		if !s.undoStack[ply].Valid {
			continue
		}
		played++
		s.pushRepetition(s.pos.Key)

		var score int
		if played == 1 {
			score = -s.negamax(depth-1, ply+1, -beta, -alpha)
		} else {
			scoutDepth := depth - 1
			if i >= fullDepthMoves && depth >= reductionLimit && !inCheck &&
				!move.IsPromotion() && !move.IsCapture() {
				scoutDepth = depth - 2
			}

			score = -s.negamax(scoutDepth, ply+1, -alpha-1, -alpha)
			if score > alpha {
				score = -s.negamax(depth-1, ply+1, -alpha-1, -alpha)
				if score > alpha && score < beta {
					score = -s.negamax(depth-1, ply+1, -beta, -alpha)
				}
			}
		}

		s.popRepetition()
		s.pos.UnmakeMove(move, s.undoStack[ply])

		if s.stopFlag.Load() {
			return 0
		}

		if score > alpha {
			raisedAlpha = true
			if !move.IsCapture() {
				s.updateHistory(move, depth)
			}
			alpha = score

			s.pv[ply][ply] = move
			for j := ply + 1; j < s.pvLength[ply+1]; j++ {
				s.pv[ply][j] = s.pv[ply+1][j]
			}
			s.pvLength[ply] = s.pvLength[ply+1]

			if score >= beta {
				s.tt.Store(s.pos.Key, depth, score, ply, BoundLower)
				if !move.IsCapture() {
					s.updateKillers(move, ply)
				}
				return beta
			}
		}
	}

	if played == 0 {
		if inCheck {
			return -MateValue + ply
		}
		return 0
	}

	flag := BoundUpper
	if raisedAlpha {
		flag = BoundExact
	}
	s.tt.Store(s.pos.Key, depth, alpha, ply, flag)

	return alpha
}

// quiescence extends the search past the nominal horizon over captures
// only, to dampen the horizon effect.
func (s *Searcher) quiescence(ply, alpha, beta int) int {
	if s.stopped() {
		return 0
	}
	s.nodes++

	if ply >= MaxPly {
		return Evaluate(s.pos)
	}

	standPat := Evaluate(s.pos)
	if standPat >= beta {
		return beta
	}
	if standPat > alpha {
		alpha = standPat
	}

	moves := s.pos.GenerateCaptures()
	scores := s.scoreMoves(moves, ply)

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		undo := s.pos.MakeMove(move)
		if !undo.Valid {
			continue
		}

		score := -s.quiescence(ply+1, -beta, -alpha)

		s.pos.UnmakeMove(move, undo)

		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}

	return alpha
}
