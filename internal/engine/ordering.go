package engine

import (
	"github.com/evanreyes/chessd/internal/board"
)

// Move ordering scores. The PV move is tried first, then captures ordered
// by MVV-LVA, then the two killer slots for this ply, then everything else
// by history score.
const (
	pvMoveScore  = 20000
	captureBase  = 10000
	killerScore1 = 9000
	killerScore2 = 8000
)

// mvvLva scores a capture by [victim][attacker]: higher reward for taking a
// valuable piece with a cheap one.
var mvvLva = [6][6]int{
	//       P    N    B    R    Q    K  (attacker)
	/* P */ {15, 14, 14, 13, 12, 11},
	/* N */ {25, 24, 24, 23, 22, 21},
	/* B */ {35, 34, 34, 33, 32, 31},
	/* R */ {45, 44, 44, 43, 42, 41},
	/* Q */ {55, 54, 54, 53, 52, 51},
	/* K */ {0, 0, 0, 0, 0, 0},
}

// scoreMove computes the ordering score for a single move. pvMove is
// pvTable[0][ply], checked only while followPV/scorePV are active for this
// node (see Searcher.negamax).
func (s *Searcher) scoreMove(m board.Move, ply int, pvMove board.Move) int {
	if s.scorePV && m == pvMove {
		s.scorePV = false
		return pvMoveScore
	}

	if m.IsCapture() {
		attacker := m.MoverPiece().Type()
		var victim board.PieceType
		if m.IsEnPassant() {
			victim = board.Pawn
		} else {
			victim = s.pos.PieceAt(m.To()).Type()
		}
		if victim > board.King {
			victim = board.Pawn
		}
		return captureBase + mvvLva[victim][attacker]
	}

	if m == s.killers[ply][0] {
		return killerScore1
	}
	if m == s.killers[ply][1] {
		return killerScore2
	}

	return s.history[m.MoverPiece()][m.To()]
}

// scoreMoves assigns an ordering score to every move in the list and marks
// followPV/scorePV if the PV move for this ply is present, per §4.8 step 9.
func (s *Searcher) scoreMoves(moves *board.MoveList, ply int) []int {
	pvMove := board.NoMove
	if s.followPV && ply < s.pvLength[0] {
		pvMove = s.pv[0][ply]
	}

	if s.followPV {
		s.followPV = false
		for i := 0; i < moves.Len(); i++ {
			if moves.Get(i) == pvMove {
				s.scorePV = true
				s.followPV = true
				break
			}
		}
	}

	scores := make([]int, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		scores[i] = s.scoreMove(moves.Get(i), ply, pvMove)
	}
	return scores
}

// PickMove selects the best remaining move by score and swaps it to index,
// an O(n) step of the overall O(n^2) selection sort spec.md describes; any
// stable algorithm producing the same total order is equally valid.
func PickMove(moves *board.MoveList, scores []int, index int) {
	best := index
	for j := index + 1; j < moves.Len(); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != index {
		moves.Swap(index, best)
		scores[index], scores[best] = scores[best], scores[index]
	}
}

// updateKillers pushes m into the killer slots for ply, dropping the older
// second slot. Only quiet moves are stored as killers.
func (s *Searcher) updateKillers(m board.Move, ply int) {
	if s.killers[ply][0] == m {
		return
	}
	s.killers[ply][1] = s.killers[ply][0]
	s.killers[ply][0] = m
}

// updateHistory adds depth^2 to history[piece][target] for a quiet move that
// raised alpha, per §4.8 step 10.
func (s *Searcher) updateHistory(m board.Move, depth int) {
	s.history[m.MoverPiece()][m.To()] += depth * depth
}
