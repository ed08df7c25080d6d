package board

// Move packs everything the search needs to know about a move into a single
// machine word without touching the position:
//
//	bits 0-5:   from square (0-63)
//	bits 6-11:  to square (0-63)
//	bits 12-15: mover piece (Piece, 0-12)
//	bits 16-19: promotion piece (Piece, 0-12; NoPiece when not promoting)
//	bit  20:    capture
//	bit  21:    double pawn push
//	bit  22:    en passant capture
//	bit  23:    castling
type Move uint32

const (
	moveFromShift  = 0
	moveToShift    = 6
	movePieceShift = 12
	movePromoShift = 16
	moveSqMask     = 0x3F
	movePieceMask  = 0xF

	moveCaptureBit     = 1 << 20
	moveDoublePushBit  = 1 << 21
	moveEnPassantBit   = 1 << 22
	moveCastlingBit    = 1 << 23
)

// NoMove represents an invalid or null move.
const NoMove Move = 0

func encodeMove(from, to Square, piece, promo Piece, flags Move) Move {
	return Move(from)<<moveFromShift |
		Move(to)<<moveToShift |
		Move(piece)<<movePieceShift |
		Move(promo)<<movePromoShift |
		flags
}

// NewMove creates a normal (non-capture, non-special) move.
func NewMove(from, to Square, piece Piece) Move {
	return encodeMove(from, to, piece, NoPiece, 0)
}

// NewCapture creates a capturing move.
func NewCapture(from, to Square, piece Piece) Move {
	return encodeMove(from, to, piece, NoPiece, moveCaptureBit)
}

// NewDoublePawnPush creates a two-square pawn advance.
func NewDoublePawnPush(from, to Square, piece Piece) Move {
	return encodeMove(from, to, piece, NoPiece, moveDoublePushBit)
}

// NewPromotion creates a (possibly capturing) promotion move.
func NewPromotion(from, to Square, piece, promo Piece, capture bool) Move {
	var flags Move
	if capture {
		flags |= moveCaptureBit
	}
	return encodeMove(from, to, piece, promo, flags)
}

// NewEnPassant creates an en passant capture move.
func NewEnPassant(from, to Square, piece Piece) Move {
	return encodeMove(from, to, piece, NoPiece, moveCaptureBit|moveEnPassantBit)
}

// NewCastling creates a castling move (king's movement only).
func NewCastling(from, to Square, piece Piece) Move {
	return encodeMove(from, to, piece, NoPiece, moveCastlingBit)
}

// From returns the origin square.
func (m Move) From() Square {
	return Square((m >> moveFromShift) & moveSqMask)
}

// To returns the destination square.
func (m Move) To() Square {
	return Square((m >> moveToShift) & moveSqMask)
}

// MoverPiece returns the piece that is moving.
func (m Move) MoverPiece() Piece {
	return Piece((m >> movePieceShift) & movePieceMask)
}

// PromotionPiece returns the promoted-to piece (NoPiece if this isn't a promotion).
func (m Move) PromotionPiece() Piece {
	return Piece((m >> movePromoShift) & movePieceMask)
}

// Promotion returns the promotion piece type (only valid if IsPromotion() is true).
func (m Move) Promotion() PieceType {
	return m.PromotionPiece().Type()
}

// IsPromotion returns true if this is a promotion move.
func (m Move) IsPromotion() bool {
	return m.PromotionPiece() != NoPiece
}

// IsCastling returns true if this is a castling move.
func (m Move) IsCastling() bool {
	return m&moveCastlingBit != 0
}

// IsEnPassant returns true if this is an en passant capture.
func (m Move) IsEnPassant() bool {
	return m&moveEnPassantBit != 0
}

// IsDoublePawnPush returns true if this is a two-square pawn advance.
func (m Move) IsDoublePawnPush() bool {
	return m&moveDoublePushBit != 0
}

// IsCapture returns true if this move captures a piece. The flag is baked in
// at generation time, so this never needs to consult the position.
func (m Move) IsCapture() bool {
	return m&moveCaptureBit != 0
}

// IsQuiet returns true if this is not a capture or promotion.
func (m Move) IsQuiet() bool {
	return !m.IsCapture() && !m.IsPromotion()
}

// String returns the UCI format of the move (e.g., "e2e4", "e7e8q").
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}

	s := m.From().String() + m.To().String()

	if m.IsPromotion() {
		promoChars := []byte{'n', 'b', 'r', 'q'}
		s += string(promoChars[m.Promotion()-Knight])
	}

	return s
}

// MoveList is a fixed-size list of moves to avoid allocations.
type MoveList struct {
	moves [256]Move
	count int
}

// NewMoveList creates an empty move list.
func NewMoveList() *MoveList {
	return &MoveList{}
}

// Add adds a move to the list.
func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.count++
}

// Len returns the number of moves in the list.
func (ml *MoveList) Len() int {
	return ml.count
}

// Get returns the move at index i.
func (ml *MoveList) Get(i int) Move {
	return ml.moves[i]
}

// Set sets the move at index i.
func (ml *MoveList) Set(i int, m Move) {
	ml.moves[i] = m
}

// Swap swaps two moves in the list.
func (ml *MoveList) Swap(i, j int) {
	ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i]
}

// Clear clears the list.
func (ml *MoveList) Clear() {
	ml.count = 0
}

// Contains returns true if the list contains the move.
func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i] == m {
			return true
		}
	}
	return false
}

// Slice returns the moves as a slice.
func (ml *MoveList) Slice() []Move {
	return ml.moves[:ml.count]
}

// Undo stores the information needed to unmake a move: the narrow snapshot
// described in SPEC_FULL.md's data model rather than a full position clone.
type Undo struct {
	CapturedPiece  Piece
	CastlingRights CastlingRights
	EnPassant      Square
	HalfMoveClock  int
	Key            uint64
	Lock           uint64
	Checkers       Bitboard
	Valid          bool // true if the move was actually applied
}
