package uci

import (
	"bufio"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"

	"github.com/evanreyes/chessd/internal/board"
	"github.com/evanreyes/chessd/internal/engine"
)

var warn = color.New(color.FgYellow)

// UCI implements the Universal Chess Interface protocol described in §6.
type UCI struct {
	engine   *engine.Engine
	position *board.Position

	// Position history for repetition detection, keyed on position.Key.
	positionHashes []uint64

	debug bool

	// Search state
	searching     bool
	searchDone    chan struct{}
	stopRequested atomic.Bool

	// CPU profiling
	profileFile *os.File
}

// New creates a new UCI protocol handler.
func New(eng *engine.Engine) *UCI {
	return &UCI{
		engine:   eng,
		position: board.NewPosition(),
	}
}

// Run starts the UCI main loop.
func (u *UCI) Run() {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			fmt.Println("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "quit":
			u.handleQuit()
		case "setoption":
			u.handleSetOption(args)
		case "display", "d":
			u.handleDisplay()
		case "perft":
			u.handlePerft(args)
		case "eval":
			u.handleEval()
		case "debug":
			u.handleDebug(args)
		default:
			fmt.Fprintf(os.Stderr, "info string unknown command: %s\n", cmd)
		}
	}
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	fmt.Println("id name chessd")
	fmt.Println("id author chessd contributors")
	fmt.Println()
	fmt.Println("option name Hash type spin default 64 min 1 max 4096")
	fmt.Println("option name Threads type spin default 2 min 1 max 64")
	fmt.Println("option name Book type check default true")
	fmt.Println("option name OwnBook type check default true")
	fmt.Println("uciok")
}

// handleNewGame clears the TT and resets to the start position, per §6.
func (u *UCI) handleNewGame() {
	u.engine.Clear()
	u.position = board.NewPosition()
	u.positionHashes = []uint64{u.position.Key}
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
//
// A malformed FEN prints an "info string invalid FEN" diagnostic to stderr
// and leaves the previous position in place, with the repetition history
// cleared.
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	u.positionHashes = nil
	var moveStart int

	switch args[0] {
	case "startpos":
		u.position = board.NewPosition()
		moveStart = len(args)
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	case "fen":
		fenEnd := len(args)
		for i, arg := range args[1:] {
			if arg == "moves" {
				fenEnd = i + 1
				break
			}
		}

		fenStr := strings.Join(args[1:fenEnd], " ")
		pos, err := board.ParseFEN(fenStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string invalid FEN: %v\n", err)
			return
		}
		u.position = pos

		moveStart = len(args)
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	default:
		return
	}

	u.positionHashes = append(u.positionHashes, u.position.Key)

	if moveStart < len(args) {
		for _, moveStr := range args[moveStart:] {
			move := u.parseMove(moveStr)
			if move == board.NoMove {
				// Unparseable move: report it on stderr, skip it and continue.
				fmt.Fprintf(os.Stderr, "info string unparseable move: %s\n", moveStr)
				continue
			}
			u.position.MakeMove(move)
			u.positionHashes = append(u.positionHashes, u.position.Key)
		}
	}
}

// parseMove converts a UCI long-algebraic move string to a board.Move by
// matching it against the current position's legal moves.
func (u *UCI) parseMove(moveStr string) board.Move {
	if len(moveStr) < 4 {
		return board.NoMove
	}

	fromFile := int(moveStr[0] - 'a')
	fromRank := int(moveStr[1] - '1')
	toFile := int(moveStr[2] - 'a')
	toRank := int(moveStr[3] - '1')

	if fromFile < 0 || fromFile > 7 || fromRank < 0 || fromRank > 7 ||
		toFile < 0 || toFile > 7 || toRank < 0 || toRank > 7 {
		return board.NoMove
	}

	from := board.NewSquare(fromFile, fromRank)
	to := board.NewSquare(toFile, toRank)

	var promo board.PieceType
	if len(moveStr) == 5 {
		switch moveStr[4] {
		case 'q':
			promo = board.Queen
		case 'r':
			promo = board.Rook
		case 'b':
			promo = board.Bishop
		case 'n':
			promo = board.Knight
		}
	}

	moves := u.position.GenerateLegalMoves()
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		if m.From() != from || m.To() != to {
			continue
		}
		if promo != 0 {
			if m.IsPromotion() && m.Promotion() == promo {
				return m
			}
		} else if !m.IsPromotion() {
			return m
		}
	}

	return board.NoMove
}

// GoOptions holds parsed "go" command options.
type GoOptions struct {
	Depth     int
	Nodes     uint64
	MoveTime  time.Duration
	Infinite  bool
	WTime     time.Duration
	BTime     time.Duration
	WInc      time.Duration
	BInc      time.Duration
	MovesToGo int
}

// handleGo starts a search in a goroutine per the parsed "go" parameters.
func (u *UCI) handleGo(args []string) {
	opts := u.parseGoOptions(args)

	u.engine.SetPositionHistory(u.positionHashes)
	u.engine.OnInfo = u.sendInfo

	ply := len(u.positionHashes) - 1
	if ply < 0 {
		ply = 0
	}

	limits := engine.UCILimits{
		Time:      [2]time.Duration{opts.WTime, opts.BTime},
		Inc:       [2]time.Duration{opts.WInc, opts.BInc},
		MovesToGo: opts.MovesToGo,
		MoveTime:  opts.MoveTime,
		Depth:     opts.Depth,
		Nodes:     opts.Nodes,
		Infinite:  opts.Infinite,
	}

	u.searching = true
	u.stopRequested.Store(false)
	u.searchDone = make(chan struct{})

	pos := u.position.Copy()

	go func() {
		defer close(u.searchDone)

		bestMove := u.engine.SearchWithUCILimits(pos, limits, ply)
		u.searching = false

		if bestMove == board.NoMove {
			fmt.Println("bestmove 0000")
			return
		}
		fmt.Printf("bestmove %s\n", bestMove.String())
	}()
}

// parseGoOptions parses "go" command arguments per §6's grammar.
func (u *UCI) parseGoOptions(args []string) GoOptions {
	opts := GoOptions{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "depth":
			if i+1 < len(args) {
				opts.Depth, _ = strconv.Atoi(args[i+1])
				i++
			}
		case "nodes":
			if i+1 < len(args) {
				n, _ := strconv.ParseUint(args[i+1], 10, 64)
				opts.Nodes = n
				i++
			}
		case "movetime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.MoveTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "infinite":
			opts.Infinite = true
		case "wtime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.WTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "btime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.BTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "winc":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.WInc = time.Duration(ms) * time.Millisecond
				i++
			}
		case "binc":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.BInc = time.Duration(ms) * time.Millisecond
				i++
			}
		case "movestogo":
			if i+1 < len(args) {
				opts.MovesToGo, _ = strconv.Atoi(args[i+1])
				i++
			}
		}
	}

	return opts
}

// sendInfo outputs search info in UCI format:
// "info score (cp N | mate N) depth D nodes K time MS [nps N] [hashfull N] pv m1 m2 ..."
// nps is emitted when the elapsed time is nonzero, hashfull when it is nonzero.
func (u *UCI) sendInfo(info engine.SearchInfo) {
	var parts []string

	if info.Score > engine.MateScore-100 {
		mateIn := (engine.MateValue - info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	} else if info.Score < -engine.MateScore+100 {
		mateIn := -(engine.MateValue + info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	} else {
		parts = append(parts, fmt.Sprintf("score cp %d", info.Score))
	}

	parts = append(parts, fmt.Sprintf("depth %d", info.Depth))
	parts = append(parts, fmt.Sprintf("nodes %d", info.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", info.Time.Milliseconds()))

	if info.Time > 0 {
		nps := uint64(float64(info.Nodes) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}

	if info.HashFull > 0 {
		parts = append(parts, fmt.Sprintf("hashfull %d", info.HashFull))
	}

	if len(info.PV) > 0 {
		pvStrs := make([]string, len(info.PV))
		for i, move := range info.PV {
			pvStrs[i] = move.String()
		}
		parts = append(parts, "pv "+strings.Join(pvStrs, " "))
	}

	fmt.Printf("info %s\n", strings.Join(parts, " "))

	if u.debug && len(info.PV) > 0 {
		pvPos := u.position.Copy()
		san := board.MovesToSAN(pvPos, info.PV)
		fmt.Fprintf(os.Stderr, "info string pv (san) %s\n", strings.Join(san, " "))
	}
}

// handleStop requests cancellation and joins the workers, per §6.
func (u *UCI) handleStop() {
	if u.searching {
		u.stopRequested.Store(true)
		u.engine.Stop()
		<-u.searchDone
	}
}

// handleQuit joins the workers, stops any active profile, and exits.
func (u *UCI) handleQuit() {
	u.handleStop()
	if u.profileFile != nil {
		pprof.StopCPUProfile()
		u.profileFile.Close()
		fmt.Fprintln(os.Stderr, "info string CPU profile saved")
	}
	os.Exit(0)
}

// handleSetOption processes "setoption name <name> value <value>".
// Hash and Book/OwnBook come from §6; Threads and the OwnBook synonym are
// the supplemented options from original_source/src/uci.cpp (SPEC_FULL §6).
func (u *UCI) handleSetOption(args []string) {
	var name, value string
	readingName, readingValue := false, false

	for _, arg := range args {
		switch arg {
		case "name":
			readingName, readingValue = true, false
		case "value":
			readingName, readingValue = false, true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += arg
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	switch strings.ToLower(name) {
	case "hash":
		mb, err := strconv.Atoi(value)
		if err == nil && mb >= 1 {
			u.engine.SetHashSizeMB(mb)
		}
	case "threads":
		n, err := strconv.Atoi(value)
		if err == nil {
			u.engine.SetThreads(n)
		}
	case "book", "ownbook":
		u.engine.SetBookEnabled(strings.ToLower(value) == "true")
	}
}

// handleDisplay prints the board, per §6's "display"/"d" command, coloring
// white and black pieces when stdout is a TTY, followed by the legal moves
// in the current position rendered as SAN for human readability.
func (u *UCI) handleDisplay() {
	fmt.Println(colorBoard(u.position))

	legal := u.position.GenerateLegalMoves()
	san := make([]string, legal.Len())
	for i := 0; i < legal.Len(); i++ {
		san[i] = legal.Get(i).ToSAN(u.position)
	}
	fmt.Printf("Legal moves: %s\n", strings.Join(san, " "))
}

// colorBoard tints uppercase (white) pieces cyan and lowercase (black)
// pieces yellow; color is a no-op when stdout isn't a terminal.
func colorBoard(pos *board.Position) string {
	white := color.New(color.FgCyan, color.Bold)
	black := color.New(color.FgYellow, color.Bold)

	var sb strings.Builder
	sb.WriteString("\n")
	for rank := 7; rank >= 0; rank-- {
		sb.WriteString(fmt.Sprintf("%d  ", rank+1))
		for file := 0; file < 8; file++ {
			sq := board.NewSquare(file, rank)
			piece := pos.PieceAt(sq)
			if piece == board.NoPiece {
				sb.WriteString(". ")
				continue
			}
			s := piece.String()
			if piece < board.BlackPawn {
				sb.WriteString(white.Sprint(s) + " ")
			} else {
				sb.WriteString(black.Sprint(s) + " ")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	sb.WriteString(fmt.Sprintf("Side to move: %s\n", pos.SideToMove))
	sb.WriteString(fmt.Sprintf("Castling: %s\n", pos.CastlingRights))
	sb.WriteString(fmt.Sprintf("En passant: %s\n", pos.EnPassant))
	sb.WriteString(fmt.Sprintf("Key: %016x  Lock: %016x\n", pos.Key, pos.Lock))
	return sb.String()
}

// handleEval prints the static evaluation of the current position, per §6.
func (u *UCI) handleEval() {
	score := u.engine.Evaluate(u.position)
	fmt.Printf("%s\n", engine.ScoreToString(score))
}

// handleDebug toggles verbose engine output, per §6's "debug on|off".
func (u *UCI) handleDebug(args []string) {
	if len(args) == 0 {
		return
	}
	u.debug = args[0] == "on"
	if u.debug {
		warn.Fprintln(os.Stderr, "info string debug mode enabled")
	}
}

// handlePerft runs a perft benchmark, per §6, printing a per-root-move
// count and a total.
func (u *UCI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		depth, _ = strconv.Atoi(args[0])
	}

	moves := u.position.GenerateLegalMoves()
	start := time.Now()

	var total uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := u.position.MakeMove(move)
		var nodes uint64
		if depth > 1 {
			nodes = u.engine.Perft(u.position, depth-1)
		} else {
			nodes = 1
		}
		u.position.UnmakeMove(move, undo)
		fmt.Printf("%s: %d\n", move.String(), nodes)
		total += nodes
	}

	elapsed := time.Since(start)
	fmt.Printf("\nNodes searched: %d\n", total)
	fmt.Printf("Time: %v\n", elapsed)
	if elapsed > 0 {
		nps := float64(total) / elapsed.Seconds()
		fmt.Printf("NPS: %.0f\n", nps)
	}
}
