package tree

import (
	"github.com/google/uuid"

	"github.com/rgrau/openingbook/internal/rules"
)

// Color is the side a tree or a move belongs to.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other color.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// PlayerResult is a game outcome from the resolved player's perspective.
type PlayerResult string

const (
	ResultWin     PlayerResult = "win"
	ResultLoss    PlayerResult = "loss"
	ResultDraw    PlayerResult = "draw"
	ResultUnknown PlayerResult = "unknown"
)

// Band is a discrete performance band derived from win rate.
type Band string

const (
	BandExcellent    Band = "excellent"
	BandGood         Band = "good"
	BandAverage      Band = "average"
	BandBelowAverage Band = "below-average"
	BandPoor         Band = "poor"
	BandNeutral      Band = "neutral"
)

// Hex returns the display color for a band.
func (b Band) Hex() string {
	switch b {
	case BandExcellent:
		return "#4caf50"
	case BandGood:
		return "#8bc34a"
	case BandAverage:
		return "#ffeb3b"
	case BandBelowAverage:
		return "#ff9800"
	case BandPoor:
		return "#f44336"
	default:
		return "#9e9e9e"
	}
}

// Node is one opening-tree vertex: a position plus aggregated statistics
// and per-move detail tables. A node is a per-position singleton; games
// reaching the same position via different move orders merge into one
// node. ParentID records the first-seen parent only, so a root path
// walked through parents can name a transposed move order for lines
// reached more than one way.
type Node struct {
	ID       string
	Key      rules.PositionKey
	FEN      string
	MoveSAN  string // move that produced this node, "" for the root
	ParentID string

	// MoverColor is the side that played MoveSAN. Unset for the root.
	MoverColor Color

	// Children maps UCI move notation to the resulting node.
	Children map[string]*Node

	Games  int
	Wins   int
	Draws  int
	Losses int

	// Per-move tables keyed by child UCI, used only for presentation.
	MoveCounts   map[string]int
	EloDiffSum   map[string]int
	EloDiffCount map[string]int
	MoveDates    map[string][]string

	// SourceFiles records which game records contributed to this node.
	SourceFiles map[string]struct{}

	// InRepertoire marks moves belonging to the trainee's prepared side
	// (always true in repertoire mode).
	InRepertoire bool

	// Learning state. Studied is session-scoped: a node counts as
	// studied only for the session recorded in StudiedInSession.
	Studied          bool
	StudiedInSession string
	DirectlyLearned  map[string]struct{}
}

func newNode(key rules.PositionKey, fen, moveSAN, parentID string) *Node {
	return &Node{
		ID:              uuid.NewString(),
		Key:             key,
		FEN:             fen,
		MoveSAN:         moveSAN,
		ParentID:        parentID,
		Children:        make(map[string]*Node),
		MoveCounts:      make(map[string]int),
		EloDiffSum:      make(map[string]int),
		EloDiffCount:    make(map[string]int),
		MoveDates:       make(map[string][]string),
		SourceFiles:     make(map[string]struct{}),
		DirectlyLearned: make(map[string]struct{}),
	}
}

// recordGame updates the node's counters for one contributing game.
// In repertoire mode the node is a presence marker: games is pinned to 1
// and no outcome is recorded.
func (n *Node) recordGame(result PlayerResult, skipStats, ownRepertoire bool) {
	if ownRepertoire {
		n.Games = 1
		n.Wins = 0
		n.Draws = 0
		n.Losses = 0
		return
	}
	n.Games++
	if skipStats {
		return
	}
	switch result {
	case ResultWin:
		n.Wins++
	case ResultLoss:
		n.Losses++
	case ResultDraw:
		n.Draws++
	}
}

// WinRate returns (wins + draws/2) / (wins+draws+losses) as a percentage,
// or 0 when no outcome has been recorded.
func (n *Node) WinRate() float64 {
	countable := n.Wins + n.Draws + n.Losses
	if countable == 0 {
		return 0
	}
	return (float64(n.Wins) + 0.5*float64(n.Draws)) / float64(countable) * 100
}

// PerfBand maps the node's win rate to a band. Repertoire nodes are
// always excellent; nodes with no recorded outcomes are neutral.
func (n *Node) PerfBand(repertoire bool) Band {
	if repertoire {
		return BandExcellent
	}
	if n.Wins+n.Draws+n.Losses == 0 {
		return BandNeutral
	}
	return rateBand(n.WinRate())
}

func rateBand(winRate float64) Band {
	switch {
	case winRate >= 65:
		return BandExcellent
	case winRate >= 55:
		return BandGood
	case winRate >= 45:
		return BandAverage
	case winRate >= 35:
		return BandBelowAverage
	default:
		return BandPoor
	}
}

// IsStudied reports whether the node is studied for the given session.
func (n *Node) IsStudied(session string) bool {
	return n.Studied && n.StudiedInSession == session
}

// IsDirectlyLearned reports whether the node was answered correctly
// without hints in the given session.
func (n *Node) IsDirectlyLearned(session string) bool {
	_, ok := n.DirectlyLearned[session]
	return ok
}
