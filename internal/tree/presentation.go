package tree

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// NodeView is the derived presentation form of a node.
type NodeView struct {
	ID           string               `json:"id"`
	FEN          string               `json:"fen"`
	MoveSAN      string               `json:"move_san,omitempty"`
	ParentID     string               `json:"parent_id,omitempty"`
	Games        int                  `json:"games"`
	Wins         int                  `json:"wins"`
	Draws        int                  `json:"draws"`
	Losses       int                  `json:"losses"`
	WinRate      float64              `json:"win_rate"`
	Band         Band                 `json:"band"`
	Color        string               `json:"color"`
	InRepertoire bool                 `json:"in_repertoire"`
	Children     map[string]*NodeView `json:"children,omitempty"`
}

// MoveSummary is the derived presentation form of one child move.
type MoveSummary struct {
	UCI           string      `json:"uci"`
	SAN           string      `json:"san"`
	FEN           string      `json:"fen"`
	NodeID        string      `json:"node_id"`
	Games         int         `json:"games"`
	Wins          int         `json:"wins"`
	Draws         int         `json:"draws"`
	Losses        int         `json:"losses"`
	WinRate       float64     `json:"win_rate"`
	DrawRate      float64     `json:"draw_rate"`
	LossRate      float64     `json:"loss_rate"`
	AvgEloDiff    *float64    `json:"avg_elo_diff,omitempty"`
	Occurrences   int         `json:"occurrences"`
	YearCounts    map[int]int `json:"year_counts,omitempty"`
	ChildrenCount int         `json:"children_count"`
	Band          Band        `json:"band"`
	Color         string      `json:"color"`
	Thickness     float64     `json:"thickness"`
}

// MovesResult is the answer to a moves-from-position query.
type MovesResult struct {
	FEN   string        `json:"fen"`
	Node  *NodeView     `json:"node"`
	Moves []MoveSummary `json:"moves"`
	Years []int         `json:"years"`
}

// Subtree returns the node at fen and its descendants down to maxDepth
// as a nested presentation structure. Children with no recorded game
// (unconfirmed previews) are filtered out. The boolean is false when
// the position is not in the tree.
func (t *Tree) Subtree(fen string, maxDepth int) (*NodeView, bool) {
	n, ok := t.NodeByFEN(fen)
	if !ok {
		t.log.Info().Str("fen", truncate(fen, 50)).Msg("position not in tree")
		return nil, false
	}
	return t.nodeView(n, maxDepth, 0), true
}

func (t *Tree) nodeView(n *Node, maxDepth, depth int) *NodeView {
	band := n.PerfBand(t.ownRepertoire)
	v := &NodeView{
		ID:           n.ID,
		FEN:          n.FEN,
		MoveSAN:      n.MoveSAN,
		ParentID:     n.ParentID,
		Games:        n.Games,
		Wins:         n.Wins,
		Draws:        n.Draws,
		Losses:       n.Losses,
		WinRate:      round2(n.WinRate()),
		Band:         band,
		Color:        band.Hex(),
		InRepertoire: n.InRepertoire,
	}
	if depth >= maxDepth || len(n.Children) == 0 {
		return v
	}
	v.Children = make(map[string]*NodeView)
	for uci, child := range n.Children {
		if child.Games < 1 {
			continue
		}
		v.Children[uci] = t.nodeView(child, maxDepth, depth+1)
	}
	return v
}

// MovesFromPosition returns a summary for every qualifying child move
// of the position at fen, combining per-child statistics with the
// parent's per-move tables. Moves are ordered by descending occurrence
// count ("most played"), not by statistical strength. The boolean is
// false when the position is not in the tree.
func (t *Tree) MovesFromPosition(fen string) (*MovesResult, bool) {
	n, ok := t.NodeByFEN(fen)
	if !ok {
		t.log.Info().Str("fen", truncate(fen, 50)).Msg("position not in tree")
		return nil, false
	}

	minGames, maxGames := math.MaxInt, 0
	qualifying := 0
	for _, child := range n.Children {
		if child.Games < 1 {
			continue
		}
		qualifying++
		if child.Games < minGames {
			minGames = child.Games
		}
		if child.Games > maxGames {
			maxGames = child.Games
		}
	}

	moves := make([]MoveSummary, 0, qualifying)
	for uci, child := range n.Children {
		if child.Games < 1 {
			continue
		}

		band := child.PerfBand(t.ownRepertoire)
		ms := MoveSummary{
			UCI:           uci,
			SAN:           child.MoveSAN,
			FEN:           child.FEN,
			NodeID:        child.ID,
			Games:         child.Games,
			Wins:          child.Wins,
			Draws:         child.Draws,
			Losses:        child.Losses,
			WinRate:       round2(child.WinRate()),
			Occurrences:   n.MoveCounts[uci],
			ChildrenCount: len(child.Children),
			Band:          band,
			Color:         band.Hex(),
			Thickness:     thickness(child.Games, minGames, maxGames),
		}
		if child.Games > 0 {
			ms.DrawRate = round1(float64(child.Draws) / float64(child.Games) * 100)
			ms.LossRate = round1(float64(child.Losses) / float64(child.Games) * 100)
		}
		if cnt := n.EloDiffCount[uci]; cnt > 0 {
			avg := round1(float64(n.EloDiffSum[uci]) / float64(cnt))
			ms.AvgEloDiff = &avg
		}
		if yc := yearCounts(n.MoveDates[uci]); len(yc) > 0 {
			ms.YearCounts = yc
		}
		moves = append(moves, ms)
	}

	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].Occurrences > moves[j].Occurrences
	})

	return &MovesResult{
		FEN:   fen,
		Node:  t.nodeView(n, 0, 0),
		Moves: moves,
		Years: allYears(n.MoveDates),
	}, true
}

// thickness linearly scales a child's game count between the sibling
// minimum and maximum into the 4..12 range, with a fixed mid value when
// all siblings tie.
func thickness(games, minGames, maxGames int) float64 {
	if maxGames <= minGames {
		return 6
	}
	return 4 + 8*float64(games-minGames)/float64(maxGames-minGames)
}

// yearFromDate extracts a plausible year from PGN-style "2024.01.15" or
// legacy "15.01.2024" dates.
func yearFromDate(date string) (int, bool) {
	var candidates []string
	if strings.Contains(date, ".") {
		parts := strings.Split(date, ".")
		candidates = append(candidates, parts[0], parts[len(parts)-1])
	} else if len(date) >= 4 {
		candidates = append(candidates, date[:4])
	}
	for _, c := range candidates {
		if y, err := strconv.Atoi(c); err == nil && y >= 1900 && y <= 2030 {
			return y, true
		}
	}
	return 0, false
}

func yearCounts(dates []string) map[int]int {
	counts := make(map[int]int)
	for _, d := range dates {
		if y, ok := yearFromDate(d); ok {
			counts[y]++
		}
	}
	return counts
}

// allYears collects the sorted set of years seen across all moves of a
// node, for sparkline axes.
func allYears(moveDates map[string][]string) []int {
	seen := make(map[int]struct{})
	for _, dates := range moveDates {
		for _, d := range dates {
			if y, ok := yearFromDate(d); ok {
				seen[y] = struct{}{}
			}
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
