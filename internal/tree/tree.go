// Package tree implements the position-indexed opening tree: game
// ingestion with transposition merging, win/draw/loss aggregation,
// presentation derivation, and the per-session learning state machine.
//
// A Tree is not safe for concurrent use; callers embedding it in a
// concurrent host must serialize access per instance.
package tree

import (
	"errors"
	"fmt"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/rgrau/openingbook/internal/rules"
)

var (
	// ErrNodeNotFound is returned by edit operations addressing an
	// unknown node identifier.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNotInTree is returned when a game's starting position has no
	// corresponding node, so the game cannot be merged.
	ErrNotInTree = errors.New("starting position not in tree")
)

// Config configures a Tree instance.
type Config struct {
	PlayerName    string
	Perspective   Color // which side the tree is built for
	OwnRepertoire bool  // repertoire mode: nodes are presence markers
	Logger        zerolog.Logger
}

// Tree owns every node of one player/perspective opening tree. It keeps
// two indexes over the same node set: by position key for ingestion
// merges and by identifier for interactive edits.
type Tree struct {
	playerName    string
	perspective   Color
	ownRepertoire bool

	root  *Node
	byKey map[rules.PositionKey]*Node
	byID  map[string]*Node

	mistakes map[string]int // session id -> mistake count

	log zerolog.Logger
}

// New creates a tree with a root pinned to the standard starting
// position.
func New(cfg Config) *Tree {
	if cfg.Perspective == "" {
		cfg.Perspective = White
	}
	root := newNode(rules.KeyFromFEN(rules.StartingFEN), rules.StartingFEN, "", "")
	root.InRepertoire = true

	t := &Tree{
		playerName:    cfg.PlayerName,
		perspective:   cfg.Perspective,
		ownRepertoire: cfg.OwnRepertoire,
		root:          root,
		byKey:         map[rules.PositionKey]*Node{root.Key: root},
		byID:          map[string]*Node{root.ID: root},
		mistakes:      make(map[string]int),
		log:           cfg.Logger,
	}
	t.log.Info().
		Str("player", cfg.PlayerName).
		Str("perspective", string(cfg.Perspective)).
		Bool("own_repertoire", cfg.OwnRepertoire).
		Msg("opening tree initialized")
	return t
}

// PlayerName returns the player the tree is built for.
func (t *Tree) PlayerName() string { return t.playerName }

// Perspective returns the color the tree's statistics represent.
func (t *Tree) Perspective() Color { return t.perspective }

// OwnRepertoire reports whether the tree is in repertoire mode.
func (t *Tree) OwnRepertoire() bool { return t.ownRepertoire }

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Size returns the number of nodes, root included.
func (t *Tree) Size() int { return len(t.byID) }

// NodeByID looks up a node by identifier.
func (t *Tree) NodeByID(id string) (*Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// NodeByFEN looks up a node by position, trying the normalized key
// first and the raw string as the degraded-key fallback.
func (t *Tree) NodeByFEN(fen string) (*Node, bool) {
	if n, ok := t.byKey[rules.KeyFromFEN(fen)]; ok {
		return n, true
	}
	n, ok := t.byKey[rules.PositionKey(fen)]
	return n, ok
}

// GameRecord is one parsed game handed to ingestion.
type GameRecord struct {
	White    string
	Black    string
	WhiteElo int
	BlackElo int
	Result   string // PGN result code: 1-0, 0-1, 1/2-1/2, *
	Date     string
	StartFEN string // "" means the standard starting position
	Source   string // originating record identifier, for provenance
	Moves    []pgn.Mv
}

// Resolve matches the record's headers against the tree's player and
// perspective.
func (t *Tree) Resolve(rec GameRecord) Resolution {
	return ResolvePerspective(rec.White, rec.Black, rec.Result, t.playerName, t.perspective)
}

// AddGame replays one game into the tree, merging transpositions by
// position key. The resolution must come from Resolve on the same
// record; a skipped resolution is a caller error and is ignored here
// with a warning.
//
// A move that fails to apply aborts the remainder of that game only:
// everything merged up to the failure point is retained.
func (t *Tree) AddGame(rec GameRecord, res Resolution) error {
	if res.Skipped() {
		t.log.Warn().Str("reason", res.SkipReason).Str("source", rec.Source).
			Msg("skipped game handed to AddGame")
		return nil
	}

	pos, err := t.startPosition(rec.StartFEN)
	if err != nil {
		return err
	}
	cur, ok := t.byKey[rules.Key(pos)]
	if !ok {
		t.log.Warn().Str("source", rec.Source).Str("start_fen", rec.StartFEN).
			Msg("game starts outside the tree, skipping")
		return fmt.Errorf("%w: %s", ErrNotInTree, rec.StartFEN)
	}

	playerElo, opponentElo := rec.WhiteElo, rec.BlackElo
	if res.Color == Black {
		playerElo, opponentElo = rec.BlackElo, rec.WhiteElo
	}

	for i, mv := range rec.Moves {
		san := rules.SAN(pos, mv)
		uci := rules.UCI(mv)
		moverIsWhite := rules.WhiteToMove(pos)

		if err := rules.Apply(pos, mv); err != nil {
			t.log.Error().Err(err).
				Int("move_index", i+1).
				Str("move", uci).
				Str("source", rec.Source).
				Msg("move failed to apply, dropping rest of game")
			break
		}

		child := t.mergeChild(cur, uci, san, pos, moverIsWhite)
		child.recordGame(res.Result, res.SkipStats, t.ownRepertoire)
		child.SourceFiles[rec.Source] = struct{}{}

		cur.MoveCounts[uci]++
		if !res.SkipStats {
			cur.EloDiffSum[uci] += playerElo - opponentElo
			cur.EloDiffCount[uci]++
			cur.MoveDates[uci] = append(cur.MoveDates[uci], rec.Date)
		}

		cur = child
	}
	return nil
}

// AddLine ingests a SAN move sequence starting at startFEN as a
// repertoire-style record (no outcome). Used for incremental updates
// after a single confirmed line was written.
func (t *Tree) AddLine(startFEN string, movesSAN []string, source string) error {
	pos, err := t.startPosition(startFEN)
	if err != nil {
		return err
	}
	moves := make([]pgn.Mv, 0, len(movesSAN))
	replay := rules.Clone(pos)
	for _, san := range movesSAN {
		mv, err := rules.ParseMove(replay, san)
		if err != nil {
			return err
		}
		if err := rules.Apply(replay, mv); err != nil {
			return fmt.Errorf("apply %q: %w", san, err)
		}
		moves = append(moves, mv)
	}

	rec := GameRecord{
		White:    t.playerName,
		Black:    "opening-trainer",
		Result:   "*",
		StartFEN: startFEN,
		Source:   source,
		Moves:    moves,
	}
	return t.AddGame(rec, Resolution{Color: t.perspective, Result: ResultUnknown, SkipStats: true})
}

// mergeChild looks up or creates the node for the position now on the
// board and registers it as cur's child under uci. Re-registering an
// existing mapping is harmless.
func (t *Tree) mergeChild(cur *Node, uci, san string, pos *pgn.GameState, moverIsWhite bool) *Node {
	key := rules.Key(pos)
	child, ok := t.byKey[key]
	if !ok {
		child = newNode(key, pos.ToFEN(), san, cur.ID)
		child.MoverColor = White
		if !moverIsWhite {
			child.MoverColor = Black
		}
		// A node belongs to the repertoire when its move was played by
		// the trainee's side, or unconditionally in repertoire mode.
		child.InRepertoire = t.ownRepertoire || child.MoverColor == t.perspective
		t.byKey[key] = child
		t.byID[child.ID] = child
	}
	cur.Children[uci] = child
	return child
}

func (t *Tree) startPosition(startFEN string) (*pgn.GameState, error) {
	if startFEN == "" {
		return rules.StartingPosition(), nil
	}
	pos, err := rules.FromFEN(startFEN)
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// MoveSequence reconstructs the SAN move list from the root to the
// given node by walking parent links. For positions reached via more
// than one move order this names the first-seen order only.
func (t *Tree) MoveSequence(nodeID string) ([]string, error) {
	n, ok := t.byID[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	var rev []string
	for n != nil && n.MoveSAN != "" {
		rev = append(rev, n.MoveSAN)
		parent, ok := t.byID[n.ParentID]
		if !ok {
			return nil, fmt.Errorf("broken parent link at node %s", n.ID)
		}
		n = parent
	}
	seq := make([]string, len(rev))
	for i, s := range rev {
		seq[len(rev)-1-i] = s
	}
	return seq, nil
}

// SourceFilesForPosition returns the record identifiers that
// contributed to the node at fen.
func (t *Tree) SourceFilesForPosition(fen string) []string {
	n, ok := t.NodeByFEN(fen)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.SourceFiles))
	for f := range n.SourceFiles {
		out = append(out, f)
	}
	return out
}
