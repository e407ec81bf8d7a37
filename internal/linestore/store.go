// Package linestore persists repertoire lines as one PGN file per
// maximal line and implements the atomic replacement protocol that
// keeps the stored set free of lines that are strict prefixes of a
// longer stored line.
package linestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/rgrau/openingbook/internal/rules"
)

// Line is one stored repertoire line.
type Line struct {
	ID    string   // store-unique identifier (file path for Dir)
	Moves []string // SAN tokens from the start position
}

// FS is the filesystem surface consumed by the replacement protocol.
// Implementations perform the actual I/O; the protocol itself lives in
// Replace.
type FS interface {
	List(player string) ([]Line, error)
	Write(player, startFEN string, moves []string) (id string, err error)
	Rename(id, newID string) error
	Delete(id string) error
}

// Dir stores lines as PGN files under <root>/<player>/pgn/.
type Dir struct {
	root string
	log  zerolog.Logger
}

// NewDir creates a directory-backed line store.
func NewDir(root string, log zerolog.Logger) *Dir {
	return &Dir{root: root, log: log}
}

func (d *Dir) playerDir(player string) string {
	return filepath.Join(d.root, player, "pgn")
}

// List returns every stored line for the player. Lines are read back
// from file content, not from file names, so SAN tokens containing
// separators (castling) round-trip correctly.
func (d *Dir) List(player string) ([]Line, error) {
	dir := d.playerDir(player)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lines []Line
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pgn" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		moves, err := readLineMoves(path)
		if err != nil {
			d.log.Warn().Err(err).Str("file", e.Name()).Msg("unreadable line file, skipping")
			continue
		}
		lines = append(lines, Line{ID: path, Moves: moves})
	}
	return lines, nil
}

// readLineMoves parses the first game of a line file and regenerates
// its SAN move tokens by replay.
func readLineMoves(path string) ([]string, error) {
	parser := pgn.Games(path)
	var game *pgn.Game
	for g := range parser.Games {
		game = g
		parser.Stop()
		break
	}
	if err := parser.Err(); err != nil {
		return nil, err
	}
	if game == nil {
		return nil, fmt.Errorf("no game in %s", path)
	}

	pos := rules.StartingPosition()
	if fen := game.Tags["FEN"]; fen != "" {
		p, err := rules.FromFEN(fen)
		if err != nil {
			return nil, err
		}
		pos = p
	}

	moves := make([]string, 0, len(game.Moves))
	for _, mv := range game.Moves {
		moves = append(moves, rules.SAN(pos, mv))
		if err := rules.Apply(pos, mv); err != nil {
			return nil, fmt.Errorf("replay %s: %w", path, err)
		}
	}
	return moves, nil
}

// Write validates the move sequence against the board rules and writes
// it as a new PGN artifact, returning its identifier. An illegal move
// fails before anything is written.
func (d *Dir) Write(player, startFEN string, moves []string) (string, error) {
	movetext, err := buildMovetext(startFEN, moves)
	if err != nil {
		return "", err
	}

	dir := d.playerDir(player)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	now := time.Now()
	name := fmt.Sprintf("%s_opening_%s_%d.pgn", player, now.Format("20060102_150405"), now.UnixNano()%1e6)
	path := filepath.Join(dir, name)

	var b strings.Builder
	writeTag := func(k, v string) { fmt.Fprintf(&b, "[%s %q]\n", k, v) }
	writeTag("Event", "Opening Training")
	writeTag("Site", "Local")
	writeTag("Date", now.Format("2006.01.02"))
	writeTag("Round", "1")
	writeTag("White", player)
	writeTag("Black", "opening-trainer")
	writeTag("Result", "*")
	writeTag("WhiteElo", "0")
	writeTag("BlackElo", "0")
	if startFEN != "" && startFEN != rules.StartingFEN {
		writeTag("SetUp", "1")
		writeTag("FEN", startFEN)
	}
	b.WriteString("\n")
	b.WriteString(movetext)
	b.WriteString(" *\n")

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", err
	}
	d.log.Info().Str("file", name).Int("moves", len(moves)).Msg("line written")
	return path, nil
}

// buildMovetext validates and numbers a SAN sequence. Returns an error
// naming legal moves when a token is illegal.
func buildMovetext(startFEN string, moves []string) (string, error) {
	pos := rules.StartingPosition()
	moveNum := 1
	if startFEN != "" && startFEN != rules.StartingFEN {
		p, err := rules.FromFEN(startFEN)
		if err != nil {
			return "", err
		}
		pos = p
		moveNum = fullmoveFromFEN(startFEN)
	}

	var b strings.Builder
	for i, san := range moves {
		whiteToMove := rules.WhiteToMove(pos)
		mv, err := rules.ParseMove(pos, san)
		if err != nil {
			return "", fmt.Errorf("move %d: %w", i+1, err)
		}
		canonical := rules.SAN(pos, mv)
		if err := rules.Apply(pos, mv); err != nil {
			return "", fmt.Errorf("move %d (%s): %w", i+1, san, err)
		}

		if i > 0 {
			b.WriteString(" ")
		}
		if whiteToMove {
			fmt.Fprintf(&b, "%d. %s", moveNum, canonical)
		} else {
			if i == 0 {
				fmt.Fprintf(&b, "%d... %s", moveNum, canonical)
			} else {
				b.WriteString(canonical)
			}
			moveNum++
		}
	}
	return b.String(), nil
}

func fullmoveFromFEN(fen string) int {
	parts := strings.Fields(fen)
	if len(parts) == 6 {
		var n int
		if _, err := fmt.Sscanf(parts[5], "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// Rename moves a stored artifact to a new identifier.
func (d *Dir) Rename(id, newID string) error {
	return os.Rename(id, newID)
}

// Delete removes a stored artifact.
func (d *Dir) Delete(id string) error {
	return os.Remove(id)
}
