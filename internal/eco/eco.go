// Package eco provides ECO (Encyclopedia of Chess Openings) name
// lookup for annotating move summaries.
package eco

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/rgrau/openingbook/internal/rules"
)

// Opening is one ECO classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Database indexes openings by canonical position key.
type Database struct {
	byKey map[rules.PositionKey]Opening
}

// NewDatabase creates an empty database.
func NewDatabase() *Database {
	return &Database{byKey: make(map[rules.PositionKey]Opening)}
}

var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

// LoadDir loads every .tsv and .tsv.zst file from a directory.
func (db *Database) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	loaded := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".tsv.zst")) {
			continue
		}
		if err := db.LoadFile(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}
	return nil
}

// LoadFile loads a single TSV file (eco\tname\tmoves per line),
// optionally zstd-compressed.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		defer dec.Close()
		r = dec
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		key, err := keyForMoves(parts[2])
		if err != nil {
			// Skip unparseable lines silently.
			continue
		}
		db.byKey[key] = Opening{ECO: parts[0], Name: parts[1]}
	}
	return scanner.Err()
}

// keyForMoves replays a movetext like "1. e4 e5 2. Nf3" and returns the
// final position's key.
func keyForMoves(movetext string) (rules.PositionKey, error) {
	cleaned := moveNumberRegex.ReplaceAllString(movetext, "")
	pos := rules.StartingPosition()
	for _, san := range strings.Fields(cleaned) {
		if san == "" || san[0] == '$' || san[0] == '{' {
			continue
		}
		mv, err := rules.ParseMove(pos, san)
		if err != nil {
			return "", err
		}
		if err := rules.Apply(pos, mv); err != nil {
			return "", err
		}
	}
	return rules.Key(pos), nil
}

// Lookup returns the opening for a position key, or nil.
func (db *Database) Lookup(key rules.PositionKey) *Opening {
	if o, ok := db.byKey[key]; ok {
		return &o
	}
	return nil
}

// LookupFEN returns the opening for a FEN, or nil.
func (db *Database) LookupFEN(fen string) *Opening {
	return db.Lookup(rules.KeyFromFEN(fen))
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return len(db.byKey)
}
