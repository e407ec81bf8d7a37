package linestore_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rgrau/openingbook/internal/linestore"
)

func TestDirWriteListRoundTrip(t *testing.T) {
	dir := linestore.NewDir(t.TempDir(), zerolog.Nop())

	moves := []string{"e4", "e5", "Nf3", "Nc6", "Bb5"}
	id, err := dir.Write("white-repertoire", "", moves)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines, err := dir.List("white-repertoire")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0].ID != id {
		t.Errorf("id = %s, want %s", lines[0].ID, id)
	}
	if len(lines[0].Moves) != len(moves) {
		t.Fatalf("round-tripped %d moves, want %d: %v", len(lines[0].Moves), len(moves), lines[0].Moves)
	}
	for i, san := range moves {
		if lines[0].Moves[i] != san {
			t.Errorf("move %d = %s, want %s", i, lines[0].Moves[i], san)
		}
	}
}

func TestDirWriteCastlingRoundTrip(t *testing.T) {
	dir := linestore.NewDir(t.TempDir(), zerolog.Nop())

	moves := []string{"e4", "e5", "Nf3", "Nc6", "Bc4", "Bc5", "O-O"}
	if _, err := dir.Write("p", "", moves); err != nil {
		t.Fatalf("Write: %v", err)
	}
	lines, err := dir.List("p")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if got := lines[0].Moves[len(lines[0].Moves)-1]; got != "O-O" {
		t.Errorf("last move = %s, want O-O", got)
	}
}

func TestDirWriteRejectsIllegalMove(t *testing.T) {
	root := t.TempDir()
	dir := linestore.NewDir(root, zerolog.Nop())

	if _, err := dir.Write("p", "", []string{"e4", "e4"}); err == nil {
		t.Fatal("expected illegal move to fail the write")
	}

	// Nothing was written.
	entries, err := os.ReadDir(filepath.Join(root, "p", "pgn"))
	if err == nil && len(entries) != 0 {
		t.Errorf("found %d files after failed write", len(entries))
	}
}

func TestDirWriteTagsAndNumbering(t *testing.T) {
	root := t.TempDir()
	dir := linestore.NewDir(root, zerolog.Nop())

	id, err := dir.Write("jane", "", []string{"d4", "d5", "c4"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(id)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		`[White "jane"]`,
		`[Black "opening-trainer"]`,
		`[Result "*"]`,
		"1. d4 d5 2. c4 *",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("file missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "[FEN") {
		t.Error("standard start must not carry a FEN tag")
	}
}

func TestDirListMissingPlayer(t *testing.T) {
	dir := linestore.NewDir(t.TempDir(), zerolog.Nop())
	lines, err := dir.List("nobody")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("got %d lines for unknown player", len(lines))
	}
}
