package loader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rgrau/openingbook/internal/loader"
	"github.com/rgrau/openingbook/internal/rules"
	"github.com/rgrau/openingbook/internal/tree"
)

const samplePGN = `[Event "Test"]
[Site "Local"]
[Date "2024.03.10"]
[Round "1"]
[White "Jane_Doe"]
[Black "Opponent_One"]
[Result "1-0"]
[WhiteElo "2100"]
[BlackElo "2050"]

1. e4 e5 2. Nf3 Nc6 1-0

[Event "Test"]
[Site "Local"]
[Date "2024.03.11"]
[Round "2"]
[White "Opponent_Two"]
[Black "Jane_Doe"]
[Result "0-1"]
[WhiteElo "2000"]
[BlackElo "2100"]

1. d4 d5 0-1
`

func writePGN(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writePGN(t, dir, "games.pgn", samplePGN)
	writePGN(t, dir, "notes.txt", "not a pgn")

	tr := tree.New(tree.Config{
		PlayerName:  "Jane_Doe",
		Perspective: tree.White,
		Logger:      zerolog.Nop(),
	})

	stats, err := loader.LoadDir(tr, dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if stats.FilesProcessed != 1 {
		t.Errorf("files = %d, want 1 (non-pgn ignored)", stats.FilesProcessed)
	}
	// The player is black in the second game; a white-perspective tree
	// skips it.
	if stats.GamesLoaded != 1 {
		t.Errorf("loaded = %d, want 1", stats.GamesLoaded)
	}
	if stats.GamesSkipped != 1 {
		t.Errorf("skipped = %d, want 1", stats.GamesSkipped)
	}
	if len(stats.SkipReasons) != 1 {
		t.Errorf("skip reasons = %v", stats.SkipReasons)
	}

	// Root + 4 moves of the first game.
	if tr.Size() != 5 {
		t.Errorf("tree size = %d, want 5", tr.Size())
	}

	res, ok := tr.MovesFromPosition(rules.StartingFEN)
	if !ok {
		t.Fatal("starting position missing")
	}
	if len(res.Moves) != 1 || res.Moves[0].SAN != "e4" {
		t.Errorf("moves from start = %+v", res.Moves)
	}
	if res.Moves[0].Wins != 1 {
		t.Errorf("e4 wins = %d, want 1", res.Moves[0].Wins)
	}
	if res.Moves[0].AvgEloDiff == nil || *res.Moves[0].AvgEloDiff != 50 {
		t.Errorf("avg elo diff = %v, want 50", res.Moves[0].AvgEloDiff)
	}
}

func TestLoadDirDegradesPerGame(t *testing.T) {
	dir := t.TempDir()
	// The first game's FEN tag is unparseable, so its ingestion fails;
	// the valid game after it must still load.
	writePGN(t, dir, "games.pgn", `[Event "Test"]
[Site "Local"]
[Date "2024.03.10"]
[Round "1"]
[White "Jane_Doe"]
[Black "Opponent_One"]
[Result "1-0"]
[FEN "this is not a position"]

1. e4 e5 1-0

[Event "Test"]
[Site "Local"]
[Date "2024.03.11"]
[Round "2"]
[White "Jane_Doe"]
[Black "Opponent_Two"]
[Result "1-0"]

1. d4 d5 1-0
`)

	tr := tree.New(tree.Config{
		PlayerName:  "Jane_Doe",
		Perspective: tree.White,
		Logger:      zerolog.Nop(),
	})
	stats, err := loader.LoadDir(tr, dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if stats.GamesLoaded != 1 {
		t.Errorf("loaded = %d, want 1", stats.GamesLoaded)
	}
	if stats.GamesSkipped != 1 {
		t.Errorf("skipped = %d, want 1", stats.GamesSkipped)
	}
	if len(stats.SkipReasons) != 1 {
		t.Errorf("skip reasons = %v, want one entry", stats.SkipReasons)
	}
	// Root + d4 + d5 from the surviving game.
	if tr.Size() != 3 {
		t.Errorf("tree size = %d, want 3", tr.Size())
	}
}

func TestLoadDirMissingDirectory(t *testing.T) {
	tr := tree.New(tree.Config{
		PlayerName:  "Jane_Doe",
		Perspective: tree.White,
		Logger:      zerolog.Nop(),
	})
	stats, err := loader.LoadDir(tr, filepath.Join(t.TempDir(), "nope"), zerolog.Nop())
	if err != nil {
		t.Fatalf("missing dir should not error, got %v", err)
	}
	if stats.FilesProcessed != 0 {
		t.Errorf("files = %d, want 0", stats.FilesProcessed)
	}
}

func TestRebuild(t *testing.T) {
	root := t.TempDir()
	playerDir := filepath.Join(root, "white-repertoire", "pgn")
	if err := os.MkdirAll(playerDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePGN(t, playerDir, "line1.pgn", `[Event "Opening Training"]
[Site "Local"]
[Date "2024.01.01"]
[Round "1"]
[White "white-repertoire"]
[Black "opening-trainer"]
[Result "*"]

1. e4 e5 2. Nf3 *
`)

	tr, stats, err := loader.Rebuild(loader.RebuildConfig{
		PlayerName:    "white-repertoire",
		Perspective:   tree.White,
		OwnRepertoire: true,
		LinesRoot:     root,
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if stats.GamesLoaded != 1 {
		t.Errorf("loaded = %d, want 1", stats.GamesLoaded)
	}
	if tr.Size() != 4 {
		t.Errorf("tree size = %d, want 4", tr.Size())
	}
	// Repertoire mode: presence markers only.
	res, ok := tr.MovesFromPosition(rules.StartingFEN)
	if !ok {
		t.Fatal("starting position missing")
	}
	if res.Moves[0].Games != 1 || res.Moves[0].Wins != 0 {
		t.Errorf("repertoire move stats = %+v", res.Moves[0])
	}
}
