// Package loader streams stored PGN files into an opening tree. The
// tree is rebuilt in memory from source game records on each load;
// nothing is persisted besides the line files themselves.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/rgrau/openingbook/internal/tree"
)

// Stats summarizes one load pass.
type Stats struct {
	FilesProcessed int
	GamesLoaded    int
	GamesSkipped   int
	SkipReasons    []string
}

// LoadDir ingests every PGN file (plain or zstd-compressed) in dir into
// the tree. Perspective resolution happens once per game before any
// mutation; skipped games are collected, not fatal.
func LoadDir(t *tree.Tree, dir string, log zerolog.Logger) (Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && isPGNFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		path := filepath.Join(dir, name)
		if err := loadFile(t, path, &stats, log); err != nil {
			// Games ingested before the parser gave up are kept; the
			// failure itself is accounted like any other skip.
			stats.SkipReasons = append(stats.SkipReasons, fmt.Sprintf("%s: %v", name, err))
			log.Warn().Err(err).Str("file", name).Msg("file load failed, continuing")
			continue
		}
		stats.FilesProcessed++
	}

	log.Info().
		Int("files", stats.FilesProcessed).
		Int("games", stats.GamesLoaded).
		Int("skipped", stats.GamesSkipped).
		Int("nodes", t.Size()).
		Msg("load complete")
	return stats, nil
}

func loadFile(t *tree.Tree, path string, stats *Stats, log zerolog.Logger) error {
	parser := pgn.Games(path)
	for game := range parser.Games {
		rec := recordFromGame(game, path)
		res := t.Resolve(rec)
		if res.Skipped() {
			stats.GamesSkipped++
			stats.SkipReasons = append(stats.SkipReasons, res.SkipReason)
			continue
		}
		if err := t.AddGame(rec, res); err != nil {
			// A bad record degrades to a skip; the rest of the file
			// still loads.
			stats.GamesSkipped++
			stats.SkipReasons = append(stats.SkipReasons, err.Error())
			if !errors.Is(err, tree.ErrNotInTree) {
				log.Warn().Err(err).Str("file", path).Msg("game failed to ingest, continuing")
			}
			continue
		}
		stats.GamesLoaded++
	}
	return parser.Err()
}

func recordFromGame(game *pgn.Game, source string) tree.GameRecord {
	return tree.GameRecord{
		White:    game.Tags["White"],
		Black:    game.Tags["Black"],
		WhiteElo: parseRating(game.Tags["WhiteElo"]),
		BlackElo: parseRating(game.Tags["BlackElo"]),
		Result:   game.Tags["Result"],
		Date:     game.Tags["Date"],
		StartFEN: game.Tags["FEN"],
		Source:   source,
		Moves:    game.Moves,
	}
}

// RebuildConfig describes the tree to rebuild from stored files.
type RebuildConfig struct {
	PlayerName    string
	Perspective   tree.Color
	OwnRepertoire bool
	LinesRoot     string // per-player PGN directories live under here
	Logger        zerolog.Logger
}

// Rebuild constructs a fresh tree from every stored file of the player.
// Used after a line replacement, when file identities changed and an
// in-place merge cannot be done safely.
func Rebuild(cfg RebuildConfig) (*tree.Tree, Stats, error) {
	t := tree.New(tree.Config{
		PlayerName:    cfg.PlayerName,
		Perspective:   cfg.Perspective,
		OwnRepertoire: cfg.OwnRepertoire,
		Logger:        cfg.Logger,
	})
	dir := filepath.Join(cfg.LinesRoot, cfg.PlayerName, "pgn")
	stats, err := LoadDir(t, dir, cfg.Logger)
	return t, stats, err
}

func isPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		base := name[:len(name)-4]
		return filepath.Ext(base) == ".pgn"
	}
	return false
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}
