// Command ingest batch-builds an opening tree from a directory of PGN
// files and prints a summary plus a depth-limited rendering of the
// most-played lines.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/rgrau/openingbook/internal/loader"
	"github.com/rgrau/openingbook/internal/logx"
	"github.com/rgrau/openingbook/internal/tree"
)

func main() {
	var (
		dir         = flag.String("dir", "", "directory of PGN files (supports .pgn.zst)")
		player      = flag.String("player", "", "player the tree is built for")
		color       = flag.String("color", "white", "perspective color (white or black)")
		repertoire  = flag.Bool("repertoire", false, "repertoire mode")
		maxDepth    = flag.Int("depth", 3, "tree rendering depth")
		maxChildren = flag.Int("children", 5, "children shown per node")
	)
	flag.Parse()

	if *dir == "" || *player == "" {
		fmt.Fprintln(os.Stderr, "Usage: ingest -dir <pgn-dir> -player <name> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger()

	perspective := tree.White
	if *color == "black" {
		perspective = tree.Black
	}

	t := tree.New(tree.Config{
		PlayerName:    *player,
		Perspective:   perspective,
		OwnRepertoire: *repertoire,
		Logger:        logger,
	})

	stats, err := loader.LoadDir(t, *dir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("load failed")
	}

	logger.Info().
		Int("files", stats.FilesProcessed).
		Int("games", stats.GamesLoaded).
		Int("skipped", stats.GamesSkipped).
		Int("nodes", t.Size()).
		Msg("ingest complete")

	for _, reason := range stats.SkipReasons {
		logger.Debug().Str("reason", reason).Msg("game skipped")
	}

	printTree(t.Root(), 0, *maxDepth, *maxChildren)
}

// printTree renders the tree to stdout, children ordered by game count.
func printTree(n *tree.Node, depth, maxDepth, maxChildren int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	label := n.MoveSAN
	if label == "" {
		label = "(start)"
	}
	fmt.Printf("%s%s  games=%d win%%=%.1f\n", indent, label, n.Games, n.WinRate())

	if depth >= maxDepth {
		return
	}

	children := make([]*tree.Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Games > 0 {
			children = append(children, c)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Games > children[j].Games })

	for i, c := range children {
		if i >= maxChildren {
			fmt.Printf("%s  ...\n", indent)
			break
		}
		printTree(c, depth+1, maxDepth, maxChildren)
	}
}
