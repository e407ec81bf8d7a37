package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rgrau/openingbook/internal/eco"
	"github.com/rgrau/openingbook/internal/httpapi"
	"github.com/rgrau/openingbook/internal/linestore"
	"github.com/rgrau/openingbook/internal/loader"
	"github.com/rgrau/openingbook/internal/logx"
	"github.com/rgrau/openingbook/internal/tree"
)

func main() {
	defaultLines := "./data/players"
	if env := os.Getenv("OPENINGBOOK_LINES"); env != "" {
		defaultLines = env
	}

	var (
		addr       = flag.String("addr", ":8017", "listen address")
		linesRoot  = flag.String("lines", defaultLines, "root of per-player line directories")
		player     = flag.String("player", tree.WhiteRepertoirePlayer, "player the tree is built for")
		color      = flag.String("color", "white", "perspective color (white or black)")
		repertoire = flag.Bool("repertoire", true, "repertoire mode (presence markers, no outcomes)")
		ecoDir     = flag.String("eco-dir", "", "directory with ECO .tsv files (empty = disabled)")
	)
	flag.Parse()

	logger := logx.NewLogger()

	perspective := tree.White
	if *color == "black" {
		perspective = tree.Black
	}

	t, stats, err := loader.Rebuild(loader.RebuildConfig{
		PlayerName:    *player,
		Perspective:   perspective,
		OwnRepertoire: *repertoire,
		LinesRoot:     *linesRoot,
		Logger:        logger.With().Str("component", "loader").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("load tree")
	}
	logger.Info().
		Int("files", stats.FilesProcessed).
		Int("games", stats.GamesLoaded).
		Int("skipped", stats.GamesSkipped).
		Int("nodes", t.Size()).
		Msg("tree loaded")
	for _, reason := range stats.SkipReasons {
		logger.Debug().Str("reason", reason).Msg("game skipped")
	}

	var ecoDB *eco.Database
	if *ecoDir != "" {
		ecoDB = eco.NewDatabase()
		if err := ecoDB.LoadDir(*ecoDir); err != nil {
			logger.Warn().Err(err).Str("dir", *ecoDir).Msg("failed to load ECO database")
			ecoDB = nil
		} else {
			logger.Info().Int("openings", ecoDB.Count()).Msg("ECO database loaded")
		}
	}

	lines := linestore.NewDir(*linesRoot, logger.With().Str("component", "linestore").Logger())

	srv := &http.Server{
		Addr: *addr,
		Handler: httpapi.NewRouter(t, lines, httpapi.Config{
			LinesRoot: *linesRoot,
			ECO:       ecoDB,
			Logger:    logger,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	logger.Info().Msg("shutdown complete")
}
