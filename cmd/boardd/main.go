// Command boardd runs the rescue board as a standalone daemon: it builds
// the board with its collaborators, reconciles against the configured
// remote store at startup, and serves the operator status API until
// terminated.
//
// Without a real API client wired in, the daemon runs against an
// in-memory store; the board package is designed to be embedded by the
// full bot, which injects its own remote.Store, chat delivery and
// system-name resolver.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mfreire/go-rescue-board/internal/board"
	"github.com/mfreire/go-rescue-board/internal/config"
	"github.com/mfreire/go-rescue-board/internal/domain"
	httpapi "github.com/mfreire/go-rescue-board/internal/http"
	"github.com/mfreire/go-rescue-board/internal/http/handlers"
	"github.com/mfreire/go-rescue-board/internal/notify"
	"github.com/mfreire/go-rescue-board/internal/observability"
	"github.com/mfreire/go-rescue-board/internal/remote"
	"github.com/mfreire/go-rescue-board/internal/repo"
	"github.com/mfreire/go-rescue-board/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "boardd",
		Short:        "Rescue board daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("boardd exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	archive := repo.NewArchive(db)

	store := remote.NewMemoryStore()
	notifier := notify.New(notify.LogDelivery{}, cfg.NotifyRPS, cfg.NotifyBurst)

	b := board.New(board.Options{
		Store:    store,
		Notifier: notifier,
		Archive:  archive,
		Config:   cfg.Board,
		// Standalone mode has no system-name service; names pass through
		// unconfirmed.
		Systems: board.SystemResolverFunc(func(_ context.Context, name string) (domain.StarSystem, error) {
			return domain.StarSystem{Name: name}, nil
		}),
	})
	defer b.Stop()

	if _, err := b.Sync(ctx); err != nil {
		// Degraded start: the board serves local state until the next sync.
		log.Warn().Err(err).Msg("startup reconciliation failed")
	}
	b.StartPaperworkSweep()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, handlers.New(b, archive), cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("status API listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
