// Command querygrid serves the upload page and processing API.
//
// main stays tiny and delegates to run(); the database constructor and the
// listener are injected through Deps so tests drive the whole wiring without
// binding a port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"querygrid/internal/app"
	"querygrid/internal/config"
	"querygrid/internal/metrics"
	"querygrid/internal/pipeline"
	"querygrid/internal/report"
	"querygrid/internal/storage"
	"querygrid/internal/webui"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	startupPingTimeout = 5 * time.Second
	shutdownTimeout    = 15 * time.Second
)

// Deps holds the side effects run needs.
type Deps struct {
	OpenDB func(ctx context.Context, c *config.Config) (storage.Database, error)
	Listen func(srv *http.Server) error
}

func defaultDeps() Deps {
	return Deps{
		OpenDB: app.OpenDatabase,
		Listen: func(srv *http.Server) error { return srv.ListenAndServe() },
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer, deps Deps) error {
	fs := flag.NewFlagSet("querygrid", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg, err := config.LoadFromArgs(fs, getenv, args)
	if err != nil {
		return err
	}
	if app.ReportIssues(stderr, config.Validate(cfg)) {
		return errors.New("configuration is invalid")
	}

	logger, logCloser, err := app.NewLogger(stderr, cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	metricsHandler, err := app.SetupMetrics(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := metrics.Flush(); err != nil {
			logger.Printf("metrics: flush error: %v", err)
		}
	}()

	db, err := deps.OpenDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// A failed ping is logged but does not stop the service; uploads report
	// 503 until the database comes back.
	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	if err := db.Ping(pingCtx); err != nil {
		logger.Printf("startup: failed to connect to database (%s): %v", cfg.DBDriver, err)
	} else {
		logger.Printf("startup: database connection successful (%s)", cfg.DBDriver)
	}
	cancel()

	var (
		store   pipeline.ReportStore
		reports webui.Reports
	)
	if cfg.ReportsDB != "" {
		s, err := report.Open(cfg.ReportsDB)
		if err != nil {
			return err
		}
		defer s.Close()
		store, reports = s, s
	}

	proc, err := app.NewProcessor(cfg, db, store, logger)
	if err != nil {
		return err
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	server := webui.NewServer(webui.Config{
		MaxFileSize:    cfg.MaxFileSize,
		RequestTimeout: cfg.RequestTimeout,
		APIKey:         cfg.APIKey,
		AllowedHosts:   cfg.AllowedHosts,
		CORSOrigins:    cfg.CORSOrigins,
		Metrics:        metricsHandler,
	}, proc, db, reports, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s", srv.Addr)
		if err := deps.Listen(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Getenv, os.Stderr, defaultDeps())
	stop()
	if err != nil {
		log.Fatal(err)
	}
}
