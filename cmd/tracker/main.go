// Package main wires together the tracker service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/applytrail/tracker/internal/api"
	"github.com/applytrail/tracker/internal/app"
	"github.com/applytrail/tracker/internal/clock/system"
	"github.com/applytrail/tracker/internal/config"
	"github.com/applytrail/tracker/internal/logging"
	"github.com/applytrail/tracker/internal/mail/gmail"
	"github.com/applytrail/tracker/internal/metrics"
	pubsubpublisher "github.com/applytrail/tracker/internal/publisher/pubsub"
	"github.com/applytrail/tracker/internal/reconcile"
	"github.com/applytrail/tracker/internal/scrape"
	"github.com/applytrail/tracker/internal/snapshot/gcs"
	"github.com/applytrail/tracker/internal/snapshot/local"
	memoryStorage "github.com/applytrail/tracker/internal/storage/memory"
	"github.com/applytrail/tracker/internal/storage/postgres"
	"github.com/applytrail/tracker/internal/tracker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, ready, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}

	opts := app.Options{Blobs: blobs}

	if cfg.PubSub.Enabled {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := psClient.Close(); closeErr != nil {
				logger.Warn("pubsub client close failed", zap.Error(closeErr))
			}
		}()
		opts.Publisher = pubsubpublisher.New(psClient)
		opts.Topic = cfg.PubSub.TopicName
	}

	var poller *reconcile.Poller
	if cfg.Gmail.Enabled {
		source, err := gmail.NewSource(ctx, gmail.Config{
			CredentialsFile: cfg.Gmail.CredentialsFile,
			TokenFile:       cfg.Gmail.TokenFile,
			MaxResults:      cfg.Gmail.MaxResults,
		})
		if err != nil {
			logger.Fatal("gmail source init failed", zap.Error(err))
		}
		matcher := reconcile.NewMatcher(source, store.Store, cfg.Gmail.Query, logger.Named("reconcile"))
		opts.Matcher = matcher
		poller = reconcile.NewPoller(matcher, cfg.Reconcile.Schedule, cfg.Reconcile.PassTimeout(), logger.Named("poller"))
	}

	scrapeCfg := scrape.Config{
		ListingURL:          cfg.LinkedIn.ListingURL,
		MaxPages:            cfg.Scrape.MaxPages,
		MaxScrollIterations: cfg.Scrape.MaxScrollIterations,
		ScrollSettleDelay:   cfg.Scrape.ScrollSettleDelay(),
		PaginationWait:      cfg.Scrape.PaginationWait(),
		PaginationPoll:      cfg.Scrape.PaginationPoll(),
		ArchiveSnapshots:    cfg.Scrape.ArchiveSnapshots,
	}
	sessions := func(context.Context) (app.ScrapeSession, error) {
		return scrape.NewSession(scrape.SessionConfig{
			UserAgent:   cfg.LinkedIn.UserAgent,
			Headless:    cfg.LinkedIn.Headless,
			UserDataDir: cfg.LinkedIn.UserDataDir,
			OpTimeout:   cfg.Scrape.OpTimeout(),
			LoginURL:    cfg.LinkedIn.LoginURL,
			Email:       cfg.LinkedIn.Email,
			Password:    cfg.LinkedIn.Password,
		}, logger.Named("session"))
	}

	service := app.NewService(sessions, store.Store, system.New(), scrapeCfg, opts, logger.Named("app"))
	apiServer := api.NewServer(service, ready, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if poller != nil {
		if err := poller.Start(ctx); err != nil {
			logger.Fatal("reconcile poller start failed", zap.Error(err))
		}
		defer poller.Stop()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// boundStore pairs a tracker.Store with its lifecycle hooks.
type boundStore struct {
	Store tracker.Store
	close func()
}

func (b boundStore) Close() {
	if b.close != nil {
		b.close()
	}
}

func buildStore(ctx context.Context, cfg config.Config) (boundStore, api.Readiness, error) {
	if cfg.DB.InMemory {
		return boundStore{Store: memoryStorage.NewApplicationStore()}, nil, nil
	}
	pg, err := postgres.NewApplicationStore(ctx, postgres.ApplicationStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return boundStore{}, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return boundStore{}, nil, err
	}
	return boundStore{Store: pg, close: pg.Close}, pg.Ping, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (tracker.BlobStore, error) {
	if !cfg.Scrape.ArchiveSnapshots {
		return nil, nil
	}
	switch cfg.Snapshot.Backend {
	case "local":
		return local.New(local.Config{BaseDir: cfg.Snapshot.LocalDir})
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init: %w", err)
		}
		return gcs.New(client, gcs.Config{
			Bucket: cfg.Snapshot.GCSBucket,
			Prefix: cfg.Snapshot.Prefix,
		})
	case "memory":
		return memoryStorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}
