package cmd

import (
	"BUREAU/auth"
	"BUREAU/config"
	"BUREAU/controllers/authctl"
	"BUREAU/controllers/dashboard"
	"BUREAU/controllers/detections"
	"BUREAU/controllers/persons"
	"BUREAU/metrics"
	"BUREAU/routes"
	"BUREAU/services/detector"
	"BUREAU/services/events"
	"BUREAU/services/importer"
	"BUREAU/services/learning"
	"BUREAU/services/live"
	"BUREAU/services/notify"
	"BUREAU/services/storage"
	"BUREAU/services/tracking"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("port", "", "Port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Accounts
	if err := authctl.SeedAdmin(db, cfg.AdminPassword, log); err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	}

	// 2. Collaborators
	m := metrics.New()
	store, err := storage.New(cfg, log.Named("storage"))
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}
	faces := detector.New(cfg.FaceModelsDir, log.Named("detector"))
	hub := live.NewHub(cfg.FrontendURL, log.Named("live"))
	go hub.Run(ctx)

	sinks := events.Multi{hub}
	if cfg.MQTT.Enabled() {
		publisher, err := events.NewMQTTPublisher(cfg.MQTT, cfg.ExternalTimeout, log.Named("mqtt"))
		if err != nil {
			log.Warn("mqtt disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			sinks = append(sinks, publisher)
		}
	}

	fetcher := storage.NewFetcher(cfg.UploadDir, &http.Client{Timeout: cfg.ExternalTimeout})
	learner := learning.New(db, faces, fetcher, learning.Options{
		StoredWeight: cfg.EncodingWeight,
		Timeout:      cfg.ExternalTimeout,
		Metrics:      m,
	}, log.Named("learning"))

	tracker := tracking.New(tracking.Deps{
		DB:             db,
		Store:          store,
		Detector:       faces,
		Notifier:       notify.New(cfg.NotifyURL, cfg.ExternalTimeout, log.Named("notify")),
		Learner:        learner,
		Sink:           sinks,
		Metrics:        m,
		Log:            log.Named("tracking"),
		MatchThreshold: cfg.MatchThreshold,
		Timeout:        cfg.ExternalTimeout,
	})

	// 3. Background import
	if cfg.ImportEnabled {
		im := newImporter(db, cfg, m, log)
		if err := im.Start(ctx, cfg.ImportInterval); err != nil {
			return err
		}
		defer im.Stop()
	}

	// 4. HTTP
	issuer := auth.NewTokenIssuer(cfg.JWTKey, cfg.AccessTokenExpire, cfg.RefreshTokenExpire)
	uploadDir := ""
	if !store.Remote() {
		uploadDir = cfg.UploadDir
	}
	router := routes.Setup(routes.Deps{
		DB:                 db,
		Issuer:             issuer,
		Metrics:            m,
		Log:                log.Named("http"),
		FrontendURL:        cfg.FrontendURL,
		UploadDir:          uploadDir,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Auth:               &authctl.Controller{DB: db, Issuer: issuer, Log: log.Named("auth")},
		Persons:            &persons.Controller{DB: db, Store: store, Detector: faces, Log: log.Named("persons"), Timeout: cfg.ExternalTimeout},
		Detections:         &detections.Controller{Tracking: tracker, Hub: hub, Log: log.Named("detections")},
		Dashboard:          dashboard.New(db, store, cfg.UploadDir, cfg.StatsCacheTTL, log.Named("dashboard")),
	})

	return listen(ctx, cfg, router, log)
}

func newImporter(db *gorm.DB, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *importer.Importer {
	return importer.New(db, []importer.Source{importer.MockSource{}}, cfg.ExternalTimeout, m, log.Named("importer"))
}

func listen(ctx context.Context, cfg *config.Config, handler http.Handler, log *zap.Logger) error {
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
