// Package main initializes and starts the practice server, setting up
// configuration, logging, seed data, stores, services, handlers, and TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/practiceserver/internal/certgen"
	"github.com/atinyakov/practiceserver/internal/config"
	"github.com/atinyakov/practiceserver/internal/db"
	"github.com/atinyakov/practiceserver/internal/logger"
	"github.com/atinyakov/practiceserver/internal/models"
	"github.com/atinyakov/practiceserver/internal/repository"
	"github.com/atinyakov/practiceserver/internal/rules"
	"github.com/atinyakov/practiceserver/internal/seed"
	"github.com/atinyakov/practiceserver/internal/server/handler/http"
	"github.com/atinyakov/practiceserver/internal/service"
	"github.com/atinyakov/practiceserver/internal/storage"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, log.Log); err != nil {
		log.Log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, options *config.Options, zapLogger *zap.Logger) error {
	public, protected, err := loadSeed(ctx, options, zapLogger)
	if err != nil {
		return err
	}

	// Stores.
	publicStore := storage.New()
	publicStore.Seed(public)
	protectedStore := storage.New()
	protectedStore.Seed(protected)

	tree, err := seed.LoadDocuments(options.JSONStoreDir)
	if err != nil {
		return fmt.Errorf("load jsonstore documents: %w", err)
	}
	documents := storage.NewDocument(tree)

	// Access rules.
	ruleSet := rules.Defaults()
	if options.RulesFile != "" {
		if ruleSet, err = rules.LoadFile(options.RulesFile); err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
	}
	evaluator := rules.NewEvaluator(ruleSet, publicStore)

	// Initialize business-logic services.
	authService := service.NewAuthService(protectedStore, options.Identity, options.HashSecret, zapLogger)
	collections := service.NewCollectionsService(publicStore, protectedStore, evaluator, zapLogger)
	toggles := service.NewToggles(options.Throttle, zapLogger)

	service.StartSessionCleaner(ctx, protectedStore,
		time.Duration(options.CleanupInterval),
		time.Duration(options.SessionTTL),
		zapLogger,
	)

	// Build the router with middleware and routes.
	router := http.NewRouter(http.Deps{
		Auth:        authService,
		Collections: collections,
		Documents:   documents,
		Toggles:     toggles,
		Logger:      zapLogger,
	})

	server := &nethttp.Server{
		Addr:              options.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if options.TLSEnabled() {
		tlsConfig, err := serverTLS(options)
		if err != nil {
			return err
		}
		server.TLSConfig = tlsConfig
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("starting server",
			zap.String("addr", options.Address),
			zap.Bool("tls", options.TLSEnabled()),
			zap.Int("public_records", public.Len()),
			zap.Int("protected_records", protected.Len()),
		)
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zapLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadSeed merges the embedded defaults, the seed database and seed files.
func loadSeed(ctx context.Context, options *config.Options, zapLogger *zap.Logger) (public, protected models.Dataset, err error) {
	src := seed.Sources{
		Embedded:       !options.NoDefaults,
		Collections:    options.SeedCollections,
		PublicFiles:    options.SeedFiles,
		ProtectedFiles: options.ProtectedSeedFiles,
	}

	var repo *repository.PostgresSeedRepository
	if options.DatabaseDSN != "" {
		conn, err := db.InitPostgres(ctx, options.DatabaseDSN)
		if err != nil {
			return public, protected, fmt.Errorf("cannot init database: %w", err)
		}
		defer conn.Close()
		repo = repository.NewPostgresSeedRepository(conn)
		src.Repository = repo
	}

	public, protected, err = seed.Load(ctx, src)
	if err != nil {
		return public, protected, fmt.Errorf("load seed: %w", err)
	}

	if options.StoreSeed && repo != nil {
		if err := repo.SaveSeed(ctx, public, protected); err != nil {
			return public, protected, fmt.Errorf("store seed: %w", err)
		}
		zapLogger.Info("seed stored in database",
			zap.Int("public_records", public.Len()),
			zap.Int("protected_records", protected.Len()),
		)
	}
	return public, protected, nil
}

// serverTLS loads the configured key pair or generates a self-signed one.
func serverTLS(options *config.Options) (*tls.Config, error) {
	var (
		cert tls.Certificate
		err  error
	)
	if options.SelfSigned {
		cert, err = certgen.SelfSigned(nil)
	} else {
		cert, err = tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load server TLS cert/key: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
