package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eric2umeh/frontbill/internal/config"
	"github.com/eric2umeh/frontbill/internal/events"
	"github.com/eric2umeh/frontbill/internal/handler"
	"github.com/eric2umeh/frontbill/internal/identity"
	"github.com/eric2umeh/frontbill/internal/middleware"
	"github.com/eric2umeh/frontbill/internal/repository"
	"github.com/eric2umeh/frontbill/internal/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			return err
		}
		repo = pg
	} else {
		logger.Warn("no database URI configured, using the in-memory store; data is lost on shutdown")
		mem := repository.NewMemoryRepository()
		mem.SeedDemo()
		repo = mem
	}

	var authz service.Authorizer
	if cfg.IdentityAddress != "" {
		authz = identity.NewClient(cfg.IdentityAddress)
	}

	var publisher service.EventPublisher
	var publisherCloser interface{ Close() error }
	if cfg.KafkaBrokers != "" {
		p := events.NewPublisher(strings.Split(cfg.KafkaBrokers, ","))
		publisher = p
		publisherCloser = p
	}

	policy := service.Policy{
		CashVarianceHigh: cfg.CashVarianceHigh,
		LargeVarianceBps: cfg.LargeVarianceBps,
	}

	svc := service.NewService(repo, authz, publisher, policy)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: handler.NewRouter(h, logger),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", zap.String("address", cfg.RunAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if publisherCloser != nil {
			if err := publisherCloser.Close(); err != nil {
				logger.Error("close event publisher", zap.Error(err))
			}
		}

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
