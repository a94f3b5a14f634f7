// Package main запускает HTTP-сервер ассистента выкупа заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iva2004/alina-bot/internal/config"
	"github.com/iva2004/alina-bot/internal/dialog"
	"github.com/iva2004/alina-bot/internal/handler"
	"github.com/iva2004/alina-bot/internal/middleware"
	"github.com/iva2004/alina-bot/internal/notify"
	"github.com/iva2004/alina-bot/internal/repository"
	"github.com/iva2004/alina-bot/internal/resolver"
	"github.com/iva2004/alina-bot/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	resolverClient := resolver.NewClient(cfg.ResolverAddress)
	notifyClient := notify.NewClient(cfg.NotifyAddress, cfg.NotifyToken)

	svc := service.NewService(repo, notifyClient, resolverClient, dialog.NewMemoryStore(), logger, cfg.SuperAdminID)
	defer svc.Close()

	webhookAuth := middleware.NewWebhookAuth(cfg.WebhookSecret)
	h := handler.NewHandler(svc, notifyClient, logger, webhookAuth)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting assistant server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
