package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neighborsos/internal/analytics"
	"neighborsos/internal/factory"
	"neighborsos/internal/handler"
	"neighborsos/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, server)
}

// setupRouter wires the handlers on top of the factory's services.
func setupRouter(f *factory.Factory) http.Handler {
	cfg := f.Config()

	// Fall back to the no-op recorder when no analytics store is
	// configured; f.Sink() is a concrete pointer, so assigning it nil
	// to the interface would leave a typed-nil receiver.
	var recorder handler.AbuseRecorder = analytics.NopSink{}
	if sink := f.Sink(); sink != nil {
		recorder = sink
	}

	marketplaceHandler := handler.NewMarketplaceHandler(
		f.MarketplaceService(),
		f.CharityService(),
		f.ClaimLimiter(),
		recorder,
	)
	emailHandler := handler.NewEmailHandler(
		f.Sender(),
		f.AccessService(),
		f.Issuer(),
		f.EmailLimiter(),
		f.ContactLimiter(),
		recorder,
		cfg.Mail.ContactInbox,
		cfg.Mail.APISecret,
	)
	adminHandler := handler.NewAdminHandler(
		f.AccessService(),
		f.CharityService(),
		f.Resolver(),
	)

	return handler.NewRouter(f.AccessGate(), marketplaceHandler, emailHandler, adminHandler, util.Get())
}

func waitForShutdown(f *factory.Factory, server *http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("Server shutdown completed")
	}
	f.Close()
}
