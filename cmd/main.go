package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	grpcapi "expo-kiosk-service/internal/api/grpc"
	"expo-kiosk-service/internal/app"
	"expo-kiosk-service/internal/config"
	kioskhttp "expo-kiosk-service/internal/http"
	"expo-kiosk-service/internal/observability"
	"expo-kiosk-service/internal/observability/metrics"
)

func main() {
	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build kiosk")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: kioskhttp.NewRouter(kioskhttp.Deps{
			Kiosk:  application.Orchestrator,
			Ready:  application.Ready,
			Voice:  application.Bridge,
			Panels: application.Bridge.Connected,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	obsServer := observability.NewServer(":"+cfg.Service.MetricsPort, application.Ready)

	grpcServer := grpcapi.NewServer(metrics.DefaultMetrics)
	health := grpcapi.Register(grpcServer, application.Ready)
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return application.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("Kiosk HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(obsServer.ListenAndServe)
	g.Go(func() error {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		health.Watch(gctx, time.Second)
		return nil
	})

	// Shut the listeners down once anything stops.
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		health.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown error")
		}
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Observability server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Kiosk stopped with error")
		application.Shutdown()
		os.Exit(1)
	}
	application.Shutdown()
}
