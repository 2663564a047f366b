// server runs the gRPC endpoint and the periodic expiry sweep.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"orgauth/backend/internal/app"
	"orgauth/backend/internal/config"
	healthhandler "orgauth/backend/internal/health/handler"
	"orgauth/backend/internal/jobs"
	"orgauth/backend/internal/platform/logging"
	"orgauth/backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("startup", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			zlog.Warn("close", zap.Error(err))
		}
	}()

	var sched *jobs.Scheduler
	if cfg.ExpirySweepSchedule != "off" {
		sched, err = jobs.NewScheduler(a.Jobs, cfg.ExpirySweepSchedule, zlog)
		if err != nil {
			zlog.Fatal("scheduler", zap.Error(err))
		}
		sched.Start()
		zlog.Info("expiry sweep scheduled", zap.String("schedule", cfg.ExpirySweepSchedule), zap.Time("next", sched.Next()))
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		zlog.Fatal("listen", zap.Error(err))
	}
	defer lis.Close()

	s := server.NewGRPCServer(server.Deps{
		Tokens:     a.Tokens,
		APITokens:  a.APITokens,
		Attacher:   a.Tenancy,
		Health:     healthhandler.NewServer(a.Store, a.Policy, zlog),
		Log:        zlog,
		Reflection: cfg.Env == "development",
	})

	go func() {
		zlog.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := s.Serve(lis); err != nil {
			zlog.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down gRPC server")
	if sched != nil {
		sched.Stop()
	}
	s.GracefulStop()
	zlog.Info("gRPC server stopped")
}
