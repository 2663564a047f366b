// worker runs the expiry jobs once and exits; schedule it externally (e.g. a Kubernetes CronJob)
// when the server runs with EXPIRY_SWEEP_SCHEDULE=off.
package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"orgauth/backend/internal/app"
	"orgauth/backend/internal/config"
	"orgauth/backend/internal/platform/logging"
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

	a, err := app.New(context.Background(), cfg, zlog)
	if err != nil {
		zlog.Fatal("startup", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	}()

	zlog.Info("worker: running expiry jobs")
	a.Jobs.RunAll()
	zlog.Info("worker: done")
}
