package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"docrag-be/internal/bootstrap"
	"docrag-be/internal/config"
	"docrag-be/internal/server"
	"docrag-be/internal/tracer"
	"docrag-be/pkg/database"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	var gormDB *gorm.DB
	if cfg.Database.Driver != "memory" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.DatabasePool())
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Run everything until a signal arrives or one part fails
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Println("Background: Starting pipeline consumers...")
		if err := container.ConsumerService.Consume(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		container.ConsumerService.Wait()
		return nil
	})
	g.Go(func() error {
		// never fails; a broken relay falls back to local delivery
		return container.Broker.RunRelay(gctx)
	})
	g.Go(func() error {
		return container.WebSocketHub.Run(gctx)
	})
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		err := srv.Shutdown()
		container.WorkspaceService.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Printf("Stopped with error: %v", err)
	}
}
