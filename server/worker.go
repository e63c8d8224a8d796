package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"lecture-narrator/config"
	pipelineHandler "lecture-narrator/handler"
	"lecture-narrator/pkg/rabbitmq"
	"lecture-narrator/pkg/storage"
	"lecture-narrator/repository"
)

// RunWorker consumes pipeline messages until SIGINT or SIGTERM and serves /health.
func RunWorker(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		return
	}
	repo, err := newRepository(cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRepo")
		return
	}
	store, err := newStorage(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewStorage")
		return
	}

	done := startConsumer(ctx, cfg, conn, repo, store)

	r := gin.New()
	r.Use(gin.Recovery())
	addHealth(r)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start worker health server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("health server failed")
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down worker")
	<-done

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("health server shutdown")
	}
	zerolog.Ctx(ctx).Info().Msg("worker shutdown")
}

// startConsumer runs the pipeline consumer in the background. The returned
// channel closes once every worker has drained.
func startConsumer(ctx context.Context, cfg *config.Config, conn *amqp.Connection, repo repository.LectureRepository, store storage.ObjectStorage) <-chan struct{} {
	deps := pipelineHandler.ServiceDependencies{
		Pipeline: newPipeline(ctx, cfg, repo, store),
	}
	consumer := rabbitmq.NewConsumer(conn, rabbitmq.PipelineTopology(cfg.Queue.Kind), cfg.Server.Workers, pipelineHandler.PipelineHandler)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Consume(ctx, deps); err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("pipeline consumer error")
		}
	}()
	return done
}
