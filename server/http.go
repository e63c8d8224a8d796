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
	"github.com/rs/zerolog"
	"lecture-narrator/config"
	"lecture-narrator/constant"
	"lecture-narrator/dto"
	"lecture-narrator/pkg/rabbitmq"
	"lecture-narrator/service"
)

// RunHttp serves the lecture API. With embedWorker the pipeline consumer
// runs in the same process.
func RunHttp(cfg *config.Config, embedWorker bool) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.IsProduction()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
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
	publisher, err := rabbitmq.NewPublisher[dto.PipelineMessage](conn, rabbitmq.PipelineTopology(cfg.Queue.Kind))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewPublisher")
		return
	}
	defer publisher.Close()

	var done <-chan struct{}
	if embedWorker {
		done = startConsumer(ctx, cfg, conn, repo, store)
	}

	lectures := service.NewLectureService(repo, store, publisher)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), requestLogger(ctx))
	r.MaxMultipartMemory = 8 << 20
	addHealth(r)
	RegisterRoutes(r, lectures, cfg.MaxUploadBytes())

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}
	if done != nil {
		<-done
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}
