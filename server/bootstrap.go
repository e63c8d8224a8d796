package server

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"
	"lecture-narrator/config"
	"lecture-narrator/constant"
	"lecture-narrator/pkg/llm"
	"lecture-narrator/pkg/storage"
	"lecture-narrator/pkg/tts"
	"lecture-narrator/repository"
	"lecture-narrator/service"
)

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}

// requestLogger attaches the process logger to every request context.
func requestLogger(ctx context.Context) gin.HandlerFunc {
	base := zerolog.Ctx(ctx)
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := base.With().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Logger()
		c.Request = c.Request.WithContext(reqLogger.WithContext(c.Request.Context()))

		c.Next()

		reqLogger.Debug().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

func newRepository(cfg *config.Config) (repository.LectureRepository, error) {
	level := logger.Warn
	if cfg.IsProduction() {
		level = logger.Silent
	}
	return repository.NewRepo(cfg.DB, level)
}

// newStorage wraps the minio client and creates the bucket on first start.
func newStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	exists, err := cfg.Storage.BucketExists(ctx, cfg.MinIO.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cfg.Storage.MakeBucket(ctx, cfg.MinIO.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
		zerolog.Ctx(ctx).Info().Str("bucket", cfg.MinIO.Bucket).Msg("created bucket")
	}
	return storage.NewMinio(cfg.Storage, cfg.MinIO.Bucket, cfg.MinIO.PublicURL), nil
}

func newPipeline(ctx context.Context, cfg *config.Config, repo repository.LectureRepository, store storage.ObjectStorage) service.Pipeline {
	if len(cfg.LLM.APIKeys) == 0 {
		zerolog.Ctx(ctx).Warn().Msg("no llm api keys configured, every slide will use a fallback script")
	}
	gemini := llm.NewGemini(cfg.LLM.APIKeys, cfg.LLM.Model, cfg.LLM.Temperature)
	speaker := tts.NewHTTPClient(cfg.TTS.BaseURL, cfg.TTS.APIKey, cfg.TTS.Model, cfg.TTS.Format, cfg.TTS.Timeout)

	return service.NewPipeline(service.PipelineDependencies{
		Repo:      repo,
		Storage:   store,
		Extractor: service.NewContentExtractor(store, cfg.Pipeline.MinBlockChars, cfg.Pipeline.PlaceholderImageURL),
		Scripts:   service.NewScriptGenerator(gemini, cfg.Pipeline.ScriptDelay),
		Speech:    service.NewSpeechSynthesizer(speaker, store, cfg.TTS.Format, cfg.Pipeline.AudioDelay),
	})
}
