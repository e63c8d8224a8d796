package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"lecture-narrator/constant"
	"lecture-narrator/dto"
	"lecture-narrator/entities"
	"lecture-narrator/pkg/storage"
	"lecture-narrator/repository"
)

// Progress checkpoints of a run.
const (
	ProgressStored    = 10
	ProgressExtracted = 40
	ProgressSlidesEnd = 95
	ProgressDone      = 100
)

// Pipeline drives one lecture through extraction, script generation and
// speech synthesis, persisting progress after every stage.
type Pipeline interface {
	Run(ctx context.Context, message dto.PipelineMessage) error
}

type PipelineDependencies struct {
	Repo      repository.LectureRepository
	Storage   storage.ObjectStorage
	Extractor Extractor
	Scripts   *ScriptGenerator
	Speech    *SpeechSynthesizer
}

type pipeline struct {
	repo      repository.LectureRepository
	storage   storage.ObjectStorage
	extractor Extractor
	scripts   *ScriptGenerator
	speech    *SpeechSynthesizer
	now       func() time.Time
}

func NewPipeline(deps PipelineDependencies) Pipeline {
	return &pipeline{
		repo:      deps.Repo,
		storage:   deps.Storage,
		extractor: deps.Extractor,
		scripts:   deps.Scripts,
		speech:    deps.Speech,
		now:       time.Now,
	}
}

// pipelineRun is the mutable state of a single run. keys are uploads the
// lecture already references; unsaved are uploads not yet persisted.
type pipelineRun struct {
	message  dto.PipelineMessage
	progress int
	status   constant.LectureStatus
	started  time.Time
	keys     []string
	unsaved  []string
}

// Run executes a run to a terminal state. It returns nil once the outcome is
// persisted (ready or error); a non-nil error means the outcome could not be
// recorded and the message should be retried. A redelivered run resumes from
// the slides it already persisted.
func (p *pipeline) Run(ctx context.Context, message dto.PipelineMessage) (err error) {
	logger := zerolog.Ctx(ctx).With().
		Str("lecture_id", message.LectureId.String()).
		Str("run_id", message.RunId.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	lecture, err := p.repo.FindById(ctx, message.LectureId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Info().Msg("lecture no longer exists, skipping run")
			return nil
		}
		logger.Error().Err(err).Msg("failed to find lecture")
		return err
	}

	if lecture.RunID != message.RunId {
		logger.Info().Msg("run superseded before start")
		return nil
	}
	if lecture.Status.Terminal() {
		logger.Info().Str("status", lecture.Status.String()).Msg("run already finished")
		return nil
	}

	run := &pipelineRun{
		message:  message,
		progress: lecture.Progress,
		status:   lecture.Status,
		started:  p.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
		if err == nil {
			return
		}
		cleanup := context.WithoutCancel(ctx)
		switch {
		case errors.Is(err, repository.ErrRunSuperseded):
			logger.Info().Msg("run superseded, releasing its assets")
			p.release(cleanup, append(run.keys, run.unsaved...))
			err = nil
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			logger.Warn().Err(err).Int("unsaved", len(run.unsaved)).Msg("run interrupted")
			p.release(cleanup, run.unsaved)
		default:
			logger.Error().Err(err).Int("progress", run.progress).Msg("pipeline failed")
			p.release(cleanup, run.unsaved)
			if markErr := p.fail(ctx, run, err); markErr != nil {
				logger.Error().Err(markErr).Msg("failed to record pipeline failure")
				err = errors.Join(err, markErr)
				return
			}
			err = nil
		}
	}()

	return p.execute(ctx, run, lecture)
}

func (p *pipeline) execute(ctx context.Context, run *pipelineRun, lecture *entities.Lecture) error {
	logger := zerolog.Ctx(ctx)
	message := run.message

	slides, resumed := resumableSlides(lecture)
	if resumed {
		logger.Info().Int("slides", len(slides)).Int("progress", run.progress).Msg("resuming run from persisted slides")
	} else {
		var err error
		if slides, err = p.prepare(ctx, run, lecture); err != nil {
			return err
		}
	}

	if err := p.update(ctx, run, repository.LecturePatch{
		Status: run.promote(constant.LectureStatusGenerating),
	}); err != nil {
		return err
	}

	processed := 0
	for i := range slides {
		if slides[i].Processed() {
			continue
		}
		if err := p.processSlide(ctx, run, &slides[i], processed > 0); err != nil {
			return err
		}
		processed++

		progress := ProgressExtracted + (ProgressSlidesEnd-ProgressExtracted)*(i+1)/len(slides)
		if err := p.update(ctx, run, repository.LecturePatch{
			Slides:   &slides,
			Progress: repository.Ptr(run.advance(progress)),
		}); err != nil {
			return err
		}
	}

	var fallbacks, failedAudio int
	for _, slide := range slides {
		if slide.Fallback {
			fallbacks++
		}
		if slide.AudioFailed() {
			failedAudio++
		}
	}

	metadata := entities.LectureMetadata{
		SlideCount:       len(slides),
		ProcessingTimeMs: p.now().Sub(run.started).Milliseconds(),
		FallbackScripts:  fallbacks,
		FailedAudio:      failedAudio,
		Language:         message.Language,
		Voice:            message.Language.Voice(),
	}
	if err := p.update(ctx, run, repository.LecturePatch{
		Slides:        &slides,
		SlideCount:    repository.Ptr(len(slides)),
		TotalDuration: repository.Ptr(TotalDuration(slides)),
		Progress:      repository.Ptr(run.advance(ProgressDone)),
		Status:        run.promote(constant.LectureStatusReady),
		ErrorMessage:  repository.Ptr(""),
		Metadata:      &metadata,
	}); err != nil {
		return err
	}

	logger.Info().
		Int("slides", len(slides)).
		Int("processed", processed).
		Int("fallback_scripts", fallbacks).
		Int("failed_audio", failedAudio).
		Int64("processing_time_ms", metadata.ProcessingTimeMs).
		Msg("lecture ready")
	return nil
}

// prepare loads and extracts the source and persists the slide skeletons.
// Assets left by an earlier attempt of the same run are released once the
// new skeletons replace them.
func (p *pipeline) prepare(ctx context.Context, run *pipelineRun, lecture *entities.Lecture) ([]entities.Slide, error) {
	logger := zerolog.Ctx(ctx)
	message := run.message

	if err := p.update(ctx, run, repository.LecturePatch{
		Status:   run.promote(constant.LectureStatusProcessing),
		Progress: repository.Ptr(run.advance(ProgressStored)),
	}); err != nil {
		return nil, err
	}

	logger.Info().Str("object_key", message.ObjectKey).Msg("loading source file")
	data, err := p.storage.Get(ctx, message.ObjectKey)
	if err != nil {
		return nil, &StorageError{Key: message.ObjectKey, Err: err}
	}

	candidates, err := p.extractor.Extract(ctx, ExtractRequest{
		LectureID: message.LectureId,
		RunID:     message.RunId,
		Data:      data,
		Format:    message.Format,
	})
	if err != nil {
		return nil, err
	}

	slides := make([]entities.Slide, len(candidates))
	for i, c := range candidates {
		slides[i] = entities.NewSlideSkeleton(i+1, c.Text, c.ImageURL)
		if c.ImageKey != "" {
			run.unsaved = append(run.unsaved, c.ImageKey)
		}
	}
	stale := staleKeys(SlideAssetKeys(lecture.Slides, p.storage), run.unsaved)

	if err := p.update(ctx, run, repository.LecturePatch{
		Slides:     &slides,
		SlideCount: repository.Ptr(len(slides)),
		Progress:   repository.Ptr(run.advance(ProgressExtracted)),
	}); err != nil {
		return nil, err
	}
	logger.Info().Int("slides", len(slides)).Msg("slide skeletons persisted")

	if len(stale) > 0 {
		logger.Info().Int("objects", len(stale)).Msg("releasing assets of an earlier attempt")
		p.release(ctx, stale)
	}
	return slides, nil
}

// processSlide generates the script then the audio of one slide. Only a
// cancelled context is returned as an error; synthesis failures stay on the slide.
func (p *pipeline) processSlide(ctx context.Context, run *pipelineRun, slide *entities.Slide, throttle bool) error {
	message := run.message

	if throttle {
		if err := pause(ctx, p.scripts.delay); err != nil {
			return err
		}
	}
	slide.Script, slide.Fallback = p.scripts.GenerateForSlide(ctx, slide.Number, slide.Content, message.CustomInstructions, message.Language)

	if throttle {
		if err := pause(ctx, p.speech.delay); err != nil {
			return err
		}
	}
	audio, err := p.speech.Synthesize(ctx, SpeechRequest{
		LectureID:   message.LectureId,
		RunID:       message.RunId,
		SlideNumber: slide.Number,
		Script:      slide.Script,
		Language:    message.Language,
	})
	if err == nil {
		run.unsaved = append(run.unsaved, audio.Key)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var synthErr *SynthesisError
	switch {
	case errors.As(err, &synthErr):
		zerolog.Ctx(ctx).Warn().Err(err).Int("slide", slide.Number).Msg("slide audio failed, continuing")
		slide.AudioURL = nil
		slide.Duration = 0
		slide.Error = synthErr.Error()
	case err != nil:
		return err
	default:
		url := audio.URL
		slide.AudioURL = &url
		slide.Duration = audio.Duration
		slide.Error = ""
	}
	return nil
}

// update writes a run-scoped patch. Uploads become referenced once a patch
// carrying the slides is stored.
func (p *pipeline) update(ctx context.Context, run *pipelineRun, patch repository.LecturePatch) error {
	if patch.Empty() {
		return nil
	}
	if err := p.repo.UpdateRun(ctx, run.message.LectureId, run.message.RunId, patch); err != nil {
		return err
	}
	if patch.Slides != nil {
		run.keys = append(run.keys, run.unsaved...)
		run.unsaved = nil
	}
	return nil
}

func (p *pipeline) fail(ctx context.Context, run *pipelineRun, cause error) error {
	return p.update(ctx, run, repository.LecturePatch{
		Status:       repository.Ptr(constant.LectureStatusError),
		ErrorMessage: repository.Ptr(FailureMessage(cause)),
	})
}

func (p *pipeline) release(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := p.storage.Delete(ctx, key); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to release object")
		}
	}
}

// promote returns the status to write, or nil when the lecture is already
// further along.
func (r *pipelineRun) promote(status constant.LectureStatus) *constant.LectureStatus {
	if status.Precedes(r.status) {
		return nil
	}
	r.status = status
	return &status
}

// advance keeps progress monotonically non-decreasing.
func (r *pipelineRun) advance(progress int) int {
	if progress > r.progress {
		r.progress = progress
	}
	return r.progress
}

// resumableSlides returns the persisted slides of a run that already reached
// generating, or false when the run has to extract its source again.
func resumableSlides(lecture *entities.Lecture) ([]entities.Slide, bool) {
	if lecture.Status != constant.LectureStatusGenerating || len(lecture.Slides) == 0 || len(lecture.Slides) != lecture.SlideCount {
		return nil, false
	}
	return append([]entities.Slide(nil), lecture.Slides...), true
}

func staleKeys(previous, current []string) []string {
	keep := make(map[string]bool, len(current))
	for _, key := range current {
		keep[key] = true
	}
	var stale []string
	for _, key := range previous {
		if !keep[key] {
			stale = append(stale, key)
		}
	}
	return stale
}

// TotalDuration sums the durations of slides that have audio.
func TotalDuration(slides []entities.Slide) float64 {
	var total float64
	for _, s := range slides {
		if s.HasAudio() {
			total += s.Duration
		}
	}
	return total
}

// FailureMessage renders a pipeline error for the lecture's error field.
func FailureMessage(err error) string {
	var extractErr *ExtractionError
	var storageErr *StorageError
	switch {
	case errors.As(err, &extractErr) && errors.Is(err, ErrNoUsableContent):
		return "No usable slides were found in the uploaded file."
	case errors.As(err, &extractErr):
		return fmt.Sprintf("The uploaded file could not be read as %s: %v", extractErr.Format, extractErr.Err)
	case errors.As(err, &storageErr):
		return fmt.Sprintf("Storing lecture files failed: %v", storageErr.Err)
	default:
		return fmt.Sprintf("Lecture processing failed: %v", err)
	}
}
