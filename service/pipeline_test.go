package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lecture-narrator/constant"
	"lecture-narrator/dto"
	"lecture-narrator/entities"
	"lecture-narrator/repository"
)

type pipelineFixture struct {
	repo     *memoryRepo
	store    *memoryStorage
	model    *stubModel
	speaker  *stubSpeaker
	pipeline Pipeline
	message  dto.PipelineMessage
}

func newPipelineFixture(t *testing.T, lang constant.Language, pdfText string) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		repo:    newMemoryRepo(),
		store:   newMemoryStorage(),
		model:   &stubModel{respond: func(call int, _ string) (string, error) { return narration(fmt.Sprintf("topic %d", call+1)), nil }},
		speaker: &stubSpeaker{speak: func(int, string) ([]byte, error) { return wavBytes(2), nil }},
	}

	lectureID, runID := uuid.New(), uuid.New()
	key := fmt.Sprintf("lectures/%s/source/%s.pdf", lectureID, runID)
	_, err := f.store.Put(context.Background(), key, []byte("%PDF-1.4 test"), "application/pdf")
	require.NoError(t, err)

	require.NoError(t, f.repo.Create(context.Background(), &entities.Lecture{
		ID:         lectureID,
		OwnerID:    "owner-1",
		Name:       "Physics 101",
		Language:   lang,
		Status:     constant.LectureStatusProcessing,
		Progress:   ProgressStored,
		FileKey:    key,
		FileFormat: constant.FileFormatPDF,
		RunID:      runID,
	}))

	extractor := NewContentExtractor(f.store, 20, placeholder)
	extractor.pdfText = func([]byte) (string, error) { return pdfText, nil }

	f.pipeline = NewPipeline(PipelineDependencies{
		Repo:      f.repo,
		Storage:   f.store,
		Extractor: extractor,
		Scripts:   NewScriptGenerator(f.model, 0),
		Speech:    NewSpeechSynthesizer(f.speaker, f.store, "wav", 0),
	})
	f.message = dto.PipelineMessage{
		LectureId: lectureID,
		RunId:     runID,
		ObjectKey: key,
		Format:    constant.FileFormatPDF,
		Language:  lang,
	}
	return f
}

func (f *pipelineFixture) lecture() entities.Lecture {
	return f.repo.get(f.message.LectureId)
}

const threeBlocks = "Energy is conserved in a closed system.\n\nHeat flows from hot bodies to cold ones.\n\nEntropy of an isolated system never decreases."

func assertMonotone(t *testing.T, progress []int) {
	t.Helper()
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress went backwards: %v", progress)
	}
}

func TestPipeline_ThreeBlocksReady(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageFrench, threeBlocks)

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	lecture := f.lecture()
	assert.Equal(t, constant.LectureStatusReady, lecture.Status)
	assert.Equal(t, ProgressDone, lecture.Progress)
	assert.Empty(t, lecture.ErrorMessage)
	require.Len(t, lecture.Slides, 3)
	assert.Equal(t, 3, lecture.SlideCount)
	for i, slide := range lecture.Slides {
		assert.Equal(t, i+1, slide.Number)
		assert.NotEmpty(t, slide.Script)
		assert.False(t, slide.Fallback)
		require.NotNil(t, slide.AudioURL)
		assert.NotEmpty(t, *slide.AudioURL)
		assert.Equal(t, 2.0, slide.Duration)
	}
	assert.Equal(t, 6.0, lecture.TotalDuration)

	metadata := lecture.Metadata.Data()
	assert.Equal(t, 3, metadata.SlideCount)
	assert.Equal(t, "nova", metadata.Voice)
	assert.Equal(t, constant.LanguageFrench, metadata.Language)
	assert.Zero(t, metadata.FallbackScripts)

	assertMonotone(t, f.repo.progress)
	assert.Equal(t, ProgressDone, f.repo.progress[len(f.repo.progress)-1])
	assert.Contains(t, f.repo.progress, ProgressExtracted)
	assert.Equal(t, []string{"processing", "generating", "ready"}, f.repo.statuses)
	assert.Equal(t, []string{"nova", "nova", "nova"}, f.speaker.voices)
}

func TestPipeline_CorruptSourceFails(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, "")
	extractor := NewContentExtractor(f.store, 20, placeholder)
	f.pipeline.(*pipeline).extractor = extractor

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	lecture := f.lecture()
	assert.Equal(t, constant.LectureStatusError, lecture.Status)
	assert.NotEmpty(t, lecture.ErrorMessage)
	assert.Empty(t, lecture.Slides)
	assert.Empty(t, f.model.prompts)
}

func TestPipeline_NoUsableContentFails(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, "too short\n\nalso short")

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	lecture := f.lecture()
	assert.Equal(t, constant.LectureStatusError, lecture.Status)
	assert.Equal(t, "No usable slides were found in the uploaded file.", lecture.ErrorMessage)
}

func TestPipeline_ScriptProviderFailureUsesFallback(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
	f.model.respond = func(call int, _ string) (string, error) {
		if call == 1 {
			return "", errors.New("provider unavailable")
		}
		return narration(fmt.Sprintf("topic %d", call+1)), nil
	}

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	lecture := f.lecture()
	assert.Equal(t, constant.LectureStatusReady, lecture.Status)
	require.Len(t, lecture.Slides, 3)
	assert.Equal(t, narration("topic 1"), lecture.Slides[0].Script)
	assert.True(t, lecture.Slides[1].Fallback)
	assert.True(t, strings.HasPrefix(lecture.Slides[1].Script, "Hello everyone,"))
	assert.Contains(t, lecture.Slides[1].Script, "Heat flows")
	assert.Equal(t, narration("topic 3"), lecture.Slides[2].Script)
	assert.Equal(t, 1, lecture.Metadata.Data().FallbackScripts)
}

func TestPipeline_SynthesisFailureKeepsGoing(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, "The first slide is long enough.\n\nThe second slide is long enough.")
	f.speaker.speak = func(call int, _ string) ([]byte, error) {
		if call == 0 {
			return nil, errors.New("tts 500")
		}
		return wavBytes(4.5), nil
	}

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	lecture := f.lecture()
	assert.Equal(t, constant.LectureStatusReady, lecture.Status)
	require.Len(t, lecture.Slides, 2)

	first := lecture.Slides[0]
	assert.NotEmpty(t, first.Script)
	assert.Nil(t, first.AudioURL)
	assert.True(t, first.AudioFailed())
	assert.NotEmpty(t, first.Error)

	second := lecture.Slides[1]
	require.NotNil(t, second.AudioURL)
	assert.NotEmpty(t, *second.AudioURL)
	assert.Empty(t, second.Error)

	assert.Equal(t, 4.5, lecture.TotalDuration)
	assert.Equal(t, 1, lecture.Metadata.Data().FailedAudio)
}

func TestPipeline_SupersededRunStopsAndReleasesAssets(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
	var writes atomic.Int32
	f.repo.beforeRunUpdate = func(id uuid.UUID) {
		if writes.Add(1) == 5 {
			require.NoError(t, f.repo.UpdateById(context.Background(), id, repository.LecturePatch{RunID: repository.Ptr(uuid.New())}))
		}
	}

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	lecture := f.lecture()
	assert.NotEqual(t, constant.LectureStatusReady, lecture.Status)
	assert.NotEqual(t, constant.LectureStatusError, lecture.Status)
	runPrefix := fmt.Sprintf("lectures/%s/slides/%s/", f.message.LectureId, f.message.RunId)
	assert.Zero(t, f.store.has(runPrefix))
	assert.Zero(t, f.store.has(fmt.Sprintf("lectures/%s/audio/%s/", f.message.LectureId, f.message.RunId)))
	assert.NotEmpty(t, f.store.deleted)
}

func TestPipeline_DeletedMidRun(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
	var writes atomic.Int32
	f.repo.beforeRunUpdate = func(id uuid.UUID) {
		if writes.Add(1) == 4 {
			require.NoError(t, f.repo.Delete(context.Background(), id))
		}
	}

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	_, err := f.repo.FindById(context.Background(), f.message.LectureId)
	assert.Error(t, err)
	assert.Zero(t, f.store.has(fmt.Sprintf("lectures/%s/slides/", f.message.LectureId)))
}

func TestPipeline_SkipsStaleMessages(t *testing.T) {
	t.Run("other run", func(t *testing.T) {
		f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
		stale := f.message
		stale.RunId = uuid.New()

		require.NoError(t, f.pipeline.Run(context.Background(), stale))
		assert.Equal(t, constant.LectureStatusProcessing, f.lecture().Status)
		assert.Empty(t, f.model.prompts)
	})

	t.Run("missing lecture", func(t *testing.T) {
		f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
		missing := f.message
		missing.LectureId = uuid.New()
		assert.NoError(t, f.pipeline.Run(context.Background(), missing))
	})

	t.Run("already finished", func(t *testing.T) {
		f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
		require.NoError(t, f.pipeline.Run(context.Background(), f.message))
		prompts := len(f.model.prompts)

		require.NoError(t, f.pipeline.Run(context.Background(), f.message))
		assert.Len(t, f.model.prompts, prompts)
	})
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(context.Context, ExtractRequest) ([]SlideCandidate, error) {
	panic("parser exploded")
}

func TestPipeline_PanicMarksError(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
	f.pipeline.(*pipeline).extractor = panickingExtractor{}

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	lecture := f.lecture()
	assert.Equal(t, constant.LectureStatusError, lecture.Status)
	assert.Contains(t, lecture.ErrorMessage, "parser exploded")
}

func TestPipeline_UnrecordableFailureIsReturned(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
	f.repo.failUpdates = errors.New("connection refused")

	err := f.pipeline.Run(context.Background(), f.message)
	assert.Error(t, err)
}

func TestPipeline_CancelledRunIsNotMarkedFailed(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.pipeline.Run(ctx, f.message)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, constant.LectureStatusProcessing, f.lecture().Status)
}

func TestPipeline_CancelledRunReleasesUnsavedAudio(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.speaker.speak = func(call int, _ string) ([]byte, error) {
		if call == 1 {
			cancel()
		}
		return wavBytes(2), nil
	}

	err := f.pipeline.Run(ctx, f.message)
	require.ErrorIs(t, err, context.Canceled)

	audioPrefix := fmt.Sprintf("lectures/%s/audio/%s/", f.message.LectureId, f.message.RunId)
	assert.Equal(t, 1, f.store.has(audioPrefix))
	require.Len(t, f.store.deleted, 1)
	assert.Contains(t, f.store.deleted[0], "slide-002")

	lecture := f.lecture()
	assert.Equal(t, constant.LectureStatusGenerating, lecture.Status)
	assert.True(t, lecture.Slides[0].HasAudio())
	assert.False(t, lecture.Slides[1].Processed())
}

func TestPipeline_RedeliveryResumesFromPersistedSlides(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
	require.NoError(t, f.pipeline.Run(context.Background(), f.message))
	done := f.lecture()
	require.Len(t, done.Slides, 3)

	slides := append([]entities.Slide(nil), done.Slides...)
	slides[2] = entities.NewSlideSkeleton(3, slides[2].Content, slides[2].ImageURL)
	require.NoError(t, f.repo.UpdateById(context.Background(), f.message.LectureId, repository.LecturePatch{
		Status:   repository.Ptr(constant.LectureStatusGenerating),
		Progress: repository.Ptr(77),
		Slides:   &slides,
	}))
	f.repo.statuses, f.repo.progress = nil, nil
	prompts := len(f.model.prompts)

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	lecture := f.lecture()
	assert.Equal(t, constant.LectureStatusReady, lecture.Status)
	assert.Equal(t, []string{"generating", "ready"}, f.repo.statuses)
	assert.NotContains(t, f.repo.statuses, "processing")
	assertMonotone(t, append([]int{77}, f.repo.progress...))
	assert.Len(t, f.model.prompts, prompts+1)

	require.Len(t, lecture.Slides, 3)
	assert.Equal(t, done.Slides[0].Script, lecture.Slides[0].Script)
	assert.Equal(t, *done.Slides[1].AudioURL, *lecture.Slides[1].AudioURL)
	assert.True(t, lecture.Slides[2].HasAudio())
	assert.Equal(t, 6.0, lecture.TotalDuration)
}

func TestPipeline_RedeliveryBeforeGeneratingReleasesEarlierAudio(t *testing.T) {
	f := newPipelineFixture(t, constant.LanguageEnglish, threeBlocks)
	staleKey := fmt.Sprintf("lectures/%s/audio/%s/slide-001-old.wav", f.message.LectureId, f.message.RunId)
	staleURL, err := f.store.Put(context.Background(), staleKey, wavBytes(1), "audio/wav")
	require.NoError(t, err)

	previous := []entities.Slide{{Number: 1, Content: "old", Script: narration("old"), AudioURL: &staleURL}}
	require.NoError(t, f.repo.UpdateById(context.Background(), f.message.LectureId, repository.LecturePatch{
		Slides:     &previous,
		SlideCount: repository.Ptr(1),
	}))

	require.NoError(t, f.pipeline.Run(context.Background(), f.message))

	assert.Equal(t, constant.LectureStatusReady, f.lecture().Status)
	assert.Contains(t, f.store.deleted, staleKey)
	assert.Equal(t, 3, f.store.has(fmt.Sprintf("lectures/%s/slides/%s/", f.message.LectureId, f.message.RunId)))
}

func TestFailureMessage(t *testing.T) {
	assert.Contains(t, FailureMessage(&ExtractionError{Format: "pptx", Err: errors.New("bad zip")}), "pptx")
	assert.Contains(t, FailureMessage(&StorageError{Key: "k", Err: errors.New("down")}), "Storing lecture files failed")
	assert.Contains(t, FailureMessage(errors.New("boom")), "boom")
}

func TestTotalDuration(t *testing.T) {
	audio := "https://cdn/a.mp3"
	pending := ""
	slides := []entities.Slide{
		{AudioURL: &audio, Duration: 2.5},
		{AudioURL: nil, Duration: 9},
		{AudioURL: &pending, Duration: 9},
		{AudioURL: &audio, Duration: 1.5},
	}
	assert.Equal(t, 4.0, TotalDuration(slides))
}
