package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"lecture-narrator/constant"
	"lecture-narrator/dto"
	"lecture-narrator/entities"
	"lecture-narrator/pkg/storage"
	"lecture-narrator/repository"
)

// Publisher hands a stored lecture to the pipeline workers.
type Publisher interface {
	Publish(ctx context.Context, message dto.PipelineMessage) error
}

type CreateLectureInput struct {
	OwnerID            string
	Name               string
	Language           constant.Language
	CustomInstructions string
	IsPublic           bool
	Tags               []string
	FileName           string
	Data               []byte
}

// ReuploadInput replaces a lecture's source. Nil fields keep the lecture's current value.
type ReuploadInput struct {
	FileName           string
	Data               []byte
	Language           *constant.Language
	CustomInstructions *string
}

type LectureService interface {
	Create(ctx context.Context, input CreateLectureInput) (*entities.Lecture, error)
	StartPipeline(ctx context.Context, lectureId uuid.UUID, data []byte, format constant.FileFormat, lang constant.Language, customInstructions string) error
	Get(ctx context.Context, viewer string, id uuid.UUID) (*entities.Lecture, error)
	Status(ctx context.Context, viewer string, id uuid.UUID) (dto.LectureStatusResponse, error)
	ListMine(ctx context.Context, owner string, page dto.PageQuery) (dto.LectureList, error)
	ListPublic(ctx context.Context, page dto.PageQuery) (dto.LectureList, error)
	Update(ctx context.Context, owner string, id uuid.UUID, req dto.UpdateLectureRequest) (*entities.Lecture, error)
	Reupload(ctx context.Context, owner string, id uuid.UUID, input ReuploadInput) (*entities.Lecture, error)
	Delete(ctx context.Context, owner string, id uuid.UUID) error
}

type lectureService struct {
	repo      repository.LectureRepository
	storage   storage.ObjectStorage
	publisher Publisher
}

func NewLectureService(repo repository.LectureRepository, store storage.ObjectStorage, publisher Publisher) LectureService {
	return &lectureService{
		repo:      repo,
		storage:   store,
		publisher: publisher,
	}
}

func (s *lectureService) Create(ctx context.Context, input CreateLectureInput) (*entities.Lecture, error) {
	format, err := sourceFormat(input.FileName, input.Data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	lecture := &entities.Lecture{
		ID:                 uuid.New(),
		OwnerID:            input.OwnerID,
		Name:               strings.TrimSpace(input.Name),
		Language:           input.Language,
		CustomInstructions: strings.TrimSpace(input.CustomInstructions),
		IsPublic:           input.IsPublic,
		Tags:               NormalizeTags(input.Tags),
		Status:             constant.LectureStatusUploading,
		FileFormat:         format,
		Slides:             []entities.Slide{},
	}
	if err := s.repo.Create(ctx, lecture); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("lecture_id", lecture.ID.String()).
		Str("format", format.String()).
		Int("bytes", len(input.Data)).
		Msg("lecture created")

	if err := s.StartPipeline(ctx, lecture.ID, input.Data, format, lecture.Language, lecture.CustomInstructions); err != nil {
		return nil, err
	}
	return s.repo.FindById(ctx, lecture.ID)
}

// StartPipeline stores the source under a fresh run and queues it. The previous
// run, if any, is superseded and its writes are rejected from here on.
func (s *lectureService) StartPipeline(ctx context.Context, lectureId uuid.UUID, data []byte, format constant.FileFormat, lang constant.Language, customInstructions string) error {
	logger := zerolog.Ctx(ctx).With().Str("lecture_id", lectureId.String()).Logger()

	runId := uuid.New()
	err := s.repo.UpdateById(ctx, lectureId, repository.LecturePatch{
		Language:           &lang,
		CustomInstructions: &customInstructions,
		RunID:              &runId,
		Status:             repository.Ptr(constant.LectureStatusUploading),
		Progress:           repository.Ptr(0),
		Slides:             &[]entities.Slide{},
		SlideCount:         repository.Ptr(0),
		TotalDuration:      repository.Ptr(0.0),
		ErrorMessage:       repository.Ptr(""),
		Metadata:           &entities.LectureMetadata{},
	})
	if err != nil {
		return err
	}

	key := fmt.Sprintf("lectures/%s/source/%s.%s", lectureId, runId, format)
	if _, err := s.storage.Put(ctx, key, data, format.ContentType()); err != nil {
		storageErr := &StorageError{Key: key, Err: err}
		logger.Error().Err(err).Msg("failed to store source file")
		s.markFailed(ctx, lectureId, runId, FailureMessage(storageErr))
		return storageErr
	}

	err = s.repo.UpdateRun(ctx, lectureId, runId, repository.LecturePatch{
		FileKey:    &key,
		FileFormat: &format,
		Status:     repository.Ptr(constant.LectureStatusProcessing),
		Progress:   repository.Ptr(ProgressStored),
	})
	if err != nil {
		s.release(ctx, key)
		return err
	}

	message := dto.PipelineMessage{
		LectureId:          lectureId,
		RunId:              runId,
		ObjectKey:          key,
		Format:             format,
		Language:           lang,
		CustomInstructions: customInstructions,
	}
	if err := s.publisher.Publish(ctx, message); err != nil {
		logger.Error().Err(err).Msg("failed to queue pipeline run")
		_ = s.repo.UpdateRun(ctx, lectureId, runId, repository.LecturePatch{
			Status:       repository.Ptr(constant.LectureStatusError),
			ErrorMessage: repository.Ptr("Lecture processing could not be queued."),
		})
		return err
	}

	logger.Info().Str("run_id", runId.String()).Msg("pipeline run queued")
	return nil
}

func (s *lectureService) Get(ctx context.Context, viewer string, id uuid.UUID) (*entities.Lecture, error) {
	lecture, err := s.repo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lecture.VisibleTo(viewer) {
		return nil, ErrAccessDenied
	}
	return lecture, nil
}

func (s *lectureService) Status(ctx context.Context, viewer string, id uuid.UUID) (dto.LectureStatusResponse, error) {
	lecture, err := s.Get(ctx, viewer, id)
	if err != nil {
		return dto.LectureStatusResponse{}, err
	}
	return dto.LectureStatusResponse{
		ID:         lecture.ID,
		Status:     lecture.Status,
		Progress:   lecture.Progress,
		SlideCount: lecture.SlideCount,
		Error:      lecture.ErrorMessage,
	}, nil
}

func (s *lectureService) ListMine(ctx context.Context, owner string, page dto.PageQuery) (dto.LectureList, error) {
	page = page.Normalize()
	lectures, total, err := s.repo.ListByOwner(ctx, owner, page)
	if err != nil {
		return dto.LectureList{}, err
	}
	return dto.LectureList{Items: lectures, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

func (s *lectureService) ListPublic(ctx context.Context, page dto.PageQuery) (dto.LectureList, error) {
	page = page.Normalize()
	lectures, total, err := s.repo.ListPublic(ctx, page)
	if err != nil {
		return dto.LectureList{}, err
	}
	return dto.LectureList{Items: lectures, Page: page.Page, Limit: page.Limit, Total: total}, nil
}

func (s *lectureService) Update(ctx context.Context, owner string, id uuid.UUID, req dto.UpdateLectureRequest) (*entities.Lecture, error) {
	if _, err := s.owned(ctx, owner, id); err != nil {
		return nil, err
	}

	patch := repository.LecturePatch{IsPublic: req.IsPublic}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be blank", ErrInvalidInput)
		}
		patch.Name = &name
	}
	if req.Tags != nil {
		tags := NormalizeTags(*req.Tags)
		patch.Tags = &tags
	}

	if err := s.repo.UpdateById(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.repo.FindById(ctx, id)
}

func (s *lectureService) Reupload(ctx context.Context, owner string, id uuid.UUID, input ReuploadInput) (*entities.Lecture, error) {
	lecture, err := s.owned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	format, err := sourceFormat(input.FileName, input.Data)
	if err != nil {
		return nil, err
	}

	lang := lecture.Language
	if input.Language != nil {
		lang = *input.Language
	}
	instructions := lecture.CustomInstructions
	if input.CustomInstructions != nil {
		instructions = strings.TrimSpace(*input.CustomInstructions)
	}

	previous := AssetKeys(lecture, s.storage)
	if err := s.StartPipeline(ctx, id, input.Data, format, lang, instructions); err != nil {
		return nil, err
	}
	s.release(ctx, previous...)

	return s.repo.FindById(ctx, id)
}

// Delete removes the lecture and releases every stored asset it references.
// A run still in flight notices on its next write and releases its own uploads.
func (s *lectureService) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	lecture, err := s.owned(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.release(ctx, AssetKeys(lecture, s.storage)...)

	zerolog.Ctx(ctx).Info().Str("lecture_id", id.String()).Msg("lecture deleted")
	return nil
}

func (s *lectureService) owned(ctx context.Context, owner string, id uuid.UUID) (*entities.Lecture, error) {
	lecture, err := s.repo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner == "" || lecture.OwnerID != owner {
		return nil, ErrAccessDenied
	}
	return lecture, nil
}

func (s *lectureService) markFailed(ctx context.Context, id, runId uuid.UUID, message string) {
	err := s.repo.UpdateRun(ctx, id, runId, repository.LecturePatch{
		Status:       repository.Ptr(constant.LectureStatusError),
		ErrorMessage: &message,
	})
	if err != nil && !errors.Is(err, repository.ErrRunSuperseded) {
		zerolog.Ctx(ctx).Error().Err(err).Str("lecture_id", id.String()).Msg("failed to mark lecture failed")
	}
}

func (s *lectureService) release(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to release object")
		}
	}
}

// AssetKeys lists the stored objects a lecture references: its source file
// plus every slide image and audio served from the store.
func AssetKeys(lecture *entities.Lecture, store storage.ObjectStorage) []string {
	var keys []string
	if lecture.FileKey != "" {
		keys = append(keys, lecture.FileKey)
	}
	return append(keys, SlideAssetKeys(lecture.Slides, store)...)
}

// SlideAssetKeys lists the slide images and audio files the slides reference.
func SlideAssetKeys(slides []entities.Slide, store storage.ObjectStorage) []string {
	var keys []string
	for _, slide := range slides {
		if key, ok := store.KeyFromURL(slide.ImageURL); ok {
			keys = append(keys, key)
		}
		if slide.HasAudio() {
			if key, ok := store.KeyFromURL(*slide.AudioURL); ok {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// NormalizeTags trims tags and drops blanks and duplicates, keeping order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func sourceFormat(fileName string, data []byte) (constant.FileFormat, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: uploaded file is empty", ErrInvalidInput)
	}
	format, ok := constant.FileFormatFromName(fileName)
	if !ok {
		return "", fmt.Errorf("%w: unsupported file type %q, expected .pptx or .pdf", ErrInvalidInput, fileName)
	}
	return format, nil
}
