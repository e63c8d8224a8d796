package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"lecture-narrator/dto"
	"lecture-narrator/entities"
	"lecture-narrator/pkg/storage"
	"lecture-narrator/repository"
)

const testPublicURL = "https://cdn.test/lectures"

type memoryRepo struct {
	mu       sync.Mutex
	lectures map[uuid.UUID]entities.Lecture
	progress []int
	statuses []string
	// beforeRunUpdate runs ahead of every run-scoped write.
	beforeRunUpdate func(id uuid.UUID)
	failUpdates     error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{lectures: map[uuid.UUID]entities.Lecture{}}
}

func (r *memoryRepo) Transaction(ctx context.Context, callback func(ctx context.Context) error, _ ...*sql.TxOptions) error {
	return callback(ctx)
}

func (r *memoryRepo) Migrate(context.Context) error { return nil }

func (r *memoryRepo) Create(_ context.Context, lecture *entities.Lecture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lectures[lecture.ID] = *lecture
	return nil
}

func (r *memoryRepo) FindById(_ context.Context, id uuid.UUID) (*entities.Lecture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lecture, ok := r.lectures[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &lecture, nil
}

func (r *memoryRepo) UpdateById(_ context.Context, id uuid.UUID, patch repository.LecturePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lecture, ok := r.lectures[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.apply(&lecture, patch)
	return nil
}

func (r *memoryRepo) UpdateRun(_ context.Context, id uuid.UUID, runId uuid.UUID, patch repository.LecturePatch) error {
	if r.beforeRunUpdate != nil {
		r.beforeRunUpdate(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdates != nil {
		return r.failUpdates
	}
	lecture, ok := r.lectures[id]
	if !ok || lecture.RunID != runId {
		return repository.ErrRunSuperseded
	}
	r.apply(&lecture, patch)
	return nil
}

func (r *memoryRepo) apply(lecture *entities.Lecture, patch repository.LecturePatch) {
	patch.Apply(lecture)
	if patch.Progress != nil {
		r.progress = append(r.progress, *patch.Progress)
	}
	if patch.Status != nil {
		r.statuses = append(r.statuses, patch.Status.String())
	}
	r.lectures[lecture.ID] = *lecture
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lectures[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.lectures, id)
	return nil
}

func (r *memoryRepo) ListByOwner(_ context.Context, ownerId string, page dto.PageQuery) ([]*entities.Lecture, int64, error) {
	return r.list(func(l entities.Lecture) bool { return l.OwnerID == ownerId }, page)
}

func (r *memoryRepo) ListPublic(_ context.Context, page dto.PageQuery) ([]*entities.Lecture, int64, error) {
	return r.list(func(l entities.Lecture) bool { return l.IsPublic }, page)
}

func (r *memoryRepo) list(match func(entities.Lecture) bool, page dto.PageQuery) ([]*entities.Lecture, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	page = page.Normalize()

	var all []*entities.Lecture
	for _, l := range r.lectures {
		if match(l) {
			lecture := l
			all = append(all, &lecture)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	total := int64(len(all))
	start := min(page.Offset(), len(all))
	end := min(start+page.Limit, len(all))
	return all[start:end], total, nil
}

func (r *memoryRepo) get(id uuid.UUID) entities.Lecture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lectures[id]
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	// failPut rejects uploads whose key contains the substring.
	failPut string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (s *memoryStorage) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != "" && strings.Contains(key, s.failPut) {
		return "", errors.New("bucket unavailable")
	}
	s.objects[key] = append([]byte(nil), data...)
	return storage.ObjectURL(testPublicURL, key), nil
}

func (s *memoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memoryStorage) KeyFromURL(url string) (string, bool) {
	return storage.KeyFromURL(testPublicURL, url)
}

func (s *memoryStorage) has(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

type stubModel struct {
	mu      sync.Mutex
	prompts []string
	systems []string
	respond func(call int, prompt string) (string, error)
}

func (m *stubModel) Complete(_ context.Context, systemPrompt, prompt string) (string, error) {
	m.mu.Lock()
	call := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	m.systems = append(m.systems, systemPrompt)
	m.mu.Unlock()
	return m.respond(call, prompt)
}

type stubSpeaker struct {
	mu     sync.Mutex
	texts  []string
	voices []string
	speak  func(call int, text string) ([]byte, error)
}

func (s *stubSpeaker) Synthesize(_ context.Context, text, voice string) ([]byte, error) {
	s.mu.Lock()
	call := len(s.texts)
	s.texts = append(s.texts, text)
	s.voices = append(s.voices, voice)
	s.mu.Unlock()
	if s.speak == nil {
		return []byte("ID3-audio"), nil
	}
	return s.speak(call, text)
}

type stubPublisher struct {
	mu       sync.Mutex
	messages []dto.PipelineMessage
	err      error
}

func (p *stubPublisher) Publish(_ context.Context, message dto.PipelineMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message)
	return nil
}

// narration returns a valid script longer than MinScriptChars.
func narration(topic string) string {
	return "In this part of the lecture we look closely at " + topic + " and why it matters for the rest of the course."
}
