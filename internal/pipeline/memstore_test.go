package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"multiverse/internal/domain"
)

// memStore is an in-memory JobStore and ImageStore whose claim is atomic
// under one mutex, standing in for the Postgres row locks.
type memStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*domain.Job // keyed by result image id
	images   map[uuid.UUID]domain.Image
	themes   map[uuid.UUID]domain.Theme
	upserts  int
	claimErr error
	now      func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		jobs:   make(map[uuid.UUID]*domain.Job),
		images: make(map[uuid.UUID]domain.Image),
		themes: make(map[uuid.UUID]domain.Theme),
		now:    time.Now,
	}
}

func (s *memStore) addTheme(name string) domain.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := domain.Theme{ID: uuid.New(), Name: name, GuidanceText: name + " guidance", Type: domain.ThemeTypeArt}
	s.themes[t.ID] = t
	return t
}

func (s *memStore) addSource(data []byte) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.images[id] = domain.Image{ID: id, Data: data, MIMEType: "image/png"}
	return id
}

func (s *memStore) addJob(batch, source, theme uuid.UUID, created time.Time) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &domain.Job{
		ID:            uuid.New(),
		BatchID:       batch,
		SourceImageID: source,
		ThemeID:       theme,
		ResultImageID: uuid.New(),
		UserID:        "user-1",
		Status:        domain.JobStatusNew,
		CreatedAt:     created,
	}
	s.jobs[j.ResultImageID] = j
	return j
}

func (s *memStore) job(resultID uuid.UUID) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[resultID]
}

func (s *memStore) image(id uuid.UUID) (domain.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	return img, ok
}

func (s *memStore) ClaimBatch(_ context.Context, limit int) ([]domain.JobDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	var eligible []*domain.Job
	for _, j := range s.jobs {
		if j.Status.Claimable() {
			eligible = append(eligible, j)
		}
	}
	sort.Slice(eligible, func(a, b int) bool { return eligible[a].CreatedAt.Before(eligible[b].CreatedAt) })
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	out := make([]domain.JobDetail, 0, len(eligible))
	for _, j := range eligible {
		now := s.now()
		j.Status = domain.JobStatusInProgress
		j.Attempts++
		j.ClaimedAt = &now
		d := domain.JobDetail{
			ID:            j.ID,
			BatchID:       j.BatchID,
			ResultImageID: j.ResultImageID,
			UserID:        j.UserID,
			UserText:      j.UserText,
			Attempts:      j.Attempts,
			ThemeID:       j.ThemeID,
			SourceImageID: j.SourceImageID,
		}
		if t, ok := s.themes[j.ThemeID]; ok {
			d.ThemeFound = true
			d.ThemeName = t.Name
			d.ThemeGuidance = t.GuidanceText
			d.ThemeType = t.Type
		}
		if img, ok := s.images[j.SourceImageID]; ok {
			d.SourceFound = true
			d.SourceData = img.Data
			d.SourceMIME = img.MIMEType
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *memStore) transition(resultID uuid.UUID, attempt int, to domain.JobStatus, apply func(*domain.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[resultID]
	if !ok || !j.Status.CanTransition(to) || j.Attempts != attempt {
		return fmt.Errorf("job %s: %w", resultID, domain.ErrInvalidTransition)
	}
	j.Status = to
	apply(j)
	return nil
}

func (s *memStore) MarkReady(_ context.Context, resultID uuid.UUID, attempt int, engine string) error {
	return s.transition(resultID, attempt, domain.JobStatusReady, func(j *domain.Job) {
		now := s.now()
		j.Engine = engine
		j.FinishedAt = &now
		j.LastError = ""
	})
}

func (s *memStore) MarkRetry(_ context.Context, resultID uuid.UUID, attempt int, reason string) error {
	return s.transition(resultID, attempt, domain.JobStatusRetry, func(j *domain.Job) { j.LastError = reason })
}

func (s *memStore) MarkFailed(_ context.Context, resultID uuid.UUID, attempt int, reason string) error {
	return s.transition(resultID, attempt, domain.JobStatusFailed, func(j *domain.Job) {
		now := s.now()
		j.LastError = reason
		j.FinishedAt = &now
	})
}

func (s *memStore) ResetStuck(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, j := range s.jobs {
		if j.Status == domain.JobStatusInProgress && j.ClaimedAt != nil && j.ClaimedAt.Before(before) {
			j.Status = domain.JobStatusRetry
			j.LastError = "claim expired"
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetByResultImageID(_ context.Context, resultID uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[resultID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) CountByStatus(context.Context) (map[domain.JobStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.JobStatus]int64)
	for _, j := range s.jobs {
		out[j.Status]++
	}
	return out, nil
}

func (s *memStore) Upsert(_ context.Context, img domain.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.images[img.ID] = img
	return nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*domain.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &img, nil
}

func (s *memStore) statuses() map[domain.JobStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.JobStatus]int)
	for _, j := range s.jobs {
		out[j.Status]++
	}
	return out
}

var (
	_ domain.JobStore   = (*memStore)(nil)
	_ domain.ImageStore = (*memStore)(nil)
)
