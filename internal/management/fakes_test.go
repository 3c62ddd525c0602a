package management

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "sieve/pkg/errors"
	"sieve/pkg/models"
)

type memoryRepository struct {
	mu   sync.Mutex
	sets map[string]*models.FilterSet
	err  error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{sets: map[string]*models.FilterSet{}}
}

func (r *memoryRepository) CreateFilterSet(ctx context.Context, set *models.FilterSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.sets {
		if existing.Name == set.Name {
			return duplicateNameError(set.Name, nil)
		}
	}
	if set.ID == "" {
		set.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	set.CreatedAt, set.UpdatedAt = now, now
	r.sets[set.ID] = set.Clone()
	return nil
}

func (r *memoryRepository) ListFilterSets(ctx context.Context) ([]models.FilterSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]models.FilterSet, 0, len(r.sets))
	for _, s := range r.sets {
		out = append(out, *s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryRepository) GetFilterSet(ctx context.Context, id string) (*models.FilterSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	s, ok := r.sets[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return s.Clone(), nil
}

func (r *memoryRepository) UpdateFilterSet(ctx context.Context, set *models.FilterSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[set.ID]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("id", set.ID)
	}
	for id, existing := range r.sets {
		if id != set.ID && existing.Name == set.Name {
			return duplicateNameError(set.Name, nil)
		}
	}
	set.UpdatedAt = time.Now().UTC()
	r.sets[set.ID] = set.Clone()
	return nil
}

func (r *memoryRepository) DeleteFilterSet(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[id]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	delete(r.sets, id)
	return nil
}

type memoryVersioning struct {
	mu       sync.Mutex
	versions []FilterSetVersion
	logs     []AuditLog
}

func (v *memoryVersioning) CreateVersion(ctx context.Context, version *FilterSetVersion) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.versions = append(v.versions, *version)
	return nil
}

func (v *memoryVersioning) GetVersions(ctx context.Context, filterSetID string) ([]FilterSetVersion, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := []FilterSetVersion{}
	for i := len(v.versions) - 1; i >= 0; i-- {
		if v.versions[i].FilterSetID == filterSetID {
			out = append(out, v.versions[i])
		}
	}
	return out, nil
}

func (v *memoryVersioning) GetVersion(ctx context.Context, filterSetID string, version int) (*FilterSetVersion, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ver := range v.versions {
		if ver.FilterSetID == filterSetID && ver.Version == version {
			return &ver, nil
		}
	}
	return nil, nil
}

func (v *memoryVersioning) GetNextVersion(ctx context.Context, filterSetID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	next := 1
	for _, ver := range v.versions {
		if ver.FilterSetID == filterSetID && ver.Version >= next {
			next = ver.Version + 1
		}
	}
	return next, nil
}

func (v *memoryVersioning) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logs = append(v.logs, *log)
	return nil
}

func (v *memoryVersioning) GetAuditLogs(ctx context.Context, filterSetID *string, action string, limit int) ([]AuditLog, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := []AuditLog{}
	for i := len(v.logs) - 1; i >= 0 && len(out) < limit; i-- {
		l := v.logs[i]
		if filterSetID != nil && (l.FilterSetID == nil || *l.FilterSetID != *filterSetID) {
			continue
		}
		if action != "" && l.Action != action {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

type recordingProducer struct {
	mu        sync.Mutex
	published []models.MessageEnvelope
	topics    []string
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.published = append(p.published, msg)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.published))
	for i, m := range p.published {
		out[i], _ = m.Payload["action"].(string)
	}
	return out
}
