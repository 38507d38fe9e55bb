package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
)

// MemoryStore is an in-process Store. Each resource has a weight-1
// semaphore playing the role of the Postgres row lock; acquiring it honours
// the caller's context, so a timed-out request never enters the unit.
type MemoryStore struct {
	mu            sync.RWMutex
	resources     map[string]model.Resource
	registrations map[string]model.Registration
	byResource    map[string][]string

	locksMu sync.Mutex
	locks   map[string]*semaphore.Weighted
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources:     make(map[string]model.Resource),
		registrations: make(map[string]model.Registration),
		byResource:    make(map[string][]string),
		locks:         make(map[string]*semaphore.Weighted),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) lockFor(resourceID string) *semaphore.Weighted {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[resourceID]
	if !ok {
		l = semaphore.NewWeighted(1)
		s.locks[resourceID] = l
	}
	return l
}

// acquire enters the exclusive unit for resourceID. Releasing drops the
// semaphore once the resource no longer exists, so deleted or unknown ids
// do not keep entries in locks.
func (s *MemoryStore) acquire(ctx context.Context, resourceID string) (release func(), err error) {
	l := s.lockFor(resourceID)
	if err := l.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire resource lock: %w", err)
	}
	return func() {
		s.locksMu.Lock()
		if _, ok := s.resource(resourceID); !ok && s.locks[resourceID] == l {
			delete(s.locks, resourceID)
		}
		s.locksMu.Unlock()
		l.Release(1)
	}, nil
}

func (s *MemoryStore) resource(id string) (model.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	return r, ok
}

// activeLocked returns registrations of resourceID in an active status.
// Caller holds s.mu.
func (s *MemoryStore) activeLocked(resourceID string) []model.Registration {
	var out []model.Registration
	for _, id := range s.byResource[resourceID] {
		if g := s.registrations[id]; g.Status.Active() {
			out = append(out, g)
		}
	}
	return out
}

// ─── Resources ───────────────────────────────────────────────────────────────

func (s *MemoryStore) CreateResource(ctx context.Context, r model.Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.resources[r.ID]; exists {
		return fmt.Errorf("insert resource: id %s already exists", r.ID)
	}
	s.resources[r.ID] = r
	return nil
}

func (s *MemoryStore) GetResource(_ context.Context, id string) (*model.Resource, error) {
	r, ok := s.resource(id)
	if !ok {
		return nil, model.ResourceNotFound(id)
	}
	return &r, nil
}

func (s *MemoryStore) ListResources(_ context.Context, f model.ResourceFilter) ([]model.Resource, error) {
	s.mu.RLock()
	out := make([]model.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateResource(ctx context.Context, id string, fn ResourceMutator) (*model.Resource, error) {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.RLock()
	cur, ok := s.resources[id]
	admitted := len(s.activeLocked(id))
	s.mu.RUnlock()
	if !ok {
		return nil, model.ResourceNotFound(id)
	}

	next, err := fn(cur, admitted)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[id]; !ok {
		return nil, model.ResourceNotFound(id)
	}
	next.ID, next.Kind, next.CreatedAt = cur.ID, cur.Kind, cur.CreatedAt
	s.resources[id] = next
	return &next, nil
}

func (s *MemoryStore) DeleteResource(ctx context.Context, id string) error {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[id]; !ok {
		return model.ResourceNotFound(id)
	}
	for _, regID := range s.byResource[id] {
		delete(s.registrations, regID)
	}
	delete(s.byResource, id)
	delete(s.resources, id)
	return nil
}

// ─── Admission ───────────────────────────────────────────────────────────────

// memAdmission reads committed state and buffers inserts until the unit
// commits.
type memAdmission struct {
	store  *MemoryStore
	res    model.Resource
	staged []model.Registration
}

func (a *memAdmission) Resource() model.Resource { return a.res }

func (a *memAdmission) ActiveRegistration(ctx context.Context, identity string) (*model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	for _, g := range a.store.activeLocked(a.res.ID) {
		if g.Identity == identity {
			return &g, nil
		}
	}
	for _, g := range a.staged {
		if g.Identity == identity && g.Status.Active() {
			return &g, nil
		}
	}
	return nil, nil
}

func (a *memAdmission) CountActive(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.store.mu.RLock()
	n := len(a.store.activeLocked(a.res.ID))
	a.store.mu.RUnlock()
	for _, g := range a.staged {
		if g.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (a *memAdmission) Insert(ctx context.Context, g model.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.staged = append(a.staged, g)
	return nil
}

// Admit runs fn with the resource's semaphore held and commits staged
// inserts only if fn succeeded and ctx is still live.
func (s *MemoryStore) Admit(ctx context.Context, resourceID string, fn func(ctx context.Context, tx AdmissionTx) error) error {
	release, err := s.acquire(ctx, resourceID)
	if err != nil {
		return err
	}
	defer release()

	res, ok := s.resource(resourceID)
	if !ok {
		return model.ResourceNotFound(resourceID)
	}
	unit := &memAdmission{store: s, res: res}
	if err := fn(ctx, unit); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(resourceID, unit.staged)
}

func (s *MemoryStore) commit(resourceID string, staged []model.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[resourceID]; !ok {
		return model.ResourceNotFound(resourceID)
	}

	// Same guarantee as the partial unique index in Postgres.
	active := map[string]string{}
	for _, g := range s.activeLocked(resourceID) {
		active[g.Identity] = g.ID
	}
	for _, g := range staged {
		if !g.Status.Active() {
			continue
		}
		if existing, dup := active[g.Identity]; dup {
			return &model.DuplicateRegistrationError{ResourceID: resourceID, ExistingID: existing}
		}
		active[g.Identity] = g.ID
	}

	for _, g := range staged {
		s.registrations[g.ID] = g
		s.byResource[resourceID] = append(s.byResource[resourceID], g.ID)
	}
	return nil
}

// ─── Registrations ───────────────────────────────────────────────────────────

func (s *MemoryStore) GetRegistration(_ context.Context, id string) (*model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.registrations[id]
	if !ok {
		return nil, model.RegistrationNotFound(id)
	}
	return &g, nil
}

func (s *MemoryStore) ListRegistrations(_ context.Context, resourceID string, f model.RegistrationFilter) ([]model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Registration
	for _, id := range s.byResource[resourceID] {
		g := s.registrations[id]
		if f.Status != "" && g.Status != f.Status {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *MemoryStore) UpdateRegistration(ctx context.Context, id string, fn RegistrationMutator) (*model.Registration, error) {
	cur, err := s.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx, cur.ResourceID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock; the registration may have changed or gone.
	s.mu.RLock()
	g, ok := s.registrations[id]
	res, resOK := s.resources[cur.ResourceID]
	s.mu.RUnlock()
	if !ok || !resOK {
		return nil, model.RegistrationNotFound(id)
	}

	next, err := fn(g, res)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[id]; !ok {
		return nil, model.RegistrationNotFound(id)
	}
	next.ID, next.ResourceID, next.Identity, next.CreatedAt = g.ID, g.ResourceID, g.Identity, g.CreatedAt
	s.registrations[id] = next
	return &next, nil
}

func (s *MemoryStore) DeleteRegistration(ctx context.Context, id string) error {
	cur, err := s.GetRegistration(ctx, id)
	if err != nil {
		return err
	}
	release, err := s.acquire(ctx, cur.ResourceID)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[id]; !ok {
		return model.RegistrationNotFound(id)
	}
	delete(s.registrations, id)
	ids := s.byResource[cur.ResourceID]
	for i, rid := range ids {
		if rid == id {
			s.byResource[cur.ResourceID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// ─── Aggregates ──────────────────────────────────────────────────────────────

func (s *MemoryStore) CountRegistrations(_ context.Context, resourceID string) (RegistrationCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := RegistrationCounts{ByStatus: map[model.RegistrationStatus]int{}}
	for _, id := range s.byResource[resourceID] {
		g := s.registrations[id]
		counts.ByStatus[g.Status]++
		if g.CertificateIssued {
			counts.Certificates++
		}
	}
	return counts, nil
}

func (s *MemoryStore) CountResources(context.Context) ([]ResourceCount, error) {
	s.mu.RLock()
	type key struct {
		kind   model.ResourceKind
		status model.ResourceStatus
	}
	grouped := map[key]int{}
	for _, r := range s.resources {
		grouped[key{r.Kind, r.Status}]++
	}
	s.mu.RUnlock()

	out := make([]ResourceCount, 0, len(grouped))
	for k, n := range grouped {
		out = append(out, ResourceCount{Kind: k.kind, Status: k.status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
