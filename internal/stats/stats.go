// Package stats computes read-only registration statistics. Results are
// cached for a short TTL and concurrent loads of the same key share one
// store query.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/Shivanand-hulikatti/program-registrations/internal/metrics"
	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
	"github.com/Shivanand-hulikatti/program-registrations/internal/repository"
)

const overviewKey = "overview"

// Source is the slice of the store the projector reads.
type Source interface {
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	CountRegistrations(ctx context.Context, resourceID string) (repository.RegistrationCounts, error)
	CountResources(ctx context.Context) ([]repository.ResourceCount, error)
}

// Summary describes one resource's registrations.
type Summary struct {
	ResourceID         string                           `json:"resource_id"`
	Kind               model.ResourceKind               `json:"kind"`
	Status             model.ResourceStatus             `json:"status"`
	Capacity           *int                             `json:"capacity"`
	Admitted           int                              `json:"admitted"`
	Remaining          *int                             `json:"remaining"`
	ByStatus           map[model.RegistrationStatus]int `json:"by_status"`
	Attended           int                              `json:"attended"`
	CertificatesIssued int                              `json:"certificates_issued"`
	GeneratedAt        time.Time                        `json:"generated_at"`
}

// Overview counts resources across the whole program.
type Overview struct {
	Total       int                                                 `json:"total"`
	ByKind      map[model.ResourceKind]map[model.ResourceStatus]int `json:"by_kind"`
	GeneratedAt time.Time                                           `json:"generated_at"`
}

// Projector serves cached summaries.
type Projector struct {
	src   Source
	cache *gocache.Cache
	sf    singleflight.Group
	now   func() time.Time

	// gen counts invalidations per key. A load only fills the cache if
	// no invalidation happened while it ran.
	genMu sync.Mutex
	gen   map[string]uint64
}

// NewProjector builds a projector whose entries live for ttl (one second
// when ttl is not positive).
func NewProjector(src Source, ttl time.Duration, now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return &Projector{
		src:   src,
		cache: gocache.New(ttl, 2*ttl),
		now:   now,
		gen:   map[string]uint64{},
	}
}

func (p *Projector) generation(key string) uint64 {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	return p.gen[key]
}

// store caches v unless key was invalidated after gen was read.
func (p *Projector) store(key string, gen uint64, v any) {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	if p.gen[key] == gen {
		p.cache.SetDefault(key, v)
	}
}

func summaryKey(resourceID string) string { return "summary:" + resourceID }

// Summary returns the statistics for one resource.
func (p *Projector) Summary(ctx context.Context, resourceID string) (*Summary, error) {
	key := summaryKey(resourceID)
	if v, ok := p.cache.Get(key); ok {
		metrics.StatsCacheHits.WithLabelValues("hit").Inc()
		return v.(*Summary), nil
	}
	metrics.StatsCacheHits.WithLabelValues("miss").Inc()

	v, err, _ := p.sf.Do(key, func() (any, error) {
		gen := p.generation(key)
		s, err := p.loadSummary(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		p.store(key, gen, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

func (p *Projector) loadSummary(ctx context.Context, resourceID string) (*Summary, error) {
	res, err := p.src.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	counts, err := p.src.CountRegistrations(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("load summary: %w", err)
	}

	admitted := counts.ByStatus[model.StatusPending] + counts.ByStatus[model.StatusConfirmed]
	s := &Summary{
		ResourceID:         res.ID,
		Kind:               res.Kind,
		Status:             res.Status,
		Capacity:           res.Capacity,
		Admitted:           admitted,
		ByStatus:           counts.ByStatus,
		Attended:           counts.ByStatus[model.StatusAttended],
		CertificatesIssued: counts.Certificates,
		GeneratedAt:        p.now().UTC(),
	}
	if remaining, ok := res.Remaining(admitted); ok {
		s.Remaining = &remaining
	}
	return s, nil
}

// Overview returns resource counts by kind and status.
func (p *Projector) Overview(ctx context.Context) (*Overview, error) {
	if v, ok := p.cache.Get(overviewKey); ok {
		metrics.StatsCacheHits.WithLabelValues("hit").Inc()
		return v.(*Overview), nil
	}
	metrics.StatsCacheHits.WithLabelValues("miss").Inc()

	v, err, _ := p.sf.Do(overviewKey, func() (any, error) {
		gen := p.generation(overviewKey)
		rows, err := p.src.CountResources(ctx)
		if err != nil {
			return nil, fmt.Errorf("load overview: %w", err)
		}
		o := &Overview{ByKind: map[model.ResourceKind]map[model.ResourceStatus]int{}, GeneratedAt: p.now().UTC()}
		for _, r := range rows {
			if o.ByKind[r.Kind] == nil {
				o.ByKind[r.Kind] = map[model.ResourceStatus]int{}
			}
			o.ByKind[r.Kind][r.Status] += r.Count
			o.Total += r.Count
		}
		p.store(overviewKey, gen, o)
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Overview), nil
}

// Invalidate drops cached data affected by a write to resourceID.
func (p *Projector) Invalidate(resourceID string) {
	key := summaryKey(resourceID)
	p.genMu.Lock()
	p.gen[key]++
	p.gen[overviewKey]++
	p.cache.Delete(key)
	p.cache.Delete(overviewKey)
	p.genMu.Unlock()
	p.sf.Forget(key)
	p.sf.Forget(overviewKey)
}
