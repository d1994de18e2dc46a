package pipeline

import (
	"sync"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
)

// RegionStore holds the current session region of interest. Runs read it
// once at start, so replacing it never affects a run in progress.
type RegionStore struct {
	mu      sync.RWMutex
	region  *domain.Region
	updated time.Time
}

// NewRegionStore returns an empty store.
func NewRegionStore() *RegionStore {
	return &RegionStore{}
}

// Set replaces the stored region.
func (s *RegionStore) Set(r *domain.Region) error {
	if r == nil || r.Len() == 0 {
		return &domain.InvalidGeometryError{Reason: "empty region"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.region = r
	s.updated = domain.Now()
	return nil
}

// Get returns the stored region, or an InvalidGeometryError if none was set.
func (s *RegionStore) Get() (*domain.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.region == nil {
		return nil, &domain.InvalidGeometryError{Reason: "no region of interest has been uploaded"}
	}
	return s.region, nil
}

// Updated returns when the region was last replaced.
func (s *RegionStore) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
