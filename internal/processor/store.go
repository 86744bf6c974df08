package processor

import (
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultReportRetention is used when no retention is configured.
const DefaultReportRetention = 24 * time.Hour

// ReportStore keeps recent session reports in memory with expiry.
type ReportStore struct {
	cache *cache.Cache

	mu   sync.RWMutex
	last *Report
}

// NewReportStore returns a store whose reports expire after retention.
func NewReportStore(retention time.Duration) *ReportStore {
	if retention <= 0 {
		retention = DefaultReportRetention
	}
	return &ReportStore{cache: cache.New(retention, retention/2)}
}

// Add stores r under its ID.
func (s *ReportStore) Add(r *Report) {
	s.cache.SetDefault(r.ID, r)
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

// Get returns the report with the given ID.
func (s *ReportStore) Get(id string) (*Report, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	r, ok := v.(*Report)
	return r, ok
}

// Last returns the most recently stored report, even if it has expired from the list.
func (s *ReportStore) Last() (*Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last != nil
}

// List returns unexpired reports, newest first.
func (s *ReportStore) List() []*Report {
	items := s.cache.Items()
	reports := make([]*Report, 0, len(items))
	for _, item := range items {
		if r, ok := item.Object.(*Report); ok {
			reports = append(reports, r)
		}
	}
	slices.SortFunc(reports, func(a, b *Report) int {
		return b.FinishedAt.Compare(a.FinishedAt)
	})
	return reports
}

// Flush removes every stored report.
func (s *ReportStore) Flush() {
	s.cache.Flush()
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}
