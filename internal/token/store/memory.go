package store

import (
	"context"
	"sort"
	"sync"

	"trivigil/internal/token/models"
)

// InMemoryStore keeps records in a map. It backs tests and standalone
// development mode; production deployments use PostgresStore.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.VerificationRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.VerificationRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.Token]; ok {
		return ErrDuplicateToken
	}
	cp := *record
	s.records[record.Token] = &cp
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryStore) FindByBuyer(_ context.Context, buyer int64) (*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.VerificationRecord
	for _, record := range s.records {
		if record.BuyerIdentity == nil || *record.BuyerIdentity != buyer {
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) BindBuyer(_ context.Context, token string, buyer int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[token]
	if !ok {
		return ErrNotFound
	}
	if record.BuyerIdentity != nil && *record.BuyerIdentity != buyer {
		return ErrIdentityBound
	}
	record.BuyerIdentity = &buyer
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, token string, upd models.RecordUpdate) (*models.VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[token]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.TransactionReference != nil {
		record.TransactionReference = *upd.TransactionReference
	}
	if upd.AdminReference != nil {
		record.AdminReference = *upd.AdminReference
	}
	if upd.Verified != nil {
		record.Verified = *upd.Verified
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VerificationRecord, 0, len(s.records))
	for _, record := range s.records {
		cp := *record
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *InMemoryStore) Buyers(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var buyers []int64
	for _, record := range s.records {
		if record.BuyerIdentity == nil {
			continue
		}
		if _, ok := seen[*record.BuyerIdentity]; ok {
			continue
		}
		seen[*record.BuyerIdentity] = struct{}{}
		buyers = append(buyers, *record.BuyerIdentity)
	}
	sort.Slice(buyers, func(i, j int) bool { return buyers[i] < buyers[j] })
	return buyers, nil
}

func (s *InMemoryStore) Health(_ context.Context) error { return nil }
