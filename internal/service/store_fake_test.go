package service_test

import (
	"sync"
	"time"

	"mukando/internal/models"
	"mukando/internal/repository"
)

// fakeStore is an in-memory PaymentStore with the same atomicity contract as
// the gorm repository: RecordIfPending and FinalizeIfPending are single
// guarded read-modify-writes under one lock.
type fakeStore struct {
	mu          sync.Mutex
	byID        map[string]*models.Payment
	byRef       map[string]string
	createCalls int
	forcedDupes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:  make(map[string]*models.Payment),
		byRef: make(map[string]string),
	}
}

func clonePayment(p *models.Payment) *models.Payment {
	cp := *p
	if p.PaymentDate != nil {
		d := *p.PaymentDate
		cp.PaymentDate = &d
	}
	return &cp
}

func (s *fakeStore) Create(p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCalls++
	if s.forcedDupes > 0 {
		s.forcedDupes--
		return repository.ErrDuplicateReference
	}
	if _, exists := s.byRef[p.Reference]; exists {
		return repository.ErrDuplicateReference
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.byID[p.ID] = clonePayment(p)
	s.byRef[p.Reference] = p.ID
	return nil
}

func (s *fakeStore) FindByID(id string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *fakeStore) FindByReference(reference string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRef[reference]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePayment(s.byID[id]), nil
}

func (s *fakeStore) UpdateByID(id string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	applyUpdates(p, updates)
	return nil
}

func (s *fakeStore) guardedUpdate(id, externalID string, updates map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status != models.StatusPending {
		return false, nil
	}
	if externalID != "" && p.ExternalPaymentID != "" && p.ExternalPaymentID != externalID {
		return false, nil
	}
	applyUpdates(p, updates)
	return true, nil
}

func (s *fakeStore) RecordIfPending(id, externalID string, updates map[string]interface{}) (bool, error) {
	return s.guardedUpdate(id, externalID, updates)
}

func (s *fakeStore) FinalizeIfPending(id, externalID string, updates map[string]interface{}) (bool, error) {
	return s.guardedUpdate(id, externalID, updates)
}

func (s *fakeStore) FindStalePending(createdBefore time.Time, limit int) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Payment
	for _, p := range s.byID {
		if p.Status == models.StatusPending && p.PollURL != "" && p.CreatedAt.Before(createdBefore) {
			out = append(out, *clonePayment(p))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) FindPendingBefore(createdBefore time.Time, limit int) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Payment
	for _, p := range s.byID {
		if p.Status == models.StatusPending && p.CreatedAt.Before(createdBefore) {
			out = append(out, *clonePayment(p))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func applyUpdates(p *models.Payment, updates map[string]interface{}) {
	for col, val := range updates {
		switch col {
		case "status":
			p.Status = val.(models.PaymentStatus)
		case "external_payment_id":
			p.ExternalPaymentID = val.(string)
		case "gateway_response":
			p.GatewayResponse = val.(string)
		case "failure_reason":
			p.FailureReason = val.(string)
		case "payment_date":
			d := val.(time.Time)
			p.PaymentDate = &d
		case "redirect_url":
			p.RedirectURL = val.(string)
		case "poll_url":
			p.PollURL = val.(string)
		case "instructions":
			p.Instructions = val.(string)
		case "updated_at":
			p.UpdatedAt = val.(time.Time)
		}
	}
}
