package memory

import (
	"strings"
	"sync"
	"time"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
)

// PaymentRequestStore is an in-memory repositories.PaymentRequestRepository.
type PaymentRequestStore struct {
	mu       sync.Mutex
	nextID   uint
	requests map[uint]models.ExternalPaymentRequest
}

func NewPaymentRequestStore() *PaymentRequestStore {
	return &PaymentRequestStore{nextID: 1, requests: make(map[uint]models.ExternalPaymentRequest)}
}

func (s *PaymentRequestStore) Create(req *models.ExternalPaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.ExternalID == req.ExternalID {
			return repositories.ErrDuplicateExternalID
		}
	}
	req.ID = s.nextID
	s.nextID++
	req.CreatedAt = time.Now()
	if req.Status == "" {
		req.Status = models.PaymentStatusPending
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *PaymentRequestStore) GetByExternalID(externalID string) (*models.ExternalPaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.ExternalID == externalID {
			cp := r
			return &cp, nil
		}
	}
	return nil, repositories.ErrPaymentRequestNotFound
}

func (s *PaymentRequestStore) GetByProviderReference(ref string) (*models.ExternalPaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.ProviderReference == ref {
			cp := r
			return &cp, nil
		}
	}
	return nil, repositories.ErrPaymentRequestNotFound
}

func (s *PaymentRequestStore) Update(req *models.ExternalPaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return repositories.ErrPaymentRequestNotFound
	}
	req.UpdatedAt = time.Now()
	s.requests[req.ID] = *req
	return nil
}

func (s *PaymentRequestStore) MarkTerminal(id uint, status, failureReason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return false, repositories.ErrPaymentRequestNotFound
	}
	if r.Status != models.PaymentStatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	r.Status = status
	r.FailureReason = failureReason
	r.CompletedAt = &now
	r.NextPollAt = nil
	s.requests[id] = r
	return true, nil
}

func (s *PaymentRequestStore) ListDue(now time.Time, limit int) ([]models.ExternalPaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.ExternalPaymentRequest
	for _, r := range s.requests {
		if r.Status == models.PaymentStatusPending && r.NextPollAt != nil && !r.NextPollAt.After(now) {
			due = append(due, r)
		}
	}
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// SerialCodeStore is an in-memory repositories.SerialCodeRepository.
type SerialCodeStore struct {
	mu     sync.Mutex
	nextID uint
	codes  map[string]models.SerialCode
}

func NewSerialCodeStore() *SerialCodeStore {
	return &SerialCodeStore{nextID: 1, codes: make(map[string]models.SerialCode)}
}

func (s *SerialCodeStore) Create(sc *models.SerialCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToUpper(sc.Code)
	if _, ok := s.codes[key]; ok {
		return repositories.ErrSerialCodeTaken
	}
	for _, existing := range s.codes {
		if existing.PassengerID == sc.PassengerID {
			return repositories.ErrSerialCodeTaken
		}
	}
	sc.ID = s.nextID
	s.nextID++
	s.codes[key] = *sc
	return nil
}

func (s *SerialCodeStore) GetByCode(code string) (*models.SerialCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.codes[strings.ToUpper(code)]
	if !ok {
		return nil, repositories.ErrSerialCodeNotFound
	}
	cp := sc
	return &cp, nil
}

func (s *SerialCodeStore) GetByPassengerID(passengerID uint) (*models.SerialCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.codes {
		if sc.PassengerID == passengerID {
			cp := sc
			return &cp, nil
		}
	}
	return nil, repositories.ErrSerialCodeNotFound
}

// CommissionRuleStore is an in-memory repositories.CommissionRuleRepository.
type CommissionRuleStore struct {
	mu    sync.Mutex
	rules map[string]models.CommissionRule
}

func NewCommissionRuleStore() *CommissionRuleStore {
	return &CommissionRuleStore{rules: make(map[string]models.CommissionRule)}
}

func (s *CommissionRuleStore) GetByOperation(operation string) (*models.CommissionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[operation]
	if !ok {
		return nil, repositories.ErrCommissionRuleNotFound
	}
	cp := r
	return &cp, nil
}

func (s *CommissionRuleStore) Upsert(rule *models.CommissionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rules[rule.Operation]; ok {
		rule.ID = existing.ID
	} else {
		rule.ID = uint(len(s.rules) + 1)
	}
	s.rules[rule.Operation] = *rule
	return nil
}
