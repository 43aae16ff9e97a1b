package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/plan"
)

// MemoryStore is an in-memory Store implementation for tests and local
// development. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription // keyed by subscriber ID
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (s *MemoryStore) GetBySubscriberID(_ context.Context, subscriberID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[subscriberID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) GetByGatewaySubscriptionID(_ context.Context, gatewaySubID string) (*Subscription, error) {
	if gatewaySubID == "" {
		return nil, ErrSubscriptionNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.GatewaySubscriptionID == gatewaySubID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) GetByGatewayCustomerID(_ context.Context, gatewayCustomerID string) (*Subscription, error) {
	if gatewayCustomerID == "" {
		return nil, ErrSubscriptionNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.GatewayCustomerID == gatewayCustomerID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) Save(_ context.Context, sub *Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.subs[sub.SubscriberID]
	if ok && existing.ID != sub.ID {
		return ErrSubscriptionExists
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	sub.UpdatedAt = time.Now().UTC()

	cp := *sub
	s.subs[sub.SubscriberID] = &cp
	return nil
}

func (s *MemoryStore) ListGraceExpired(_ context.Context, now time.Time) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Subscription
	for _, sub := range s.subs {
		if sub.Status == StatusPastDue && sub.PauseWindowElapsed(now) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) ListAutoResumable(_ context.Context, now time.Time) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Subscription
	for _, sub := range s.subs {
		// Past-due pauses belong to the grace-period sweep, never here.
		if sub.Status != StatusPastDue && sub.PauseWindowElapsed(now) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) ListRenewalsDue(_ context.Context, now time.Time) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Subscription
	for _, sub := range s.subs {
		renewable := sub.Status == StatusActive || sub.Status == StatusPendingChange
		if renewable && !sub.PeriodEnd.After(now) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sortByCreated(out)
	return out, nil
}

func sortByCreated(subs []*Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
}

// MemoryPauseStore is an in-memory PauseStore for tests and local
// development.
type MemoryPauseStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*PauseRecord
}

// NewMemoryPauseStore creates an empty in-memory pause store.
func NewMemoryPauseStore() *MemoryPauseStore {
	return &MemoryPauseStore{records: make(map[uuid.UUID]*PauseRecord)}
}

func (s *MemoryPauseStore) GetActive(_ context.Context, subscriptionID uuid.UUID) (*PauseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.SubscriptionID == subscriptionID && rec.Status == PauseStatusActive {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrPauseRecordNotFound
}

func (s *MemoryPauseStore) Save(_ context.Context, rec *PauseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Status == PauseStatusActive {
		for _, existing := range s.records {
			if existing.SubscriptionID == rec.SubscriptionID &&
				existing.Status == PauseStatusActive &&
				existing.ID != rec.ID {
				return ErrActivePauseExists
			}
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *MemoryPauseStore) ListBySubscription(_ context.Context, subscriptionID uuid.UUID) ([]*PauseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*PauseRecord
	for _, rec := range s.records {
		if rec.SubscriptionID == subscriptionID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartDate.After(out[j].StartDate)
	})
	return out, nil
}

// MemoryPerkUsageStore is an in-memory PerkUsageStore for tests and local
// development.
type MemoryPerkUsageStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*PerkUsage // keyed by subscriber ID
}

// NewMemoryPerkUsageStore creates an empty in-memory perk usage store.
func NewMemoryPerkUsageStore() *MemoryPerkUsageStore {
	return &MemoryPerkUsageStore{records: make(map[uuid.UUID]*PerkUsage)}
}

func (s *MemoryPerkUsageStore) GetBySubscriberID(_ context.Context, subscriberID uuid.UUID) (*PerkUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[subscriberID]
	if !ok {
		return nil, ErrPerkUsageNotFound
	}
	cp := clonePerkUsage(rec)
	return cp, nil
}

func (s *MemoryPerkUsageStore) Save(_ context.Context, usage *PerkUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	s.records[usage.SubscriberID] = clonePerkUsage(usage)
	return nil
}

func clonePerkUsage(u *PerkUsage) *PerkUsage {
	cp := *u
	cp.Used = make(map[plan.Perk]int64, len(u.Used))
	for k, v := range u.Used {
		cp.Used[k] = v
	}
	cp.Quotas = make(map[plan.Perk]int64, len(u.Quotas))
	for k, v := range u.Quotas {
		cp.Quotas[k] = v
	}
	return &cp
}

// KeyedLocker is an in-memory Locker backed by per-subscriber mutexes.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewKeyedLocker creates an in-memory per-subscriber locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *KeyedLocker) WithSubscriberLock(ctx context.Context, subscriberID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	lock, ok := l.locks[subscriberID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[subscriberID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}
