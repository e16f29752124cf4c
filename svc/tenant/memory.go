package tenant

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry keeps records in process memory.
// Returned records are copies, so callers cannot mutate its state.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]*Record
	owners  map[uuid.UUID][]*Owner
	now     func() time.Time
}

// NewMemoryRegistry returns an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		records: make(map[string]*Record),
		owners:  make(map[uuid.UUID][]*Owner),
		now:     time.Now,
	}
}

func (m *MemoryRegistry) Create(_ context.Context, r *Record) error {
	r.prepare(m.now())
	if err := r.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[r.Code]; ok {
		return &ConflictError{Field: FieldCode, Value: r.Code}
	}
	m.records[r.Code] = r.clone()
	return nil
}

func (m *MemoryRegistry) FindByID(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.ID == id {
			return r.clone(), nil
		}
	}
	return nil, ErrTenantNotFound
}

func (m *MemoryRegistry) FindByCode(_ context.Context, code string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[code]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return r.clone(), nil
}

func (m *MemoryRegistry) FindByStatus(_ context.Context, status Status) ([]*Record, error) {
	return m.filter(func(r *Record) bool { return r.Status == status }), nil
}

func (m *MemoryRegistry) List(_ context.Context) ([]*Record, error) {
	return m.filter(func(*Record) bool { return true }), nil
}

func (m *MemoryRegistry) ExpiredSubscriptions(_ context.Context, now time.Time) ([]*Record, error) {
	return m.filter(func(r *Record) bool { return r.Active() && r.SubscriptionExpired(now) }), nil
}

func (m *MemoryRegistry) Transition(_ context.Context, code string, ev Event) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[code]
	if !ok {
		return nil, ErrTenantNotFound
	}
	next, err := r.Status.Next(ev)
	if err != nil {
		return nil, err
	}
	r.Status = next
	r.UpdatedAt = later(m.now(), r.UpdatedAt)
	return r.clone(), nil
}

func (m *MemoryRegistry) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[code]; !ok {
		return ErrTenantNotFound
	}
	delete(m.records, code)
	return nil
}

func (m *MemoryRegistry) CreateOwner(_ context.Context, o *Owner) error {
	o.prepare(m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ownerConflictLocked(o.Username, o.Email, o.Phone); err != nil {
		return err
	}
	c := *o
	c.PasswordHash = ""
	m.owners[o.TenantID] = append(m.owners[o.TenantID], &c)
	return nil
}

func (m *MemoryRegistry) FindOwner(_ context.Context, tenantID uuid.UUID) (*Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := m.owners[tenantID]
	if len(owners) == 0 {
		return nil, ErrOwnerNotFound
	}
	c := *owners[0]
	return &c, nil
}

func (m *MemoryRegistry) DeleteOwners(_ context.Context, tenantID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.owners, tenantID)
	return nil
}

func (m *MemoryRegistry) OwnerConflict(_ context.Context, username, email, phone string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.ownerConflictLocked(username, email, phone)
}

func (m *MemoryRegistry) ownerConflictLocked(username, email, phone string) error {
	for _, owners := range m.owners {
		for _, o := range owners {
			switch {
			case strings.EqualFold(o.Username, username):
				return &ConflictError{Field: FieldUsername, Value: username}
			case strings.EqualFold(o.Email, email):
				return &ConflictError{Field: FieldEmail, Value: email}
			case phone != "" && o.Phone == phone:
				return &ConflictError{Field: FieldPhone, Value: phone}
			}
		}
	}
	return nil
}

func (m *MemoryRegistry) filter(keep func(*Record) bool) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r.clone())
		}
	}
	slices.SortFunc(out, func(a, b *Record) int { return strings.Compare(a.Code, b.Code) })
	return out
}

// later returns now, or just after prev when the clock has not moved past it.
func later(now, prev time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}
