package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory, in insertion order. It backs
// tests and single-process runs; production wiring uses BunStore.
type MemoryStore struct {
	mu           sync.RWMutex
	customers    map[int64]Customer
	customerIDs  []int64
	tickets      map[int64]Ticket
	ticketIDs    []int64
	nextCustomer int64
	nextTicket   int64

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:    make(map[int64]Customer),
		tickets:      make(map[int64]Ticket),
		nextCustomer: 1,
		nextTicket:   1,
		now:          time.Now,
	}
}

// SeedCustomer inserts a customer, assigning an id when absent.
func (s *MemoryStore) SeedCustomer(c Customer) Customer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		c.ID = s.nextCustomer
	}
	if c.ID >= s.nextCustomer {
		s.nextCustomer = c.ID + 1
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	s.customers[c.ID] = c
	s.customerIDs = append(s.customerIDs, c.ID)
	return c
}

func (s *MemoryStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListCustomers(ctx context.Context, status string, limit int) ([]Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Customer, 0, limit)
	for _, id := range s.customerIDs {
		c := s.customers[id]
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateCustomer(ctx context.Context, id int64, fields map[string]any) (*Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	if _, err := ApplyFields(&c, fields); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	s.customers[id] = c
	return &c, nil
}

func (s *MemoryStore) CreateTicket(ctx context.Context, t *Ticket) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[t.CustomerID]; !ok {
		return nil, ErrCustomerNotFound
	}

	created := *t
	created.ID = s.nextTicket
	s.nextTicket++
	if created.Status == "" {
		created.Status = TicketOpen
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = s.now().UTC()
	}
	s.tickets[created.ID] = created
	s.ticketIDs = append(s.ticketIDs, created.ID)
	return &created, nil
}

func (s *MemoryStore) TicketsForCustomer(ctx context.Context, customerID int64) ([]Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Ticket
	for _, id := range s.ticketIDs {
		t := s.tickets[id]
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
