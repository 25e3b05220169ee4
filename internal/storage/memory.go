package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
)

// MemoryStore holds all data in memory. Used for local runs and tests.
type MemoryStore struct {
	businesses   map[string]*models.Business
	customers    map[string]*models.Customer // business:phone
	reservations map[string]*models.Reservation
	byReference  map[string]string // business:reference -> reservation id
	contexts     map[string]*models.DialogueContext

	// Mutexes for thread safety
	businessMu    sync.RWMutex
	customerMu    sync.RWMutex
	reservationMu sync.RWMutex
	contextMu     sync.RWMutex

	// Counters for ID generation
	customerCounter    int
	reservationCounter int
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses:   make(map[string]*models.Business),
		customers:    make(map[string]*models.Customer),
		reservations: make(map[string]*models.Reservation),
		byReference:  make(map[string]string),
		contexts:     make(map[string]*models.DialogueContext),
	}
}

func (m *MemoryStore) Kind() string { return "memory" }

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Business operations
func (m *MemoryStore) GetBusinessByChannel(ctx context.Context, channelID string) (*models.Business, error) {
	m.businessMu.RLock()
	defer m.businessMu.RUnlock()

	for _, b := range m.businesses {
		if b.ChannelID == channelID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	m.businessMu.RLock()
	defer m.businessMu.RUnlock()

	b, exists := m.businesses[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) SaveBusiness(ctx context.Context, b *models.Business) error {
	m.businessMu.Lock()
	defer m.businessMu.Unlock()

	if b.ID == "" {
		b.ID = fmt.Sprintf("BIZ%05d", len(m.businesses)+1)
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	cp := *b
	m.businesses[b.ID] = &cp
	return nil
}

// Customer operations
func (m *MemoryStore) GetCustomer(ctx context.Context, phone, businessID string) (*models.Customer, error) {
	m.customerMu.RLock()
	defer m.customerMu.RUnlock()

	c, exists := m.customers[businessID+":"+phone]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) UpsertCustomer(ctx context.Context, phone, businessID string, upd models.CustomerUpdate) (*models.Customer, error) {
	m.customerMu.Lock()
	defer m.customerMu.Unlock()

	key := businessID + ":" + phone
	now := time.Now()
	c, exists := m.customers[key]
	if !exists {
		m.customerCounter++
		c = &models.Customer{
			ID:         fmt.Sprintf("CUS%05d", m.customerCounter),
			Phone:      phone,
			BusinessID: businessID,
			CreatedAt:  now,
		}
		m.customers[key] = c
	}
	applyCustomerUpdate(c, upd)
	c.UpdatedAt = now

	cp := *c
	return &cp, nil
}

func applyCustomerUpdate(c *models.Customer, upd models.CustomerUpdate) {
	if upd.Name != "" {
		c.Name = upd.Name
	}
	if upd.ReservationAt != nil {
		at := *upd.ReservationAt
		c.LastReservationAt = &at
	}
	if upd.CountReservation {
		c.ReservationCount++
	}
}

// Reservation operations
func (m *MemoryStore) InsertReservation(ctx context.Context, r *models.Reservation) error {
	m.reservationMu.Lock()
	defer m.reservationMu.Unlock()

	refKey := referenceKey(r.BusinessID, r.PaymentReference)
	if _, exists := m.byReference[refKey]; exists {
		return ErrDuplicateReservation
	}
	for _, existing := range m.reservations {
		if r.Code != "" && existing.Code == r.Code {
			return ErrDuplicateCode
		}
	}

	if r.ID == "" {
		m.reservationCounter++
		r.ID = fmt.Sprintf("RES%05d", m.reservationCounter)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r
	m.reservations[r.ID] = &cp
	m.byReference[refKey] = r.ID
	return nil
}

func (m *MemoryStore) GetReservationByReference(ctx context.Context, businessID, reference string) (*models.Reservation, error) {
	m.reservationMu.RLock()
	defer m.reservationMu.RUnlock()

	id, exists := m.byReference[referenceKey(businessID, reference)]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *m.reservations[id]
	return &cp, nil
}

// CountReservations reports the number of stored reservations.
func (m *MemoryStore) CountReservations() int {
	m.reservationMu.RLock()
	defer m.reservationMu.RUnlock()
	return len(m.reservations)
}

// Dialogue context operations
func (m *MemoryStore) GetContext(ctx context.Context, customerID, businessID string) (*models.DialogueContext, error) {
	m.contextMu.RLock()
	defer m.contextMu.RUnlock()

	dc, exists := m.contexts[contextKey(customerID, businessID)]
	if !exists {
		return nil, ErrNotFound
	}
	return dc.Clone(), nil
}

func (m *MemoryStore) UpsertContext(ctx context.Context, dc *models.DialogueContext) error {
	m.contextMu.Lock()
	defer m.contextMu.Unlock()

	m.contexts[contextKey(dc.CustomerID, dc.BusinessID)] = dc.Clone()
	return nil
}

func (m *MemoryStore) DeleteContext(ctx context.Context, customerID, businessID string) error {
	m.contextMu.Lock()
	defer m.contextMu.Unlock()

	delete(m.contexts, contextKey(customerID, businessID))
	return nil
}

func (m *MemoryStore) PurgeExpiredContexts(ctx context.Context, now time.Time) (int64, error) {
	m.contextMu.Lock()
	defer m.contextMu.Unlock()

	var purged int64
	for key, dc := range m.contexts {
		if dc.Expired(now) {
			delete(m.contexts, key)
			purged++
		}
	}
	return purged, nil
}
