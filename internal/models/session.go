package models

import "time"

// Turn is one aggregated customer message kept in the rolling history.
type Turn struct {
	Text   string    `json:"text"`
	Intent string    `json:"intent"`
	At     time.Time `json:"at"`
}

// DialogueContext is the partial state of an in-progress reservation
// conversation. At most one live row exists per (CustomerID, BusinessID).
type DialogueContext struct {
	ID         uint   `json:"-" gorm:"primaryKey"`
	CustomerID string `json:"customer_id" gorm:"not null;uniqueIndex:ux_dialogue_customer_business,priority:1"`
	BusinessID string `json:"business_id" gorm:"not null;uniqueIndex:ux_dialogue_customer_business,priority:2"`

	// Slots
	CustomerName     string      `json:"customer_name,omitempty"`
	Day              string      `json:"day,omitempty"`
	Time             string      `json:"time,omitempty"`
	PartySize        int         `json:"party_size,omitempty"`
	RequestedService ServiceType `json:"requested_service,omitempty"` // last explicit request, before band resolution
	ServiceType      ServiceType `json:"service_type,omitempty"`

	// Payment progress
	AwaitingPayment  bool    `json:"awaiting_payment"`
	ExpectedDeposit  float64 `json:"expected_deposit,omitempty"`
	PendingReference string  `json:"pending_reference,omitempty"` // reference received before the draft was complete
	LastOutcome      string  `json:"last_outcome,omitempty"`
	PaymentAttempts  int     `json:"payment_attempts,omitempty"`

	History []Turn `json:"history" gorm:"serializer:json"`
	Greeted bool   `json:"greeted"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime:false"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

func NewDialogueContext(customerID, businessID string, now time.Time) *DialogueContext {
	return &DialogueContext{
		CustomerID: customerID,
		BusinessID: businessID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (c *DialogueContext) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Touch records activity and pushes the expiry forward.
func (c *DialogueContext) Touch(now time.Time, ttl time.Duration) {
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(ttl)
}

// AppendTurn keeps at most max entries, dropping the oldest.
func (c *DialogueContext) AppendTurn(t Turn, max int) {
	c.History = append(c.History, t)
	if max > 0 && len(c.History) > max {
		c.History = append([]Turn(nil), c.History[len(c.History)-max:]...)
	}
}

// HasReservationData reports whether any reservation slot is filled. The
// customer name alone does not count.
func (c *DialogueContext) HasReservationData() bool {
	return c.Day != "" || c.Time != "" || c.PartySize > 0 || c.ServiceType != "" || c.AwaitingPayment
}

func (c *DialogueContext) Draft() ReservationDraft {
	return ReservationDraft{
		CustomerName: c.CustomerName,
		Day:          c.Day,
		Time:         c.Time,
		PartySize:    c.PartySize,
		ServiceType:  c.ServiceType,
	}
}

// Clone returns a deep copy so stores never share history slices with
// callers.
func (c *DialogueContext) Clone() *DialogueContext {
	if c == nil {
		return nil
	}
	cp := *c
	cp.History = append([]Turn(nil), c.History...)
	return &cp
}
