package models

import "time"

// Customer is keyed by (Phone, BusinessID).
type Customer struct {
	ID                string     `json:"id" gorm:"primaryKey"`
	Phone             string     `json:"phone" gorm:"not null;uniqueIndex:ux_customer_phone_business,priority:1"`
	BusinessID        string     `json:"business_id" gorm:"not null;uniqueIndex:ux_customer_phone_business,priority:2"`
	Name              string     `json:"name"`
	ReservationCount  int        `json:"reservation_count" gorm:"default:0"`
	LastReservationAt *time.Time `json:"last_reservation_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomerUpdate carries the fields written by UpsertCustomer. Zero values
// leave the stored column untouched.
type CustomerUpdate struct {
	Name             string
	ReservationAt    *time.Time
	CountReservation bool
}
