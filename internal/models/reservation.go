package models

import (
	"strings"
	"time"
)

type ServiceType string

const (
	ServiceDinner ServiceType = "dinner"
	ServiceDance  ServiceType = "dance"
)

// Label is the Spanish wording used in customer replies.
func (s ServiceType) Label() string {
	switch s {
	case ServiceDinner:
		return "cena"
	case ServiceDance:
		return "baile"
	}
	return ""
}

// Reservation is only written after the deposit has been verified.
// (BusinessID, PaymentReference) is unique, so replaying the same reference
// can never produce a second row.
type Reservation struct {
	ID               string      `json:"id" gorm:"primaryKey"`
	Code             string      `json:"code" gorm:"uniqueIndex;not null"`
	BusinessID       string      `json:"business_id" gorm:"not null;uniqueIndex:ux_reservation_business_reference,priority:1"`
	PaymentReference string      `json:"payment_reference" gorm:"not null;uniqueIndex:ux_reservation_business_reference,priority:2"`
	CustomerPhone    string      `json:"customer_phone" gorm:"index;not null"`
	CustomerName     string      `json:"customer_name"`
	Day              string      `json:"day"`
	Date             time.Time   `json:"date" gorm:"type:date"`
	Time             string      `json:"time"`
	PartySize        int         `json:"party_size"`
	ServiceType      ServiceType `json:"service_type"`

	// Payment
	DepositAmount   float64 `json:"deposit_amount"`
	PaidAmount      float64 `json:"paid_amount"`
	Currency        string  `json:"currency"`
	PaymentProvider string  `json:"payment_provider"`
	PaymentStatus   string  `json:"payment_status"`

	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ReservationStatusConfirmed = "confirmed"

	PaymentStatusApproved = "approved"
)

type Slot string

const (
	SlotDay       Slot = "day"
	SlotTime      Slot = "time"
	SlotPartySize Slot = "party_size"
	SlotService   Slot = "service_type"
	SlotName      Slot = "customer_name"
)

// ReservationDraft is the resolved tuple collected by the dialogue. It is
// complete once all five fields are set.
type ReservationDraft struct {
	CustomerName string
	Day          string
	Time         string
	PartySize    int
	ServiceType  ServiceType
}

// Missing lists the unset slots in the order they are asked for.
func (d ReservationDraft) Missing() []Slot {
	var missing []Slot
	if d.Day == "" {
		missing = append(missing, SlotDay)
	}
	if d.PartySize == 0 {
		missing = append(missing, SlotPartySize)
	}
	if d.ServiceType == "" {
		missing = append(missing, SlotService)
	}
	if d.Time == "" {
		missing = append(missing, SlotTime)
	}
	if strings.TrimSpace(d.CustomerName) == "" {
		missing = append(missing, SlotName)
	}
	return missing
}

func (d ReservationDraft) Complete() bool {
	return len(d.Missing()) == 0
}

// ExpectedDeposit is unit × party size. ok is false when either factor is
// unknown.
func (d ReservationDraft) ExpectedDeposit(unit float64) (float64, bool) {
	if unit <= 0 || d.PartySize <= 0 {
		return 0, false
	}
	return unit * float64(d.PartySize), true
}
