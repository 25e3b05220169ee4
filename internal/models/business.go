package models

import "time"

// Business is a venue that takes reservations over one messaging channel.
// The core only reads it; rows are managed by the admin surface.
type Business struct {
	ID                string  `json:"id" gorm:"primaryKey"`
	Name              string  `json:"name" gorm:"not null"`
	ChannelID         string  `json:"channel_id" gorm:"uniqueIndex;not null"` // Cloud API phone number id or Twilio number
	OwnerPhone        string  `json:"owner_phone"`
	DepositPerPerson  float64 `json:"deposit_per_person"`
	Currency          string  `json:"currency" gorm:"default:ARS"`
	TransferAlias     string  `json:"transfer_alias"`
	DinnerDefaultTime string  `json:"dinner_default_time" gorm:"default:21:00"`
	DanceDefaultTime  string  `json:"dance_default_time" gorm:"default:00:30"`
	AccessToken       string  `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultTime returns the time assumed for a service when the customer
// never mentioned one.
func (b *Business) DefaultTime(service ServiceType) string {
	switch service {
	case ServiceDance:
		if b.DanceDefaultTime != "" {
			return b.DanceDefaultTime
		}
		return "00:30"
	default:
		if b.DinnerDefaultTime != "" {
			return b.DinnerDefaultTime
		}
		return "21:00"
	}
}
