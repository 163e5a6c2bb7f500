package models

import "time"

// Company groups a source table under a display name
type Company struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CSVURL         string    `json:"csvUrl"`
	ReceivingEmail string    `json:"receivingEmail,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
