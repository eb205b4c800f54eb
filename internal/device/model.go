package device

import "time"

// Device is a registered wearable. The relay app authenticates its stream
// connection with the device's API key; only the prefix and a hash of the
// secret are stored.
type Device struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"not null" json:"name"`
	KeyPrefix  string     `gorm:"uniqueIndex;not null" json:"-"`
	KeyHash    string     `gorm:"not null" json:"-"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
