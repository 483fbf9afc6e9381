package model

import "time"

// TrackerCredential always holds the plaintext token in memory. Encryption
// happens only at the store boundary.
type TrackerCredential struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"base_url"`
	Email     string    `json:"email"`
	APIToken  string    `json:"-"`
	ID        int64     `json:"id"`
}
