package domain

import "time"

// AccessToken is an encrypted platform access token stored for a principal.
// The plaintext is never persisted.
type AccessToken struct {
	Principal      string    `json:"principal" db:"principal"`
	EncryptedToken string    `json:"encrypted_token" db:"encrypted_token"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// SetTokenRequest is the request body for storing an encrypted token.
type SetTokenRequest struct {
	EncryptedToken string `json:"encrypted_token"`
}
