package model

import "time"

// Provider identifies an external identity provider.
type Provider string

const ProviderGitHub Provider = "GITHUB"

// OAuthAccount binds one external identity to one local user and stores the
// provider access token, AES-GCM sealed.
//
// (Provider, ProviderUserID) is unique, and so is (Provider, UserID).
// The three token fields are base64 and are replaced together on every login.
type OAuthAccount struct {
	ID              string    `json:"id"             db:"id"`
	Provider        Provider  `json:"provider"       db:"provider"`
	ProviderUserID  string    `json:"providerUserId" db:"provider_user_id"`
	TokenCiphertext string    `json:"-"              db:"access_token_encrypted"`
	TokenIV         string    `json:"-"              db:"iv_encrypt"`
	TokenTag        string    `json:"-"              db:"tag_encrypt"`
	UserID          string    `json:"userId"         db:"user_id"`
	CreatedAt       time.Time `json:"createdAt"      db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt"      db:"updated_at"`
}
