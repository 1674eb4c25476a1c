// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// Users are created on their first GitHub login. There is no password login
// path, so PasswordHash holds a bcrypt hash of a random placeholder and is
// never serialised.
//
// Email is the account's stable lookup key. A second OAuth provider that
// reports the same verified email is linked to the existing user rather than
// creating a new one.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Name         string    `json:"name"      db:"name"`
	Bio          string    `json:"bio"       db:"bio"`
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"`
	Skills       []Skill   `json:"skills"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Skill is a seeded technology a user can list on their profile.
type Skill struct {
	ID   int64  `json:"id"   db:"id"`
	Name string `json:"name" db:"name"`
}

// UserUpdate is a partial profile update. Nil fields are left unchanged.
// A non-nil SkillIDs replaces the whole skill set.
type UserUpdate struct {
	Name      *string
	Bio       *string
	AvatarURL *string
	SkillIDs  []int64
}
