package auth

import "time"

type User struct {
	ID                    string
	FirstName             string
	LastName              string
	Email                 string
	PasswordHash          string
	ImageURL              string
	RefreshTokenHash      string
	RefreshTokenExpiresAt time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Profile is the public projection of a user record. It never carries the
// password hash or the refresh token hash.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		ImageURL:  u.ImageURL,
	}
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenType tags which flow a generate-tokens exchange belongs to.
type TokenType string

const (
	TokenTypeInitial TokenType = "initial"
	TokenTypeGoogle  TokenType = "google"
)
