package model

import "time"

// Account is the mailbox owner signed in through the web surface.
type Account struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenExpiry  time.Time `json:"token_expiry"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewAccount(email, name, accessToken, refreshToken string, tokenExpiry time.Time) *Account {
	return &Account{
		Email:        email,
		Name:         name,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenExpiry:  tokenExpiry,
		UpdatedAt:    time.Now(),
	}
}
