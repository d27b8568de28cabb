package models

import "time"

// Identity is the claim carried inside an access token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email}
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string   `json:"token"`
	User  Identity `json:"user"`
}
