package entity

import "time"

// User is the credential record stored under user:{email}.
type User struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	// Created is epoch milliseconds.
	Created int64 `json:"created"`
	// TokenVersion only increases. Tokens stamped with any other value are rejected.
	TokenVersion int64 `json:"tokenVersion"`
}

// CreatedAt returns Created as a time.Time.
func (u *User) CreatedAt() time.Time {
	return time.UnixMilli(u.Created)
}
