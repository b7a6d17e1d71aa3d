// Package domain contains core concepts of the chat system.
// This file defines User entities and their presence attributes.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// Presence is the durable online record of a user.
type Presence struct {
	Online        bool
	LastSeen      time.Time
	ConnectionRef *string
}

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Presence     Presence
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicProfile is what other users and the owner get to see.
type PublicProfile struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsOnline  bool      `json:"isOnline"`
	LastSeen  time.Time `json:"lastSeen"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) PublicProfile() PublicProfile {
	return PublicProfile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsOnline:  u.Presence.Online,
		LastSeen:  u.Presence.LastSeen,
		CreatedAt: u.CreatedAt,
	}
}
