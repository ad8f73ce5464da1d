// Package domain contains core concepts of the chat system.
// This file defines User entities and the public identity attached to events.
// No runtime, network, or UI logic should be added here.
package domain

type User struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
}

// UserRef is the identity shown next to a message or a reaction.
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Ref falls back to the username, then to the id, when no display name was chosen.
func (u User) Ref() UserRef {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = u.ID
	}
	return UserRef{ID: u.ID, DisplayName: name, AvatarURL: u.AvatarURL}
}

// UnknownUser is used when the store has no profile for an identity.
func UnknownUser(id string) User {
	return User{ID: id}
}
