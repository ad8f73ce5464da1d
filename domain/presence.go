package domain

import "time"

type Status string

const (
	Online  Status = "online"
	Busy    Status = "busy"
	Offline Status = "offline"
)

type Presence struct {
	UserID   string
	Status   Status
	LastSeen time.Time
}
