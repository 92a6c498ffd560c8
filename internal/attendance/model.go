package attendance

import (
	"errors"
	"time"
)

// EventType is the direction of a clock event.
type EventType string

const (
	EventIn  EventType = "in"
	EventOut EventType = "out"
)

// Valid reports whether t is one of the two known event types.
func (t EventType) Valid() bool {
	return t == EventIn || t == EventOut
}

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidEventType = errors.New("event type must be \"in\" or \"out\"")
	ErrWrongPassword    = errors.New("incorrect password")
)

// User is an employee that can clock in and out. IsClockedIn and LastClockIn
// are projections of the ledger and are recomputed on every read.
type User struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Password    string     `json:"password,omitempty" yaml:"password,omitempty"`
	IsClockedIn bool       `json:"isClockedIn" yaml:"-"`
	LastClockIn *time.Time `json:"lastClockIn,omitempty" yaml:"-"`
}

// HasPassword reports whether the user must present a password to clock.
func (u User) HasPassword() bool {
	return u.Password != ""
}

// Public returns a copy safe to hand to clients.
func (u User) Public() User {
	u.Password = ""
	return u
}

// Geo is an optional client-reported position.
type Geo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TimeRecord is one immutable ledger entry.
type TimeRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
}

// Status is the derived clock state of a single user.
type Status struct {
	IsClockedIn bool       `json:"isClockedIn"`
	LastClockIn *time.Time `json:"lastClockIn,omitempty"`
}
