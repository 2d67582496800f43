package models

import "time"

// LoginAttempt is an append-only record of one authentication attempt
type LoginAttempt struct {
	ID          string    `db:"id"`
	Identifier  string    `db:"identifier"`
	SourceIP    string    `db:"source_ip"`
	UserAgent   string    `db:"user_agent"`
	Success     bool      `db:"success"`
	AttemptedAt time.Time `db:"attempted_at"`
}

// LockoutPolicy decides when an identifier is temporarily locked
type LockoutPolicy struct {
	MaxFailures  int
	Window       time.Duration
	LockDuration time.Duration
}

// DefaultLockoutPolicy is five failures in ten minutes, locked for ten minutes
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailures:  5,
		Window:       10 * time.Minute,
		LockDuration: 10 * time.Minute,
	}
}

// LockoutStatus is the derived lock state of an identifier
type LockoutStatus struct {
	Locked             bool `json:"locked"`
	MinutesUntilUnlock int  `json:"minutes_until_unlock"`
}
