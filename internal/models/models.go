package models

import "time"

// SavedPlayer is a player contact a trader kept for quick activation
type SavedPlayer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TraderRecord describes a principal granted trading rights
type TraderRecord struct {
	UserID       int64         `json:"user_id"`
	Username     string        `json:"username,omitempty"`
	Name         string        `json:"name,omitempty"`
	RegisteredAt time.Time     `json:"registered_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	Active       bool          `json:"active"`
	SavedPlayers []SavedPlayer `json:"saved_players,omitempty"`
}

// IsActive reports whether the subscription is switched on and not expired
func (t TraderRecord) IsActive(now time.Time) bool {
	return t.Active && now.Before(t.ExpiresAt)
}

// ActivationKey is a one-time subscription redemption token
type ActivationKey struct {
	Key       string    `json:"key"`
	Days      int       `json:"days"`
	CreatedAt time.Time `json:"created_at"`
}

// LogType classifies operation log entries
type LogType string

const (
	LogPlayer   LogType = "player"
	LogCheck    LogType = "check"
	LogActivate LogType = "activate"
)

// Valid reports whether t is one of the known log types
func (t LogType) Valid() bool {
	switch t {
	case LogPlayer, LogCheck, LogActivate:
		return true
	}
	return false
}

// OperationLogEntry is an immutable record of one remote API interaction
type OperationLogEntry struct {
	ID          string    `json:"id"`
	PrincipalID int64     `json:"principal_id"`
	Type        LogType   `json:"type"`
	Time        time.Time `json:"time"`
	PlayerID    string    `json:"player_id,omitempty"`
	PlayerName  string    `json:"player_name,omitempty"`
	Code        string    `json:"code,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	ActivatedTo string    `json:"activated_to,omitempty"`
	ActivatedAt int64     `json:"activated_at,omitempty"`
	Result      string    `json:"result"`
}

// LogStats holds per-type entry counts
type LogStats struct {
	Player   int `json:"player"`
	Check    int `json:"check"`
	Activate int `json:"activate"`
}

// Total returns the number of entries across all types
func (s LogStats) Total() int {
	return s.Player + s.Check + s.Activate
}

// LogQuery selects a slice of a principal's log.
// Limit > 0 returns the newest Limit entries, otherwise Page/PageSize apply.
type LogQuery struct {
	Type     LogType
	Limit    int
	Page     int
	PageSize int
}

// LogPage is the result of a log query
type LogPage struct {
	Items    []OperationLogEntry `json:"items"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page,omitempty"`
	PageSize int                 `json:"page_size,omitempty"`
	Stats    LogStats            `json:"stats"`
}
