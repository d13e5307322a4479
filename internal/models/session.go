package models

import "time"

// PlayerSession records one player's connection interval to a workload. Rows
// are never deleted; closing a session sets DisconnectedAt, so the table is
// an append-only occupancy log.
type PlayerSession struct {
	ID             string     `gorm:"primaryKey;column:id" json:"id"`
	WorkloadID     string     `gorm:"index:idx_sessions_open;column:workload_id" json:"workload_id"`
	UserID         string     `gorm:"index:idx_sessions_open;column:user_id" json:"user_id"`
	ConnectedAt    time.Time  `gorm:"column:connected_at" json:"connected_at"`
	DisconnectedAt *time.Time `gorm:"index:idx_sessions_open;column:disconnected_at" json:"disconnected_at,omitempty"`
}

func (PlayerSession) TableName() string {
	return "player_sessions"
}

// Open reports whether the session is still connected.
func (s *PlayerSession) Open() bool {
	return s.DisconnectedAt == nil
}
