package domain

import "time"

// AuditLogEntry records one state-changing action. The log is append-only
// with bounded retention; the store trims the oldest entries past the cap.
type AuditLogEntry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	UserID    string         `json:"userId"`
	Timestamp time.Time      `json:"timestamp"`
}

// Audit retention: when the log exceeds AuditLogMaxEntries rows the store
// keeps only the newest AuditLogKeepEntries.
const (
	AuditLogMaxEntries  = 1000
	AuditLogKeepEntries = 500
)
