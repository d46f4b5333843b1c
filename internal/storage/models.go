package storage

import "time"

// AuditRecord is one handled playground request. ID is always generated by
// the service; RequestID is the correlation id, which a client may supply and
// reuse.
type AuditRecord struct {
	ID          string    `json:"id" db:"id"`
	RequestID   string    `json:"request_id" db:"request_id"`
	Endpoint    string    `json:"endpoint" db:"endpoint"` // run, compile-wasm
	Backend     string    `json:"backend" db:"backend"`
	CodeHash    string    `json:"code_hash" db:"code_hash"`
	Result      string    `json:"result" db:"result"` // ok, rejected, compile_error, timeout, error
	ExitCode    int       `json:"exit_code" db:"exit_code"`
	TimedOut    bool      `json:"timed_out" db:"timed_out"`
	DurationMS  int64     `json:"duration_ms" db:"duration_ms"`
	OutputBytes int       `json:"output_bytes" db:"output_bytes"`
	RemoteAddr  string    `json:"remote_addr" db:"remote_addr"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	SecurityEvents []SecurityEventRecord `json:"security_events,omitempty" db:"-"`
}

// SecurityEventRecord stores one escape-detector hit for audit.
type SecurityEventRecord struct {
	ID        string    `json:"id" db:"id"`
	AuditID   string    `json:"audit_id" db:"audit_id"`
	Pattern   string    `json:"pattern" db:"pattern"`
	Severity  string    `json:"severity" db:"severity"`
	Source    string    `json:"source" db:"source"` // code, output
	Line      int       `json:"line,omitempty" db:"line"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
