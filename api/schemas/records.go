package schemas

import (
	"encoding/json"
	"time"
)

// -- Persisted Records --

// VerdictResult is the structured result column of a validation log row.
type VerdictResult struct {
	IsValid       bool      `json:"isValid"`
	Reason        string    `json:"reason"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
	Attempts      int       `json:"attempts"`
	Error         string    `json:"error,omitempty"`
}

// VerdictRecord maps to the append-only `validation_logs` table.
type VerdictRecord struct {
	ID         string          `json:"id"`
	Identifier string          `json:"identifier"`
	Module     string          `json:"module"`
	Result     VerdictResult   `json:"result"`
	Context    json.RawMessage `json:"context,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DeregistrationRecord maps to the `invalid_users` table, which carries a
// unique constraint on identifier.
type DeregistrationRecord struct {
	ID            string          `json:"id"`
	Identifier    string          `json:"identifier"`
	Reason        string          `json:"reason"`
	Module        string          `json:"module"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	DetectedAt    time.Time       `json:"detected_at"`
	Context       json.RawMessage `json:"context,omitempty"`
}
