// Package ledger models partner log entries: a typed envelope around one of
// five detail variants, the approval workflow, and the aggregate views.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LogType discriminates the detail variant of an entry
type LogType string

// Log types
const (
	TypeWork         LogType = "work"
	TypeExpense      LogType = "expense"
	TypeTransaction  LogType = "transaction"
	TypeContribution LogType = "contribution"
	TypeWithdrawal   LogType = "withdrawal"
)

// AllTypes lists every log type in display order
var AllTypes = []LogType{TypeWork, TypeExpense, TypeTransaction, TypeContribution, TypeWithdrawal}

// ErrUnknownType is returned for an unrecognised log type
var ErrUnknownType = errors.New("unknown log type")

// ParseLogType validates a raw type name
func ParseLogType(s string) (LogType, error) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// AmountBearing reports whether entries of this type must carry a positive amount
func (t LogType) AmountBearing() bool {
	return t != TypeWork
}

// Status of an entry in the approval workflow
type Status string

// Statuses
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusArchived Status = "archived"
)

// Entry is a single partner log. Details holds the variant matching Type.
type Entry struct {
	ID          string     `json:"id"`
	Type        LogType    `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CreatedBy   string     `json:"created_by"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DecisionBy  *string    `json:"decision_by,omitempty"`
	DecisionAt  *time.Time `json:"decision_at,omitempty"`
	Tags        []string   `json:"tags"`
	ProjectID   string     `json:"project_id,omitempty"`
	Details     Details    `json:"details"`
}

// Amount returns the entry's amount when its variant carries one
func (e *Entry) Amount() (decimal.Decimal, bool) {
	if a, ok := e.Details.(amounted); ok {
		n := a.amount()
		return n.Decimal, n.Valid
	}
	return decimal.Zero, false
}

// Category returns the grouping key used for expense analytics
func (e *Entry) Category() string {
	if d, ok := e.Details.(*ExpenseDetails); ok {
		return d.Category
	}
	return ""
}

// Filter narrows List queries. Zero values mean "any".
type Filter struct {
	Type      LogType
	Status    Status
	CreatedBy string
	Limit     int
	Offset    int
}

// DefaultLimit caps list responses when no limit is given
const DefaultLimit = 50

// Normalize clamps paging values
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = DefaultLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// MarshalDetails encodes the variant payload for storage
func MarshalDetails(d Details) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}
