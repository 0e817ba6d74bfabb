package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Details is the variant payload of an entry
type Details interface {
	Kind() LogType
	sanitize()
	validate() error
}

type amounted interface {
	amount() Number
}

// Number is a nullable decimal that also decodes numeric strings.
// Blank or non-numeric input decodes to null instead of failing.
type Number struct {
	decimal.NullDecimal
}

// NewNumber wraps a decimal
func NewNumber(d decimal.Decimal) Number {
	return Number{decimal.NullDecimal{Decimal: d, Valid: true}}
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	*n = NewNumber(d)
	return nil
}

// MarshalJSON implements json.Marshaler
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.Decimal.String()), nil
}

// Positive reports a present, strictly positive value
func (n Number) Positive() bool {
	return n.Valid && n.Decimal.IsPositive()
}

// WorkDetails records time spent on a deliverable
type WorkDetails struct {
	HoursSpent   Number `json:"hours_spent"`
	Date         string `json:"date,omitempty"`
	Deliverables string `json:"deliverables,omitempty"`
	RepoLink     string `json:"repo_link,omitempty"`
	Blockers     string `json:"blockers,omitempty"`
	Priority     string `json:"priority,omitempty"`
	DueDate      string `json:"due_date,omitempty"`
}

// ExpenseDetails records money spent on behalf of the business
type ExpenseDetails struct {
	Amount         Number `json:"amount"`
	Category       string `json:"category"`
	Vendor         string `json:"vendor,omitempty"`
	PurchaseDate   string `json:"purchase_date,omitempty"`
	PaymentMethod  string `json:"payment_method,omitempty"`
	GSTApplicable  bool   `json:"gst_applicable"`
	GSTAmount      Number `json:"gst_amount"`
	ProofURL       string `json:"proof_url,omitempty"`
	BudgetEstimate Number `json:"budget_estimate"`
	Priority       string `json:"priority,omitempty"`
}

// TransactionDetails records income received from a customer
type TransactionDetails struct {
	Amount       Number `json:"amount"`
	PaymentMode  string `json:"payment_mode,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`
	InvoiceID    string `json:"invoice_id,omitempty"`
	ReceivedDate string `json:"received_date,omitempty"`
}

// Contribution types
const (
	ContributionCapital       = "capital"
	ContributionTemporaryLoan = "temporary_loan"
	ContributionRefund        = "refund"
)

// ContributionDetails records money a partner puts into the business
type ContributionDetails struct {
	ContributionType string `json:"contribution_type"`
	Amount           Number `json:"amount"`
	Mode             string `json:"mode,omitempty"`
	ProofURL         string `json:"proof_url,omitempty"`
	Remarks          string `json:"remarks,omitempty"`
}

// WithdrawalDetails records money a partner takes out
type WithdrawalDetails struct {
	Purpose        string `json:"purpose"`
	Amount         Number `json:"amount"`
	Method         string `json:"method,omitempty"`
	WithdrawalDate string `json:"withdrawal_date,omitempty"`
	Emergency      bool   `json:"emergency"`
}

func (*WorkDetails) Kind() LogType         { return TypeWork }
func (*ExpenseDetails) Kind() LogType      { return TypeExpense }
func (*TransactionDetails) Kind() LogType  { return TypeTransaction }
func (*ContributionDetails) Kind() LogType { return TypeContribution }
func (*WithdrawalDetails) Kind() LogType   { return TypeWithdrawal }

func (d *ExpenseDetails) amount() Number      { return d.Amount }
func (d *TransactionDetails) amount() Number  { return d.Amount }
func (d *ContributionDetails) amount() Number { return d.Amount }
func (d *WithdrawalDetails) amount() Number   { return d.Amount }

// NewDetails returns an empty variant for t
func NewDetails(t LogType) (Details, error) {
	switch t {
	case TypeWork:
		return &WorkDetails{}, nil
	case TypeExpense:
		return &ExpenseDetails{}, nil
	case TypeTransaction:
		return &TransactionDetails{}, nil
	case TypeContribution:
		return &ContributionDetails{}, nil
	case TypeWithdrawal:
		return &WithdrawalDetails{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// DecodeDetails decodes a raw payload into the variant for t
func DecodeDetails(t LogType, raw []byte) (Details, error) {
	d, err := NewDetails(t)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, &ValidationError{Field: "details", Message: "malformed details: " + err.Error()}
	}
	return d, nil
}
