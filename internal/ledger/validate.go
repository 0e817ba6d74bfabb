package ledger

import (
	"errors"
	"strings"
	"time"

	"commerce-service/internal/validation"

	"github.com/google/uuid"
)

// ErrInvalid is wrapped by every ValidationError
var ErrInvalid = errors.New("invalid log entry")

// ValidationError names the offending field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Unwrap lets callers match with errors.Is(err, ErrInvalid)
func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

const maxTitleLength = 200

// CreateLogInput is what a partner submits
type CreateLogInput struct {
	Type        LogType
	Title       string
	Description string
	Tags        []string
	ProjectID   string
	Details     Details
}

// NewEntry validates and sanitizes input and returns a pending entry owned by createdBy
func NewEntry(in CreateLogInput, createdBy string, now time.Time) (*Entry, error) {
	if _, err := ParseLogType(string(in.Type)); err != nil {
		return nil, invalid("type", "unknown log type")
	}
	if strings.TrimSpace(createdBy) == "" {
		return nil, invalid("created_by", "caller identity is required")
	}

	title := validation.SanitizeInput(in.Title)
	if title == "" {
		return nil, invalid("title", "title is required")
	}
	if len(title) > maxTitleLength {
		return nil, invalid("title", "title is too long")
	}

	details := in.Details
	if details == nil {
		var err error
		if details, err = NewDetails(in.Type); err != nil {
			return nil, invalid("type", "unknown log type")
		}
	}
	if details.Kind() != in.Type {
		return nil, invalid("details", "details do not match log type")
	}
	details.sanitize()
	if err := details.validate(); err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = validation.SanitizeInput(t); t != "" {
			tags = append(tags, t)
		}
	}

	return &Entry{
		ID:          uuid.New().String(),
		Type:        in.Type,
		Title:       title,
		Description: validation.SanitizeInput(in.Description),
		CreatedBy:   createdBy,
		Status:      StatusPending,
		CreatedAt:   now,
		Tags:        tags,
		ProjectID:   strings.TrimSpace(in.ProjectID),
		Details:     details,
	}, nil
}

func requirePositive(field string, n Number) error {
	if !n.Positive() {
		return invalid(field, "must be greater than 0")
	}
	return nil
}

func (d *WorkDetails) validate() error {
	if d.HoursSpent.Valid && d.HoursSpent.Decimal.IsNegative() {
		return invalid("hours_spent", "must not be negative")
	}
	return nil
}

func (d *ExpenseDetails) validate() error {
	if err := requirePositive("amount", d.Amount); err != nil {
		return err
	}
	if d.Category == "" {
		return invalid("category", "category is required")
	}
	if d.GSTAmount.Valid && d.GSTAmount.Decimal.IsNegative() {
		return invalid("gst_amount", "must not be negative")
	}
	return nil
}

func (d *TransactionDetails) validate() error {
	return requirePositive("amount", d.Amount)
}

func (d *ContributionDetails) validate() error {
	if err := requirePositive("amount", d.Amount); err != nil {
		return err
	}
	switch d.ContributionType {
	case ContributionCapital, ContributionTemporaryLoan, ContributionRefund:
		return nil
	case "":
		return invalid("contribution_type", "contribution type is required")
	}
	return invalid("contribution_type", "must be capital, temporary_loan or refund")
}

func (d *WithdrawalDetails) validate() error {
	if err := requirePositive("amount", d.Amount); err != nil {
		return err
	}
	if d.Purpose == "" {
		return invalid("purpose", "purpose is required")
	}
	return nil
}

func (d *WorkDetails) sanitize() {
	d.Date = validation.SanitizeInput(d.Date)
	d.Deliverables = validation.SanitizeInput(d.Deliverables)
	d.RepoLink = strings.TrimSpace(d.RepoLink)
	d.Blockers = validation.SanitizeInput(d.Blockers)
	d.Priority = validation.SanitizeInput(d.Priority)
	d.DueDate = validation.SanitizeInput(d.DueDate)
}

func (d *ExpenseDetails) sanitize() {
	d.Category = validation.SanitizeInput(d.Category)
	d.Vendor = validation.SanitizeInput(d.Vendor)
	d.PurchaseDate = validation.SanitizeInput(d.PurchaseDate)
	d.PaymentMethod = validation.SanitizeInput(d.PaymentMethod)
	d.ProofURL = strings.TrimSpace(d.ProofURL)
	d.Priority = validation.SanitizeInput(d.Priority)
}

func (d *TransactionDetails) sanitize() {
	d.PaymentMode = validation.SanitizeInput(d.PaymentMode)
	d.CustomerName = validation.SanitizeInput(d.CustomerName)
	d.InvoiceID = validation.SanitizeInput(d.InvoiceID)
	d.ReceivedDate = validation.SanitizeInput(d.ReceivedDate)
}

func (d *ContributionDetails) sanitize() {
	d.ContributionType = strings.ReplaceAll(strings.ToLower(validation.SanitizeInput(d.ContributionType)), " ", "_")
	d.Mode = validation.SanitizeInput(d.Mode)
	d.ProofURL = strings.TrimSpace(d.ProofURL)
	d.Remarks = validation.SanitizeInput(d.Remarks)
}

func (d *WithdrawalDetails) sanitize() {
	d.Purpose = validation.SanitizeInput(d.Purpose)
	d.Method = validation.SanitizeInput(d.Method)
	d.WithdrawalDate = validation.SanitizeInput(d.WithdrawalDate)
}
