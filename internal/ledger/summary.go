package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// UncategorizedExpense groups expenses filed without a category
const UncategorizedExpense = "uncategorized"

// Window bounds a summary. A zero To means open ended.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls in [From, To)
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// Summary aggregates approved entries only
type Summary struct {
	From               *time.Time                 `json:"from,omitempty"`
	To                 *time.Time                 `json:"to,omitempty"`
	TotalExpenses      decimal.Decimal            `json:"total_expenses"`
	ExpensesByCategory map[string]decimal.Decimal `json:"expenses_by_category"`
	TotalIncome        decimal.Decimal            `json:"total_income"`
	IncomeByPartner    map[string]decimal.Decimal `json:"income_by_partner"`
	TotalContributions decimal.Decimal            `json:"total_contributions"`
	TotalWithdrawals   decimal.Decimal            `json:"total_withdrawals"`
	Net                decimal.Decimal            `json:"net"`
	ApprovedCount      int                        `json:"approved_count"`
}

// Summarize folds entries into a Summary. Entries that are not approved or
// fall outside w are ignored.
func Summarize(entries []Entry, w Window) Summary {
	s := Summary{
		ExpensesByCategory: map[string]decimal.Decimal{},
		IncomeByPartner:    map[string]decimal.Decimal{},
	}
	if !w.From.IsZero() {
		from := w.From
		s.From = &from
	}
	if !w.To.IsZero() {
		to := w.To
		s.To = &to
	}

	for i := range entries {
		e := &entries[i]
		if e.Status != StatusApproved || !w.Contains(e.CreatedAt) {
			continue
		}
		s.ApprovedCount++

		amount, ok := e.Amount()
		if !ok {
			continue
		}
		switch e.Type {
		case TypeExpense:
			cat := e.Category()
			if cat == "" {
				cat = UncategorizedExpense
			}
			s.ExpensesByCategory[cat] = s.ExpensesByCategory[cat].Add(amount)
			s.TotalExpenses = s.TotalExpenses.Add(amount)
		case TypeTransaction:
			s.IncomeByPartner[e.CreatedBy] = s.IncomeByPartner[e.CreatedBy].Add(amount)
			s.TotalIncome = s.TotalIncome.Add(amount)
		case TypeContribution:
			s.TotalContributions = s.TotalContributions.Add(amount)
		case TypeWithdrawal:
			s.TotalWithdrawals = s.TotalWithdrawals.Add(amount)
		}
	}

	s.Net = s.TotalIncome.Sub(s.TotalExpenses)
	return s
}
