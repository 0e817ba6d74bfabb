package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"commerce-service/internal/ledger"
	"commerce-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	approver = ledger.Identity{UserID: "partner-approver", Email: "lead@example.com"}
	partner  = ledger.Identity{UserID: "partner-2", Email: "p2@example.com"}
	outsider = ledger.Identity{UserID: "visitor-9", Email: "v9@example.com"}
)

type ledgerFixture struct {
	svc    *LedgerService
	store  *memLedger
	events *memEvents
	pub    *recordingPublisher
	clock  time.Time
}

func newLedgerFixture() *ledgerFixture {
	f := &ledgerFixture{
		store:  newMemLedger(),
		events: newMemEvents(),
		pub:    &recordingPublisher{},
		clock:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	roles := ledger.NewRolePolicy(roleTable{
		approver.UserID: ledger.RoleApprover,
		partner.UserID:  ledger.RolePartner,
		"system":        ledger.RolePartner,
	})
	f.svc = NewLedgerService(f.store, f.events, roles, f.pub, "system")
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func expenseInput(t *testing.T, raw string) ledger.CreateLogInput {
	t.Helper()
	d, err := ledger.DecodeDetails(ledger.TypeExpense, []byte(raw))
	require.NoError(t, err)
	return ledger.CreateLogInput{Type: ledger.TypeExpense, Title: "Motor drivers", Details: d}
}

func (f *ledgerFixture) create(t *testing.T, who ledger.Identity, in ledger.CreateLogInput) *ledger.Entry {
	t.Helper()
	e, err := f.svc.Create(context.Background(), who, in)
	require.NoError(t, err)
	return e
}

func TestLedgerCreateExpense(t *testing.T) {
	f := newLedgerFixture()

	e := f.create(t, partner, expenseInput(t, `{"amount":"150.5","category":"components","vendor":"<b>Robu</b>"}`))

	assert.Equal(t, ledger.StatusPending, e.Status)
	assert.Equal(t, partner.UserID, e.CreatedBy)
	amount, ok := e.Amount()
	require.True(t, ok)
	assert.True(t, amount.Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, "bRobu/b", e.Details.(*ledger.ExpenseDetails).Vendor)
	assert.Equal(t, 1, f.pub.count(models.EventTypeLedgerLogCreated))

	stored, err := f.svc.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Title, stored.Title)
}

func TestLedgerCreateRejectsZeroAmount(t *testing.T) {
	f := newLedgerFixture()

	_, err := f.svc.Create(context.Background(), partner, expenseInput(t, `{"amount":0,"category":"components"}`))

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)
	assert.ErrorIs(t, err, ledger.ErrInvalid)
	assert.Empty(t, f.store.entries)
	assert.Equal(t, 0, f.pub.count(models.EventTypeLedgerLogCreated))
}

func TestLedgerCreateAndCommentNeedPartnerRole(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, outsider, expenseInput(t, `{"amount":80,"category":"tools"}`))
	assert.ErrorIs(t, err, ledger.ErrForbidden)
	assert.Empty(t, f.store.entries)
	assert.Equal(t, 0, f.pub.count(models.EventTypeLedgerLogCreated))

	e := f.create(t, partner, expenseInput(t, `{"amount":80,"category":"tools"}`))
	_, err = f.svc.AddComment(ctx, outsider, e.ID, "looks cheap")
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = f.svc.AddComment(ctx, partner, e.ID, "receipt attached")
	require.NoError(t, err)
	comments, err := f.svc.ListComments(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, partner.UserID, comments[0].Author)
}

func TestLedgerDecide(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	e := f.create(t, partner, expenseInput(t, `{"amount":250,"category":"tools"}`))

	_, err := f.svc.Decide(ctx, partner, e.ID, ledger.TypeExpense, ledger.DecisionApprove)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	decided, err := f.svc.Decide(ctx, approver, e.ID, ledger.TypeExpense, ledger.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusApproved, decided.Status)
	require.NotNil(t, decided.DecisionAt)
	firstDecision := *decided.DecisionAt

	f.clock = f.clock.Add(time.Hour)
	_, err = f.svc.Decide(ctx, approver, e.ID, ledger.TypeExpense, ledger.DecisionReject)
	assert.ErrorIs(t, err, ledger.ErrNotPending)

	stored, err := f.svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusApproved, stored.Status)
	assert.True(t, stored.DecisionAt.Equal(firstDecision))
	assert.Equal(t, approver.UserID, *stored.DecisionBy)
	assert.Equal(t, 1, f.pub.count(models.EventTypeLedgerLogDecided))
}

func TestLedgerDecideWrongTypeOrMissing(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	e := f.create(t, partner, expenseInput(t, `{"amount":250,"category":"tools"}`))

	_, err := f.svc.Decide(ctx, approver, e.ID, ledger.TypeWithdrawal, ledger.DecisionApprove)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.svc.Decide(ctx, approver, "nope", ledger.TypeExpense, ledger.DecisionApprove)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.svc.Decide(ctx, approver, e.ID, ledger.TypeExpense, ledger.Decision("maybe"))
	assert.ErrorIs(t, err, ledger.ErrInvalid)
}

func TestLedgerArchive(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	e := f.create(t, partner, expenseInput(t, `{"amount":250,"category":"tools"}`))

	_, err := f.svc.Archive(ctx, approver, e.ID, ledger.TypeExpense)
	assert.ErrorIs(t, err, ledger.ErrNotRejected)

	_, err = f.svc.Decide(ctx, approver, e.ID, ledger.TypeExpense, ledger.DecisionReject)
	require.NoError(t, err)

	_, err = f.svc.Archive(ctx, partner, e.ID, ledger.TypeExpense)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	archived, err := f.svc.Archive(ctx, approver, e.ID, ledger.TypeExpense)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusArchived, archived.Status)
}

func TestLedgerComments(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	e := f.create(t, partner, expenseInput(t, `{"amount":250,"category":"tools"}`))

	c, err := f.svc.AddComment(ctx, approver, e.ID, "  please attach the <invoice>  ")
	require.NoError(t, err)
	assert.Equal(t, "please attach the invoice", c.Content)
	assert.Equal(t, models.CommentParentLog, c.ParentType)

	_, err = f.svc.AddComment(ctx, approver, e.ID, "<>")
	assert.ErrorIs(t, err, ErrEmptyComment)

	_, err = f.svc.AddComment(ctx, approver, "missing", "hello")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	comments, err := f.svc.ListComments(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, approver.UserID, comments[0].Author)
}

func TestLedgerSummaryExcludesUndecided(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()

	approved := f.create(t, partner, expenseInput(t, `{"amount":300,"category":"tools"}`))
	rejected := f.create(t, partner, expenseInput(t, `{"amount":1000,"category":"tools"}`))
	f.create(t, partner, expenseInput(t, `{"amount":5000,"category":"tools"}`))

	income, err := ledger.DecodeDetails(ledger.TypeTransaction, []byte(`{"amount":"1200","customer_name":"Asha"}`))
	require.NoError(t, err)
	sale := f.create(t, partner, ledger.CreateLogInput{Type: ledger.TypeTransaction, Title: "Kit sale", Details: income})

	for _, id := range []string{approved.ID, sale.ID} {
		e, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		_, err = f.svc.Decide(ctx, approver, id, e.Type, ledger.DecisionApprove)
		require.NoError(t, err)
	}
	_, err = f.svc.Decide(ctx, approver, rejected.ID, ledger.TypeExpense, ledger.DecisionReject)
	require.NoError(t, err)

	s, err := f.svc.Summary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.ApprovedCount)
	assert.True(t, s.TotalExpenses.Equal(decimal.NewFromInt(300)), s.TotalExpenses.String())
	assert.True(t, s.TotalIncome.Equal(decimal.NewFromInt(1200)), s.TotalIncome.String())
	assert.True(t, s.Net.Equal(decimal.NewFromInt(900)), s.Net.String())
	assert.True(t, s.IncomeByPartner[partner.UserID].Equal(decimal.NewFromInt(1200)))
}

func TestLedgerList(t *testing.T) {
	f := newLedgerFixture()
	f.create(t, partner, expenseInput(t, `{"amount":300,"category":"tools"}`))
	f.clock = f.clock.Add(time.Minute)
	f.create(t, approver, expenseInput(t, `{"amount":200,"category":"tools"}`))

	all, err := f.svc.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.List(context.Background(), ledger.Filter{CreatedBy: partner.UserID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, partner.UserID, mine[0].CreatedBy)
}

func TestRecordOrderIncome(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-paid-1",
			EventType: models.EventTypeOrderPaid,
			Timestamp: f.clock,
		},
		OrderID:      "XLV_1717236000000_7",
		PaymentID:    "pay_1",
		AmountMinor:  120050,
		Currency:     "INR",
		Method:       "upi",
		CustomerName: "Asha Rao",
	}

	e, err := f.svc.RecordOrderIncome(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, ledger.TypeTransaction, e.Type)
	assert.Equal(t, ledger.StatusPending, e.Status)
	assert.Equal(t, "system", e.CreatedBy)

	d := e.Details.(*ledger.TransactionDetails)
	assert.Equal(t, "XLV_1717236000000_7", d.InvoiceID)
	assert.Equal(t, "Asha Rao", d.CustomerName)
	assert.Equal(t, "2024-06-01", d.ReceivedDate)
	assert.True(t, d.Amount.Decimal.Equal(decimal.RequireFromString("1200.50")))

	raw, err := json.Marshal(e.Details)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"amount":1200.5`)

	again, err := f.svc.RecordOrderIncome(ctx, event)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, f.store.entries, 1)
}
