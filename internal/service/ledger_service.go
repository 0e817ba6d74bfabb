package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-service/internal/ledger"
	"commerce-service/internal/models"
	"commerce-service/internal/util"
	"commerce-service/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyComment is returned for comments that sanitize to nothing
var ErrEmptyComment = errors.New("comment is empty")

const maxCommentLength = 2000

// LedgerService runs the partner log workflow
type LedgerService struct {
	store         LedgerStore
	events        EventStore
	roles         ledger.RoleChecker
	publisher     EventPublisher
	systemPartner string
	logger        *zap.Logger
	now           func() time.Time
}

// NewLedgerService creates a new ledger service. systemPartner owns the income
// logs recorded for paid orders.
func NewLedgerService(store LedgerStore, events EventStore, roles ledger.RoleChecker, publisher EventPublisher, systemPartner string) *LedgerService {
	return &LedgerService{
		store:         store,
		events:        events,
		roles:         roles,
		publisher:     publisher,
		systemPartner: systemPartner,
		logger:        util.GetLogger(),
		now:           time.Now,
	}
}

// Create validates and files a pending log owned by caller
func (ls *LedgerService) Create(ctx context.Context, caller ledger.Identity, in ledger.CreateLogInput) (*ledger.Entry, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Create")
	defer span.End()

	if !ls.roles.Allows(ctx, caller, ledger.PermissionCreate) {
		return nil, fmt.Errorf("%w: %s may not create logs", ledger.ErrForbidden, caller.UserID)
	}

	entry, err := ledger.NewEntry(in, caller.UserID, ls.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := ls.store.CreateLog(ctx, entry); err != nil {
		util.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to create log: %w", err)
	}

	util.LedgerLogsCreatedTotal.WithLabelValues(string(entry.Type)).Inc()
	ls.logger.Info("Ledger log created",
		zap.String("log_id", entry.ID),
		zap.String("type", string(entry.Type)),
		zap.String("created_by", entry.CreatedBy))

	event := &models.LedgerLogCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeLedgerLogCreated,
			Timestamp: ls.now(),
		},
		LogID:     entry.ID,
		LogType:   string(entry.Type),
		CreatedBy: entry.CreatedBy,
	}
	if amount, ok := entry.Amount(); ok {
		event.Amount = amount.String()
	}
	if err := ls.publisher.PublishLedgerLogCreated(ctx, event); err != nil {
		ls.logger.Error("Failed to publish LedgerLogCreated event", zap.String("log_id", entry.ID), zap.Error(err))
	}

	return entry, nil
}

// Get returns one log
func (ls *LedgerService) Get(ctx context.Context, id string) (*ledger.Entry, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Get")
	defer span.End()

	return ls.store.GetLog(ctx, id)
}

// List returns logs matching f, newest first
func (ls *LedgerService) List(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.List")
	defer span.End()

	return ls.store.ListLogs(ctx, f.Normalize())
}

func (ls *LedgerService) load(ctx context.Context, id string, t ledger.LogType) (*ledger.Entry, error) {
	e, err := ls.store.GetLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if t != "" && e.Type != t {
		return nil, ledger.ErrNotFound
	}
	return e, nil
}

// Decide approves or rejects a pending log. Only approvers may decide, and a
// decided log is never decided again.
func (ls *LedgerService) Decide(ctx context.Context, caller ledger.Identity, id string, t ledger.LogType, d ledger.Decision) (*ledger.Entry, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Decide")
	defer span.End()

	target, err := d.Target()
	if err != nil {
		return nil, err
	}
	if !ls.roles.CanApprove(ctx, caller, t) {
		ls.logger.Warn("Ledger decision forbidden",
			zap.String("log_id", id),
			zap.String("user_id", caller.UserID))
		return nil, ledger.ErrForbidden
	}

	e, err := ls.load(ctx, id, t)
	if err != nil {
		return nil, err
	}
	if err := ledger.CheckDecision(e, d); err != nil {
		return nil, err
	}

	at := ls.now().UTC()
	moved, err := ls.store.DecideLog(ctx, e.ID, e.Type, target, caller.UserID, at)
	if err != nil {
		util.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to decide log: %w", err)
	}
	if !moved {
		// Another approver got there first.
		return nil, fmt.Errorf("%w: decided concurrently", ledger.ErrNotPending)
	}

	util.LedgerDecisionsTotal.WithLabelValues(string(e.Type), string(target)).Inc()
	ls.logger.Info("Ledger log decided",
		zap.String("log_id", e.ID),
		zap.String("status", string(target)),
		zap.String("decision_by", caller.UserID))

	event := &models.LedgerLogDecidedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeLedgerLogDecided,
			Timestamp: ls.now(),
		},
		LogID:      e.ID,
		LogType:    string(e.Type),
		Status:     string(target),
		DecisionBy: caller.UserID,
	}
	if err := ls.publisher.PublishLedgerLogDecided(ctx, event); err != nil {
		ls.logger.Error("Failed to publish LedgerLogDecided event", zap.String("log_id", e.ID), zap.Error(err))
	}

	by := caller.UserID
	e.Status = target
	e.DecisionBy = &by
	e.DecisionAt = &at
	return e, nil
}

// Archive moves a rejected log out of the working set
func (ls *LedgerService) Archive(ctx context.Context, caller ledger.Identity, id string, t ledger.LogType) (*ledger.Entry, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Archive")
	defer span.End()

	if !ls.roles.CanApprove(ctx, caller, t) {
		return nil, ledger.ErrForbidden
	}
	e, err := ls.load(ctx, id, t)
	if err != nil {
		return nil, err
	}
	if err := ledger.CheckArchive(e); err != nil {
		return nil, err
	}

	moved, err := ls.store.ArchiveLog(ctx, e.ID, e.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to archive log: %w", err)
	}
	if !moved {
		return nil, fmt.Errorf("%w: status changed concurrently", ledger.ErrNotRejected)
	}

	util.LedgerDecisionsTotal.WithLabelValues(string(e.Type), string(ledger.StatusArchived)).Inc()
	ls.logger.Info("Ledger log archived", zap.String("log_id", e.ID), zap.String("by", caller.UserID))
	e.Status = ledger.StatusArchived
	return e, nil
}

// AddComment appends a comment to a log
func (ls *LedgerService) AddComment(ctx context.Context, caller ledger.Identity, logID, text string) (*models.Comment, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.AddComment")
	defer span.End()

	if strings.TrimSpace(caller.UserID) == "" {
		return nil, &ledger.ValidationError{Field: "author", Message: "caller identity is required"}
	}
	if !ls.roles.Allows(ctx, caller, ledger.PermissionComment) {
		return nil, fmt.Errorf("%w: %s may not comment", ledger.ErrForbidden, caller.UserID)
	}
	content := validation.SanitizeInput(text)
	if content == "" {
		return nil, ErrEmptyComment
	}
	if len(content) > maxCommentLength {
		return nil, &ledger.ValidationError{Field: "content", Message: "comment is too long"}
	}
	if _, err := ls.store.GetLog(ctx, logID); err != nil {
		return nil, err
	}

	c := &models.Comment{
		ID:         uuid.New().String(),
		ParentType: models.CommentParentLog,
		ParentID:   logID,
		Author:     caller.UserID,
		Content:    content,
		CreatedAt:  ls.now().UTC(),
	}
	if err := ls.store.AddComment(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	return c, nil
}

// ListComments returns a log's comments oldest first
func (ls *LedgerService) ListComments(ctx context.Context, logID string) ([]models.Comment, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.ListComments")
	defer span.End()

	return ls.store.ListComments(ctx, models.CommentParentLog, logID)
}

// Summary aggregates approved logs created in [from, to). Zero bounds are open.
func (ls *LedgerService) Summary(ctx context.Context, from, to time.Time) (ledger.Summary, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Summary")
	defer span.End()

	entries, err := ls.store.ListApprovedLogs(ctx, from, to)
	if err != nil {
		return ledger.Summary{}, fmt.Errorf("failed to load approved logs: %w", err)
	}
	return ledger.Summarize(entries, ledger.Window{From: from, To: to}), nil
}

// RecordOrderIncome files a pending income log for a paid order. Redelivered
// events are skipped by event id.
func (ls *LedgerService) RecordOrderIncome(ctx context.Context, event *models.OrderPaidEvent) (*ledger.Entry, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.RecordOrderIncome")
	defer span.End()

	processed, err := ls.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		ls.logger.Info("Order income already recorded",
			zap.String("event_id", event.EventID),
			zap.String("order_id", event.OrderID))
		return nil, nil
	}

	received := event.Timestamp
	if received.IsZero() {
		received = ls.now()
	}
	details := &ledger.TransactionDetails{
		Amount:       ledger.NewNumber(models.MinorToRupees(event.AmountMinor)),
		PaymentMode:  event.Method,
		CustomerName: event.CustomerName,
		InvoiceID:    event.OrderID,
		ReceivedDate: received.UTC().Format("2006-01-02"),
	}
	entry, err := ls.Create(ctx, ledger.Identity{UserID: ls.systemPartner}, ledger.CreateLogInput{
		Type:    ledger.TypeTransaction,
		Title:   "Order " + event.OrderID,
		Tags:    []string{"order"},
		Details: details,
	})
	if err != nil {
		return nil, err
	}

	if err := ls.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		ls.logger.Error("Failed to mark event processed", zap.String("event_id", event.EventID), zap.Error(err))
	}
	return entry, nil
}
