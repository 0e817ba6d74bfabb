package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-service/internal/ledger"
	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ErrPartnerNotFound is returned when an identity has no partner row
var ErrPartnerNotFound = errors.New("partner not found")

type logRow struct {
	ID          string              `db:"id"`
	Type        string              `db:"type"`
	Title       string              `db:"title"`
	Description string              `db:"description"`
	CreatedBy   string              `db:"created_by"`
	Status      string              `db:"status"`
	CreatedAt   time.Time           `db:"created_at"`
	DecisionBy  *string             `db:"decision_by"`
	DecisionAt  *time.Time          `db:"decision_at"`
	Tags        pq.StringArray      `db:"tags"`
	ProjectID   string              `db:"project_id"`
	Amount      decimal.NullDecimal `db:"amount"`
	Category    *string             `db:"category"`
	Details     types.JSONText      `db:"details"`
}

func (r *logRow) entry() (*ledger.Entry, error) {
	t, err := ledger.ParseLogType(r.Type)
	if err != nil {
		return nil, err
	}
	details, err := ledger.DecodeDetails(t, r.Details)
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", r.ID, err)
	}
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	return &ledger.Entry{
		ID:          r.ID,
		Type:        t,
		Title:       r.Title,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		Status:      ledger.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		DecisionBy:  r.DecisionBy,
		DecisionAt:  r.DecisionAt,
		Tags:        tags,
		ProjectID:   r.ProjectID,
		Details:     details,
	}, nil
}

func entriesFromRows(rows []logRow) ([]ledger.Entry, error) {
	entries := make([]ledger.Entry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// CreateLog inserts an entry, denormalizing amount and category for analytics
func (s *Store) CreateLog(ctx context.Context, e *ledger.Entry) error {
	details, err := ledger.MarshalDetails(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	var amount decimal.NullDecimal
	if a, ok := e.Amount(); ok {
		amount = decimal.NewNullDecimal(a)
	}
	var category *string
	if c := e.Category(); c != "" {
		category = &c
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_logs (
			id, type, title, description, created_by, status, created_at, tags, project_id, amount, category, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, string(e.Type), e.Title, e.Description, e.CreatedBy, string(e.Status), e.CreatedAt,
		pq.Array(e.Tags), e.ProjectID, amount, category, types.JSONText(details))
	return err
}

// GetLog retrieves a log entry by id
func (s *Store) GetLog(ctx context.Context, id string) (*ledger.Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	var row logRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM ledger_logs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row.entry()
}

// ListLogs returns entries matching f, newest first
func (s *Store) ListLogs(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	f = f.Normalize()
	conds := []string{"TRUE"}
	args := []interface{}{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.CreatedBy != "" {
		add("created_by = $%d", f.CreatedBy)
	}
	args = append(args, f.Limit, f.Offset)

	query := fmt.Sprintf(
		"SELECT * FROM ledger_logs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		strings.Join(conds, " AND "), len(args)-1, len(args))

	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return entriesFromRows(rows)
}

// ListApprovedLogs returns approved entries created in [from, to). Zero bounds are open.
func (s *Store) ListApprovedLogs(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	conds := []string{"status = $1"}
	args := []interface{}{string(ledger.StatusApproved)}
	if !from.IsZero() {
		args = append(args, from)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	var rows []logRow
	query := "SELECT * FROM ledger_logs WHERE " + strings.Join(conds, " AND ") + " ORDER BY created_at"
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return entriesFromRows(rows)
}

// DecideLog records a decision on a pending entry. It reports false when the
// entry is missing, of another type, or already decided.
func (s *Store) DecideLog(ctx context.Context, id string, t ledger.LogType, status ledger.Status, by string, at time.Time) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_logs SET status = $3, decision_by = $4, decision_at = $5
		WHERE id = $1 AND type = $2 AND status = $6`,
		id, string(t), string(status), by, at, string(ledger.StatusPending))
	return affected(res, err)
}

// ArchiveLog moves a rejected entry to archived. Decision fields are kept.
func (s *Store) ArchiveLog(ctx context.Context, id string, t ledger.LogType) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE ledger_logs SET status = $3 WHERE id = $1 AND type = $2 AND status = $4",
		id, string(t), string(ledger.StatusArchived), string(ledger.StatusRejected))
	return affected(res, err)
}

// AddComment appends a comment
func (s *Store) AddComment(ctx context.Context, c *models.Comment) error {
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO comments (id, parent_type, parent_id, author, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		c.ID, c.ParentType, c.ParentID, c.Author, c.Content,
	).Scan(&c.CreatedAt)
}

// ListComments returns comments on a parent in creation order
func (s *Store) ListComments(ctx context.Context, parentType, parentID string) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := s.db.SelectContext(ctx, &comments, `
		SELECT * FROM comments WHERE parent_type = $1 AND parent_id = $2
		ORDER BY created_at, id`, parentType, parentID)
	return comments, err
}

// ResolveRole implements ledger.RoleResolver from the partners table
func (s *Store) ResolveRole(ctx context.Context, who ledger.Identity) (string, error) {
	var role string
	err := s.db.GetContext(ctx, &role, `
		SELECT role FROM partners
		WHERE id = $1 OR ($2 <> '' AND email = $2)
		ORDER BY (id = $1) DESC
		LIMIT 1`, who.UserID, who.Email)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrPartnerNotFound, who.UserID)
	}
	return role, err
}

// UpsertPartner creates or updates a partner row
func (s *Store) UpsertPartner(ctx context.Context, p *models.Partner) error {
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO partners (id, email, role) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role
		RETURNING created_at`,
		p.ID, p.Email, p.Role,
	).Scan(&p.CreatedAt)
}
