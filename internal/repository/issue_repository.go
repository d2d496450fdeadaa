package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/apnisec/trackify/internal/model"
)

// IssueFilters narrows ListByUser.  Empty fields are ignored.
type IssueFilters struct {
	Type     string
	Status   string
	Priority string
}

// IssueRepo provides owner-scoped CRUD over the `issues` table.  Every query
// carries the user_id so one user can never read or mutate another user's
// issues.
type IssueRepo struct{ DB *sql.DB }

func NewIssueRepo(db *sql.DB) *IssueRepo { return &IssueRepo{DB: db} }

const issueColumns = "id,user_id,type,title,description,status,priority,created_at,updated_at"

// Create inserts an issue and returns the stored record.
func (r *IssueRepo) Create(ctx context.Context, issue model.Issue) (model.Issue, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO issues (user_id, type, title, description, status, priority) VALUES (?,?,?,?,?,?)",
		issue.UserID, issue.Type, issue.Title, issue.Description, issue.Status, issue.Priority)
	if err != nil {
		return model.Issue{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Issue{}, err
	}
	return r.GetByIDAndUser(ctx, uint64(id), issue.UserID)
}

// GetByIDAndUser fetches a single issue owned by userID.
func (r *IssueRepo) GetByIDAndUser(ctx context.Context, id, userID uint64) (model.Issue, error) {
	var i model.Issue
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE id=? AND user_id=? LIMIT 1",
		id, userID).Scan(&i.ID, &i.UserID, &i.Type, &i.Title, &i.Description, &i.Status, &i.Priority, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Issue{}, ErrNotFound
	}
	return i, err
}

// ListByUser returns the user's issues, newest first, optionally filtered by
// type, status and priority.
func (r *IssueRepo) ListByUser(ctx context.Context, userID uint64, f IssueFilters) ([]model.Issue, error) {
	query := "SELECT " + issueColumns + " FROM issues WHERE user_id=?"
	args := []interface{}{userID}
	if f.Type != "" {
		query += " AND type=?"
		args = append(args, f.Type)
	}
	if f.Status != "" {
		query += " AND status=?"
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		query += " AND priority=?"
		args = append(args, f.Priority)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	issues := make([]model.Issue, 0)
	for rows.Next() {
		var i model.Issue
		if err := rows.Scan(&i.ID, &i.UserID, &i.Type, &i.Title, &i.Description, &i.Status, &i.Priority, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

// IssuePatch carries optional field updates; nil pointers leave the column
// untouched.
type IssuePatch struct {
	Type        *string
	Title       *string
	Description *string
	Status      *string
	Priority    *string
}

// Update applies the patch to an issue owned by userID and returns the
// updated record.  ErrNotFound when no such issue exists for the user.
func (r *IssueRepo) Update(ctx context.Context, id, userID uint64, p IssuePatch) (model.Issue, error) {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 7)
	appendSet := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+"=?")
			args = append(args, *v)
		}
	}
	appendSet("type", p.Type)
	appendSet("title", p.Title)
	appendSet("description", p.Description)
	appendSet("status", p.Status)
	appendSet("priority", p.Priority)

	if len(sets) > 0 {
		args = append(args, id, userID)
		res, err := r.DB.ExecContext(ctx,
			"UPDATE issues SET "+strings.Join(sets, ",")+" WHERE id=? AND user_id=?", args...)
		if err != nil {
			return model.Issue{}, err
		}
		// RowsAffected is 0 both for a missing row and for a no-op update,
		// so existence is confirmed by the read below either way.
		if _, err := res.RowsAffected(); err != nil {
			return model.Issue{}, err
		}
	}
	return r.GetByIDAndUser(ctx, id, userID)
}

// Delete removes an issue owned by userID.  ErrNotFound when nothing was
// deleted.
func (r *IssueRepo) Delete(ctx context.Context, id, userID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM issues WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByUser returns how many issues the user owns.
func (r *IssueRepo) CountByUser(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issues WHERE user_id=?", userID).Scan(&n)
	return n, err
}
