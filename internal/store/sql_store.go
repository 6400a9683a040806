package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/zhouzirui/drafting/backend/internal/model/audit"
	"github.com/zhouzirui/drafting/backend/internal/model/document"
	"github.com/zhouzirui/drafting/backend/internal/model/user"
)

// SQLStore is the database-backed store. Queries use $n placeholders, which
// both lib/pq and modernc sqlite accept.
type SQLStore struct {
	db   *sql.DB
	opts options
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, opts ...Option) *SQLStore {
	return &SQLStore{db: db, opts: buildOptions(opts)}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const insertDocumentQuery = `
	INSERT INTO documents (user_id, doc_type, title, prompt_input, content, tone, structure, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`

const insertAuditQuery = `
	INSERT INTO audit_logs (user_id, action, entity_type, entity_id, details, request_context_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`

const insertUserQuery = `
	INSERT INTO users (username, email, password_hash, role, created_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`

// CreateDocument inserts doc and then event in one transaction.
func (s *SQLStore) CreateDocument(ctx context.Context, doc document.Document, event audit.Event) (document.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return document.Document{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	doc.CreatedAt = s.opts.timestamp()
	var structure *string
	if doc.Structure != nil {
		v := string(*doc.Structure)
		structure = &v
	}
	if err := tx.QueryRowContext(ctx, insertDocumentQuery,
		doc.UserID, string(doc.DocType), doc.Title, doc.PromptInput, doc.Content, string(doc.Tone), structure, doc.CreatedAt,
	).Scan(&doc.ID); err != nil {
		return document.Document{}, fmt.Errorf("insert document: %w", err)
	}

	event.EntityID = &doc.ID
	event, err = insertAudit(ctx, tx, event, doc.CreatedAt)
	if err != nil {
		return document.Document{}, err
	}

	if err := tx.Commit(); err != nil {
		return document.Document{}, fmt.Errorf("commit document: %w", err)
	}
	s.opts.notify(event)
	return doc, nil
}

// RecordAudit inserts a standalone audit event.
func (s *SQLStore) RecordAudit(ctx context.Context, event audit.Event) error {
	saved, err := insertAudit(ctx, s.db, event, s.opts.timestamp())
	if err != nil {
		return err
	}
	s.opts.notify(saved)
	return nil
}

func insertAudit(ctx context.Context, db execer, event audit.Event, at time.Time) (audit.Event, error) {
	event.CreatedAt = at
	if err := db.QueryRowContext(ctx, insertAuditQuery,
		event.UserID, event.Action, event.EntityType, event.EntityID, event.Details, event.RequestContextID, event.CreatedAt,
	).Scan(&event.ID); err != nil {
		return audit.Event{}, fmt.Errorf("insert audit event: %w", err)
	}
	return event, nil
}

// ListAudit returns the newest events first, with usernames.
func (s *SQLStore) ListAudit(ctx context.Context, limit, offset int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, u.username, a.action, a.entity_type, a.entity_id, a.details, a.request_context_id, a.created_at
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0, limit)
	for rows.Next() {
		var (
			ev                                      audit.Event
			userID, entityID                        sql.NullInt64
			username, entityType, details, reqCtxID sql.NullString
		)
		if err := rows.Scan(&ev.ID, &userID, &username, &ev.Action, &entityType, &entityID, &details, &reqCtxID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.UserID = nullInt(userID)
		ev.Username = nullString(username)
		ev.EntityType = nullString(entityType)
		ev.EntityID = nullInt(entityID)
		ev.Details = nullString(details)
		ev.RequestContextID = nullString(reqCtxID)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountAudit returns the number of audit events.
func (s *SQLStore) CountAudit(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM audit_logs`)
}

const documentColumns = `id, user_id, doc_type, title, prompt_input, content, tone, structure, created_at`

func documentWhere(filter document.ListFilter) (string, []any) {
	where := ` WHERE user_id = $1`
	args := []any{filter.UserID}
	if filter.DocType != "" {
		where += ` AND doc_type = $2`
		args = append(args, string(filter.DocType))
	}
	return where, args
}

// ListDocuments returns the user's documents, newest first.
func (s *SQLStore) ListDocuments(ctx context.Context, filter document.ListFilter) ([]document.Document, error) {
	where, args := documentWhere(filter)
	n := len(args)
	query := `SELECT ` + documentColumns + ` FROM documents` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]document.Document, 0, filter.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountDocuments counts the user's documents matching filter.
func (s *SQLStore) CountDocuments(ctx context.Context, filter document.ListFilter) (int, error) {
	where, args := documentWhere(filter)
	return s.count(ctx, `SELECT COUNT(*) FROM documents`+where, args...)
}

// GetDocument returns a document only if it belongs to userID.
func (s *SQLStore) GetDocument(ctx context.Context, id, userID int64) (document.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, ErrNotFound
	}
	return doc, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (document.Document, error) {
	var (
		doc                                 document.Document
		docType                             string
		title, promptInput, tone, structure sql.NullString
	)
	if err := row.Scan(&doc.ID, &doc.UserID, &docType, &title, &promptInput, &doc.Content, &tone, &structure, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return document.Document{}, err
		}
		return document.Document{}, fmt.Errorf("scan document: %w", err)
	}
	doc.DocType = document.DocType(docType)
	doc.Title = nullString(title)
	doc.PromptInput = nullString(promptInput)
	doc.Tone = document.Tone(tone.String)
	if structure.Valid {
		st := document.Structure(structure.String)
		doc.Structure = &st
	}
	return doc, nil
}

// CreateUser inserts a user. Unique violations map to ErrDuplicate.
func (s *SQLStore) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	u.CreatedAt = s.opts.timestamp()
	if err := s.db.QueryRowContext(ctx, insertUserQuery, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt).Scan(&u.ID); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, ErrDuplicate
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// CreateUserWithAudit inserts a user and an audit event attributed to the new
// user in one transaction.
func (s *SQLStore) CreateUserWithAudit(ctx context.Context, u user.User, event audit.Event) (user.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return user.User{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	u.CreatedAt = s.opts.timestamp()
	if err := tx.QueryRowContext(ctx, insertUserQuery, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt).Scan(&u.ID); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, ErrDuplicate
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}

	event.UserID = &u.ID
	event, err = insertAudit(ctx, tx, event, u.CreatedAt)
	if err != nil {
		return user.User{}, err
	}

	if err := tx.Commit(); err != nil {
		return user.User{}, fmt.Errorf("commit user: %w", err)
	}
	s.opts.notify(event)
	return u, nil
}

const userColumns = `id, username, email, password_hash, role, created_at`

// FindUserByLogin matches username or email.
func (s *SQLStore) FindUserByLogin(ctx context.Context, login string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $2 LIMIT 1`, login, strings.ToLower(login)))
}

// GetUser returns a user by id.
func (s *SQLStore) GetUser(ctx context.Context, id int64) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *SQLStore) scanUser(row *sql.Row) (user.User, error) {
	var (
		u    user.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, ErrNotFound
		}
		return user.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = user.Role(role)
	return u, nil
}

// UserExists reports whether username or email is taken.
func (s *SQLStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM users WHERE username = $1 OR email = $2`, username, email)
	return n > 0, err
}

// AdminExists reports whether any ADMIN account exists.
func (s *SQLStore) AdminExists(ctx context.Context) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, string(user.RoleAdmin))
	return n > 0, err
}

// Summary returns totals plus documents and events created at or after since.
func (s *SQLStore) Summary(ctx context.Context, since time.Time) (Summary, error) {
	var (
		out Summary
		err error
	)
	if out.TotalUsers, err = s.count(ctx, `SELECT COUNT(*) FROM users`); err != nil {
		return Summary{}, err
	}
	if out.TotalDocuments, err = s.count(ctx, `SELECT COUNT(*) FROM documents`); err != nil {
		return Summary{}, err
	}
	if out.DocumentsSince, err = s.count(ctx, `SELECT COUNT(*) FROM documents WHERE created_at >= $1`, since.UTC()); err != nil {
		return Summary{}, err
	}
	if out.EventsSince, err = s.count(ctx, `SELECT COUNT(*) FROM audit_logs WHERE created_at >= $1`, since.UTC()); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *SQLStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
