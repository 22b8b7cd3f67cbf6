package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clinsight/fhir-cohort/pkg/aggregate"
	"github.com/clinsight/fhir-cohort/pkg/dataset"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the tables the store needs. Applied by Migrate.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	title TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	source_data JSONB,
	aggregated_data JSONB,
	generated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_session_idx ON messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS reports_session_idx ON reports(session_id, generated_at DESC);
`

// PostgresStore is the Postgres-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("pgx pool cannot be nil")
	}
	return &PostgresStore{pool: pool}
}

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSession creates a session with a fresh id.
func (s *PostgresStore) CreateSession(ctx context.Context, title string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	session.UpdatedAt = session.CreatedAt

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, title, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		session.ID, session.Title, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// Sessions returns all sessions, newest updated first.
func (s *PostgresStore) Sessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.title, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var session Session
		if err := rows.Scan(&session.ID, &session.Title, &session.CreatedAt,
			&session.UpdatedAt, &session.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// SessionByID returns one session or ErrNotFound.
func (s *PostgresStore) SessionByID(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := s.pool.QueryRow(ctx, `
		SELECT s.id, s.title, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s WHERE s.id = $1`, id).
		Scan(&session.ID, &session.Title, &session.CreatedAt,
			&session.UpdatedAt, &session.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &session, nil
}

// TouchSession bumps a session's updated timestamp.
func (s *PostgresStore) TouchSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateMessage appends a message to a session and touches it.
func (s *PostgresStore) CreateMessage(ctx context.Context, sessionID, role, content string) (*Message, error) {
	message := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.SessionID, message.Role, message.Content, message.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = $1 WHERE id = $2`, message.Timestamp, sessionID)
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return message, nil
}

// MessagesBySession returns a session's messages, oldest first.
func (s *PostgresStore) MessagesBySession(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM messages WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		var message Message
		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role,
			&message.Content, &message.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &message)
	}
	return messages, rows.Err()
}

// CreateReport stores a report, assigning id and generation time.
func (s *PostgresStore) CreateReport(ctx context.Context, report Report) (*Report, error) {
	report.ID = uuid.NewString()
	report.GeneratedAt = time.Now().UTC()

	var sourceData, aggregatedData []byte
	var err error
	if report.SourceData != nil {
		if sourceData, err = json.Marshal(report.SourceData); err != nil {
			return nil, fmt.Errorf("marshal source data: %w", err)
		}
	}
	if report.AggregatedData != nil {
		if aggregatedData, err = json.Marshal(report.AggregatedData); err != nil {
			return nil, fmt.Errorf("marshal aggregated data: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reports (id, session_id, title, summary, content, source_data, aggregated_data, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID, report.SessionID, report.Title, report.Summary, report.Content,
		sourceData, aggregatedData, report.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return &report, nil
}

// Reports returns all reports, newest first.
func (s *PostgresStore) Reports(ctx context.Context) ([]*Report, error) {
	return s.queryReports(ctx, `
		SELECT id, session_id, title, summary, content, source_data, aggregated_data, generated_at
		FROM reports ORDER BY generated_at DESC`)
}

// ReportByID returns one report or ErrNotFound.
func (s *PostgresStore) ReportByID(ctx context.Context, id string) (*Report, error) {
	reports, err := s.queryReports(ctx, `
		SELECT id, session_id, title, summary, content, source_data, aggregated_data, generated_at
		FROM reports WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, ErrNotFound
	}
	return reports[0], nil
}

// ReportsBySession returns a session's reports, newest first.
func (s *PostgresStore) ReportsBySession(ctx context.Context, sessionID string) ([]*Report, error) {
	return s.queryReports(ctx, `
		SELECT id, session_id, title, summary, content, source_data, aggregated_data, generated_at
		FROM reports WHERE session_id = $1 ORDER BY generated_at DESC`, sessionID)
}

func (s *PostgresStore) queryReports(ctx context.Context, query string, args ...any) ([]*Report, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*Report, 0)
	for rows.Next() {
		var (
			report         Report
			sourceData     []byte
			aggregatedData []byte
		)
		if err := rows.Scan(&report.ID, &report.SessionID, &report.Title, &report.Summary,
			&report.Content, &sourceData, &aggregatedData, &report.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if len(sourceData) > 0 {
			report.SourceData = &dataset.SourceDataset{}
			if err := json.Unmarshal(sourceData, report.SourceData); err != nil {
				return nil, fmt.Errorf("unmarshal source data: %w", err)
			}
		}
		if len(aggregatedData) > 0 {
			report.AggregatedData = &aggregate.Summary{}
			if err := json.Unmarshal(aggregatedData, report.AggregatedData); err != nil {
				return nil, fmt.Errorf("unmarshal aggregated data: %w", err)
			}
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}
