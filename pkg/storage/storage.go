// Package storage provides persistence for chat sessions, messages, and
// generated reports behind a swappable Store contract.
//
// Two backends exist: MemoryStore for single-process use and PostgresStore
// for durable deployments. The FHIR resource cache is a separate concern
// with its own contract in the cache package.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/clinsight/fhir-cohort/pkg/aggregate"
	"github.com/clinsight/fhir-cohort/pkg/dataset"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one chat session.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// Message is one chat message within a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is one generated report, carrying the dataset and summary it was
// built from so clients can re-filter without refetching.
type Report struct {
	ID             string                 `json:"id"`
	SessionID      string                 `json:"sessionId"`
	Title          string                 `json:"title"`
	Summary        string                 `json:"summary,omitempty"`
	Content        string                 `json:"content"`
	SourceData     *dataset.SourceDataset `json:"sourceData,omitempty"`
	AggregatedData *aggregate.Summary     `json:"aggregatedData,omitempty"`
	GeneratedAt    time.Time              `json:"generatedAt"`
}

// Store is the persistence contract for sessions, messages, and reports.
type Store interface {
	// CreateSession creates a session with a fresh id.
	CreateSession(ctx context.Context, title string) (*Session, error)

	// Sessions returns all sessions, newest updated first.
	Sessions(ctx context.Context) ([]*Session, error)

	// SessionByID returns one session or ErrNotFound.
	SessionByID(ctx context.Context, id string) (*Session, error)

	// TouchSession bumps a session's updated timestamp.
	TouchSession(ctx context.Context, id string) error

	// CreateMessage appends a message to a session and touches it.
	CreateMessage(ctx context.Context, sessionID, role, content string) (*Message, error)

	// MessagesBySession returns a session's messages, oldest first.
	MessagesBySession(ctx context.Context, sessionID string) ([]*Message, error)

	// CreateReport stores a report, assigning id and generation time.
	CreateReport(ctx context.Context, report Report) (*Report, error)

	// Reports returns all reports, newest first.
	Reports(ctx context.Context) ([]*Report, error)

	// ReportByID returns one report or ErrNotFound.
	ReportByID(ctx context.Context, id string) (*Report, error)

	// ReportsBySession returns a session's reports, newest first.
	ReportsBySession(ctx context.Context, sessionID string) ([]*Report, error)
}
