package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-memory Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string]*Message
	reports  map[string]*Report

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string]*Message),
		reports:  make(map[string]*Report),
		now:      time.Now,
	}
}

// CreateSession creates a session with a fresh id.
func (s *MemoryStore) CreateSession(_ context.Context, title string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	session := &Session{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[session.ID] = session
	return copySession(session), nil
}

// Sessions returns all sessions, newest updated first.
func (s *MemoryStore) Sessions(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, copySession(session))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// SessionByID returns one session or ErrNotFound.
func (s *MemoryStore) SessionByID(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(session), nil
}

// TouchSession bumps a session's updated timestamp.
func (s *MemoryStore) TouchSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.UpdatedAt = s.now()
	return nil
}

// CreateMessage appends a message to a session and touches it.
func (s *MemoryStore) CreateMessage(_ context.Context, sessionID, role, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	message := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	s.messages[message.ID] = message
	session.UpdatedAt = message.Timestamp
	session.MessageCount++

	copied := *message
	return &copied, nil
}

// MessagesBySession returns a session's messages, oldest first.
func (s *MemoryStore) MessagesBySession(_ context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]*Message, 0)
	for _, message := range s.messages {
		if message.SessionID == sessionID {
			copied := *message
			messages = append(messages, &copied)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

// CreateReport stores a report, assigning id and generation time.
func (s *MemoryStore) CreateReport(_ context.Context, report Report) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report.ID = uuid.NewString()
	report.GeneratedAt = s.now()
	stored := report
	s.reports[report.ID] = &stored

	copied := report
	return &copied, nil
}

// Reports returns all reports, newest first.
func (s *MemoryStore) Reports(_ context.Context) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]*Report, 0, len(s.reports))
	for _, report := range s.reports {
		copied := *report
		reports = append(reports, &copied)
	}
	sortReportsNewestFirst(reports)
	return reports, nil
}

// ReportByID returns one report or ErrNotFound.
func (s *MemoryStore) ReportByID(_ context.Context, id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *report
	return &copied, nil
}

// ReportsBySession returns a session's reports, newest first.
func (s *MemoryStore) ReportsBySession(_ context.Context, sessionID string) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]*Report, 0)
	for _, report := range s.reports {
		if report.SessionID == sessionID {
			copied := *report
			reports = append(reports, &copied)
		}
	}
	sortReportsNewestFirst(reports)
	return reports, nil
}

func sortReportsNewestFirst(reports []*Report) {
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].GeneratedAt.After(reports[j].GeneratedAt)
	})
}

func copySession(session *Session) *Session {
	copied := *session
	return &copied
}
