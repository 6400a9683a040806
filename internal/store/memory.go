package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/drafting/backend/internal/model/audit"
	"github.com/zhouzirui/drafting/backend/internal/model/document"
	"github.com/zhouzirui/drafting/backend/internal/model/user"
)

// MemoryStore keeps everything in process memory. It is used for local runs
// without a database and in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	opts      options
	users     map[int64]user.User
	documents map[int64]document.Document
	events    []audit.Event
	nextUser  int64
	nextDoc   int64
	nextEvent int64
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:      buildOptions(opts),
		users:     make(map[int64]user.User),
		documents: make(map[int64]document.Document),
		events:    make([]audit.Event, 0, 64),
	}
}

// CreateDocument stores doc and event under one lock.
func (s *MemoryStore) CreateDocument(_ context.Context, doc document.Document, event audit.Event) (document.Document, error) {
	s.mu.Lock()
	s.nextDoc++
	doc.ID = s.nextDoc
	doc.CreatedAt = s.opts.timestamp()
	s.documents[doc.ID] = doc

	id := doc.ID
	event.EntityID = &id
	event = s.appendEventLocked(event, doc.CreatedAt)
	s.mu.Unlock()

	s.opts.notify(event)
	return doc, nil
}

// RecordAudit appends a standalone audit event.
func (s *MemoryStore) RecordAudit(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	event = s.appendEventLocked(event, s.opts.timestamp())
	s.mu.Unlock()

	s.opts.notify(event)
	return nil
}

func (s *MemoryStore) appendEventLocked(event audit.Event, at time.Time) audit.Event {
	s.nextEvent++
	event.ID = s.nextEvent
	event.CreatedAt = at
	event.Username = nil
	s.events = append(s.events, event)
	return event
}

// ListAudit returns the newest events first, with usernames.
func (s *MemoryStore) ListAudit(_ context.Context, limit, offset int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.Event, 0, limit)
	for i := len(s.events) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		ev := s.events[i]
		if ev.UserID != nil {
			if u, ok := s.users[*ev.UserID]; ok {
				name := u.Username
				ev.Username = &name
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// CountAudit returns the number of audit events.
func (s *MemoryStore) CountAudit(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

func (s *MemoryStore) filterDocumentsLocked(filter document.ListFilter) []document.Document {
	matched := make([]document.Document, 0)
	for _, doc := range s.documents {
		if doc.UserID != filter.UserID {
			continue
		}
		if filter.DocType != "" && doc.DocType != filter.DocType {
			continue
		}
		matched = append(matched, doc)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}

// ListDocuments returns the user's documents, newest first.
func (s *MemoryStore) ListDocuments(_ context.Context, filter document.ListFilter) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filterDocumentsLocked(filter)
	if filter.Offset >= len(matched) {
		return []document.Document{}, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], nil
}

// CountDocuments counts the user's documents matching filter.
func (s *MemoryStore) CountDocuments(_ context.Context, filter document.ListFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filterDocumentsLocked(filter)), nil
}

// GetDocument returns a document only if it belongs to userID.
func (s *MemoryStore) GetDocument(_ context.Context, id, userID int64) (document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok || doc.UserID != userID {
		return document.Document{}, ErrNotFound
	}
	return doc, nil
}

// CreateUser inserts a user.
func (s *MemoryStore) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(u)
}

func (s *MemoryStore) createUserLocked(u user.User) (user.User, error) {
	if s.existsLocked(u.Username, u.Email) {
		return user.User{}, ErrDuplicate
	}
	s.nextUser++
	u.ID = s.nextUser
	u.CreatedAt = s.opts.timestamp()
	s.users[u.ID] = u
	return u, nil
}

// CreateUserWithAudit inserts a user and its audit event together.
func (s *MemoryStore) CreateUserWithAudit(_ context.Context, u user.User, event audit.Event) (user.User, error) {
	s.mu.Lock()
	u, err := s.createUserLocked(u)
	if err != nil {
		s.mu.Unlock()
		return user.User{}, err
	}
	id := u.ID
	event.UserID = &id
	event = s.appendEventLocked(event, u.CreatedAt)
	s.mu.Unlock()

	s.opts.notify(event)
	return u, nil
}

// FindUserByLogin matches username or email.
func (s *MemoryStore) FindUserByLogin(_ context.Context, login string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email := strings.ToLower(login)
	for _, u := range s.users {
		if u.Username == login || u.Email == email {
			return u, nil
		}
	}
	return user.User{}, ErrNotFound
}

// GetUser returns a user by id.
func (s *MemoryStore) GetUser(_ context.Context, id int64) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, ErrNotFound
	}
	return u, nil
}

// UserExists reports whether username or email is taken.
func (s *MemoryStore) UserExists(_ context.Context, username, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.existsLocked(username, email), nil
}

func (s *MemoryStore) existsLocked(username, email string) bool {
	for _, u := range s.users {
		if u.Username == username || u.Email == email {
			return true
		}
	}
	return false
}

// AdminExists reports whether any ADMIN account exists.
func (s *MemoryStore) AdminExists(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Role == user.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

// Summary returns totals plus documents and events created at or after since.
func (s *MemoryStore) Summary(_ context.Context, since time.Time) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Summary{TotalUsers: len(s.users), TotalDocuments: len(s.documents)}
	for _, doc := range s.documents {
		if !doc.CreatedAt.Before(since) {
			out.DocumentsSince++
		}
	}
	for _, ev := range s.events {
		if !ev.CreatedAt.Before(since) {
			out.EventsSince++
		}
	}
	return out, nil
}
