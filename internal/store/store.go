// Package store persists users, documents and audit events, either in a SQL
// database (postgres or sqlite) or in process memory.
package store

import (
	"errors"
	"time"

	"github.com/zhouzirui/drafting/backend/internal/model/audit"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Summary holds the admin dashboard counters.
type Summary struct {
	TotalUsers     int `json:"total_users"`
	TotalDocuments int `json:"total_documents"`
	DocumentsSince int `json:"documents_last_24h"`
	EventsSince    int `json:"recent_events_count"`
}

// AuditObserver is called with every committed audit event.
type AuditObserver func(audit.Event)

type options struct {
	observers []AuditObserver
	now       func() time.Time
}

// Option configures a store.
type Option func(*options)

// WithAuditObserver registers fn for committed audit events.
func WithAuditObserver(fn AuditObserver) Option {
	return func(o *options) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) timestamp() time.Time {
	return o.now().UTC()
}

func (o options) notify(events ...audit.Event) {
	for _, ev := range events {
		for _, fn := range o.observers {
			fn(ev)
		}
	}
}

// ClampPage bounds list pagination to 1..100 with a default of 50.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
