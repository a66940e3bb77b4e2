package activitylog

import (
	"context"
	"fmt"

	auth "github.com/hirelane/jobboard-auth"
	"github.com/hirelane/jobboard-auth/activitymap"
	"github.com/uptrace/bun"
)

// SQLSink appends entries to the activity_logs table
type SQLSink struct {
	db   bun.IDB
	opts []activitymap.Option
}

var _ auth.ActivitySink = (*SQLSink)(nil)

func NewSQLSink(db bun.IDB, opts ...activitymap.Option) *SQLSink {
	return &SQLSink{db: db, opts: opts}
}

func (s *SQLSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	entry := NewEntry(event, s.opts...)
	if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("activitylog: insert %s: %w", entry.Verb, err)
	}
	return nil
}

// Query narrows a List call. Zero fields match everything.
type Query struct {
	ActorID    string
	ObjectType string
	ObjectID   string
	Verb       string
	Limit      int
}

// List returns matching entries, newest first
func (s *SQLSink) List(ctx context.Context, q Query) ([]Entry, error) {
	var entries []Entry

	sel := s.db.NewSelect().Model(&entries)
	if q.ActorID != "" {
		sel = sel.Where("?TableAlias.actor_id = ?", q.ActorID)
	}
	if q.ObjectType != "" {
		sel = sel.Where("?TableAlias.object_type = ?", q.ObjectType)
	}
	if q.ObjectID != "" {
		sel = sel.Where("?TableAlias.object_id = ?", q.ObjectID)
	}
	if q.Verb != "" {
		sel = sel.Where("?TableAlias.verb = ?", q.Verb)
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}

	if err := sel.Order("id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("activitylog: list: %w", err)
	}
	return entries, nil
}
