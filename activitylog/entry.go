// Package activitylog stores auth.ActivityEvent records. Entries are append
// only: the SQL sink writes the activity_logs table and the Redis sink keeps
// a capped list of the most recent entries for dashboards.
package activitylog

import (
	"time"

	auth "github.com/hirelane/jobboard-auth"
	"github.com/hirelane/jobboard-auth/activitymap"
	"github.com/segmentio/ksuid"
	"github.com/uptrace/bun"
)

// Entry is one stored activity record. IDs are KSUIDs so they sort by time.
type Entry struct {
	bun.BaseModel `bun:"table:activity_logs,alias:al"`

	ID         string         `bun:"id,pk" json:"id"`
	ActorID    string         `bun:"actor_id,notnull" json:"actor_id"`
	Verb       string         `bun:"verb,notnull" json:"verb"`
	ObjectType string         `bun:"object_type,notnull" json:"object_type"`
	ObjectID   string         `bun:"object_id,notnull" json:"object_id"`
	Channel    string         `bun:"channel,notnull" json:"channel"`
	Metadata   map[string]any `bun:"metadata,nullzero" json:"metadata,omitempty"`
	OccurredAt time.Time      `bun:"occurred_at,notnull" json:"occurred_at"`
}

// NewEntry normalizes event and assigns it a fresh id
func NewEntry(event auth.ActivityEvent, opts ...activitymap.Option) *Entry {
	n := activitymap.Normalize(event, opts...)

	id, err := ksuid.NewRandomWithTime(n.OccurredAt)
	if err != nil {
		id = ksuid.New()
	}

	return &Entry{
		ID:         id.String(),
		ActorID:    n.ActorID,
		Verb:       n.Verb,
		ObjectType: n.ObjectType,
		ObjectID:   n.ObjectID,
		Channel:    n.Channel,
		Metadata:   n.Metadata,
		OccurredAt: n.OccurredAt,
	}
}
