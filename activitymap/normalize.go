package activitymap

import (
	"strings"
	"time"

	auth "github.com/hirelane/jobboard-auth"
)

const (
	// MetadataKeyActorType stores the actor type taken from auth.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromState stores the lockout state before a transition.
	MetadataKeyFromState = "from_state"
	// MetadataKeyToState stores the lockout state after a transition.
	MetadataKeyToState = "to_state"
	// MetadataKeyAccountID keeps the subject account when the object is something else.
	MetadataKeyAccountID = "account_id"
)

const (
	defaultObjectType = "account"
	defaultActorID    = "system"
)

// Normalized is the storage shape of an activity log entry.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

// Normalize converts an auth.ActivityEvent into a Normalized record.
//
// The object defaults to the subject account unless the event names its own
// object. The channel defaults to the first segment of the verb, so
// "auth.login.success" lands on "auth" and "job.posted" on "job".
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	verb := string(event.EventType)

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(options.actorFallback),
	)

	objectType := strings.TrimSpace(event.ObjectType)
	objectID := strings.TrimSpace(event.ObjectID)
	if objectType == "" {
		objectType = options.objectType
		if objectID == "" {
			objectID = strings.TrimSpace(event.AccountID)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       verb,
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    firstNonEmpty(options.channel, channelOf(verb)),
		Metadata:   normalizeMetadata(event, objectType),
		OccurredAt: occurredAt.UTC(),
	}
}

// WithChannel pins the channel instead of deriving it from the verb.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type used when the event has none.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if v := strings.TrimSpace(objectType); v != "" {
			opts.objectType = v
		}
	}
}

// WithActorFallback sets the actor id used when the event actor is anonymous.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the clock used for events without an OccurredAt.
func WithClock(clock func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if clock != nil {
			opts.now = clock
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func channelOf(verb string) string {
	if i := strings.IndexByte(verb, '.'); i > 0 {
		return verb[:i]
	}
	return verb
}

func normalizeMetadata(event auth.ActivityEvent, objectType string) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			set(MetadataKeyActorType, actorType)
		}
	}

	if event.FromState != "" {
		set(MetadataKeyFromState, string(event.FromState))
	}

	if event.ToState != "" {
		set(MetadataKeyToState, string(event.ToState))
	}

	if objectType != defaultObjectType && event.AccountID != "" {
		set(MetadataKeyAccountID, event.AccountID)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
