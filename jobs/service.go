package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	auth "github.com/hirelane/jobboard-auth"
)

const (
	ActivityEventJobPosted  auth.ActivityEventType = "job.posted"
	ActivityEventJobsListed auth.ActivityEventType = "job.listed"
	ActivityEventJobUpdated auth.ActivityEventType = "job.updated"
	ActivityEventJobDeleted auth.ActivityEventType = "job.deleted"
	ActivityEventJobViewed  auth.ActivityEventType = "job.viewed"
)

// Service holds the job rules: who may post, who may change a listing and
// what gets logged.
type Service struct {
	repo         Repository
	logger       auth.Logger
	activitySink auth.ActivitySink
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger auth.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithActivitySink(sink auth.ActivitySink) Option {
	return func(s *Service) {
		if sink != nil {
			s.activitySink = sink
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		logger:       nopLogger{},
		activitySink: auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error { return nil }),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// List returns every listing that has not expired
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.repo.ListActive(ctx)
}

// Post creates a listing for an active Employer or an Admin
func (s *Service) Post(ctx context.Context, actor *auth.Account, req PostJobRequest) (*Job, error) {
	if err := canPost(actor); err != nil {
		return nil, err
	}

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job, err := s.repo.Create(ctx, &Job{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Country:     req.Country,
		City:        req.City,
		Location:    req.Location,
		FixedSalary: req.FixedSalary,
		SalaryFrom:  req.SalaryFrom,
		SalaryTo:    req.SalaryTo,
		PostedBy:    actor.ID,
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEventJobPosted, actor, job.ID.String(), map[string]any{
		"title":    job.Title,
		"category": job.Category,
		"location": job.Location,
	})

	return job, nil
}

// Mine lists the actor's own listings, expired ones included
func (s *Service) Mine(ctx context.Context, actor *auth.Account) ([]*Job, error) {
	if err := canManage(actor); err != nil {
		return nil, err
	}

	jobs, err := s.repo.ListByPoster(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	if len(jobs) == 0 {
		return nil, ErrNoJobsPosted
	}

	s.record(ctx, ActivityEventJobsListed, actor, "", map[string]any{
		"count": len(jobs),
	})

	return jobs, nil
}

// Update patches a listing. Only its poster or an Admin may do so.
func (s *Service) Update(ctx context.Context, actor *auth.Account, id string, req UpdateJobRequest) (*Job, error) {
	job, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	patched, err := req.Apply(*job)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Save(ctx, &patched)
	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEventJobUpdated, actor, updated.ID.String(), map[string]any{
		"fields": req.Fields(),
	})

	return updated, nil
}

// Delete removes a listing. Only its poster or an Admin may do so.
func (s *Service) Delete(ctx context.Context, actor *auth.Account, id string) error {
	job, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.repo.Remove(ctx, job.ID); err != nil {
		return err
	}

	s.record(ctx, ActivityEventJobDeleted, actor, job.ID.String(), map[string]any{
		"title": job.Title,
	})
	return nil
}

// Get is public. viewer may be nil for anonymous requests.
func (s *Service) Get(ctx context.Context, id string, viewer *auth.Account) (*Job, error) {
	jobID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEventJobViewed, viewer, job.ID.String(), map[string]any{
		"title": job.Title,
	})

	return job, nil
}

func (s *Service) owned(ctx context.Context, actor *auth.Account, id string) (*Job, error) {
	if err := canManage(actor); err != nil {
		return nil, err
	}

	jobID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if actor.Role != auth.RoleAdmin && !job.OwnedBy(actor.ID) {
		return nil, auth.WithMetadata(ErrNotOwner, map[string]any{"id": id})
	}
	return job, nil
}

func (s *Service) record(ctx context.Context, eventType auth.ActivityEventType, actor *auth.Account, jobID string, meta map[string]any) {
	event := auth.ActivityEvent{
		EventType: eventType,
		Actor:     auth.ActorFromAccount(actor),
		Metadata:  meta,
	}
	if actor != nil {
		event.AccountID = actor.ID.String()
	} else {
		event.Actor = auth.ActorRef{Type: "anonymous"}
	}
	if jobID != "" {
		event.ObjectType = "job"
		event.ObjectID = jobID
	}

	auth.RecordActivity(ctx, s.activitySink, s.logger, s.now, event)
}

func canPost(actor *auth.Account) error {
	if err := canManage(actor); err != nil {
		return err
	}
	if actor.Role == auth.RoleEmployer && !actor.IsActive {
		return auth.ErrAccountInactive
	}
	return nil
}

func canManage(actor *auth.Account) error {
	if actor == nil {
		return auth.ErrUnauthorized
	}
	if !auth.CanPostJobs(actor.Role) {
		return ErrJobSeeker
	}
	return nil
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, auth.WithMetadata(ErrJobNotFound, map[string]any{"id": id})
	}
	return parsed, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
