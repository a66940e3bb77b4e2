package jobs

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	auth "github.com/hirelane/jobboard-auth"
	"github.com/uptrace/bun"
)

var ListActiveJobsSQL = `SELECT * FROM "jobs" AS "j"
WHERE
	"j"."expired" = ?
ORDER BY "j"."posted_on" DESC;`

var ListJobsByPosterSQL = `SELECT * FROM "jobs" AS "j"
WHERE
	"j"."posted_by" = ?
ORDER BY "j"."posted_on" DESC;`

// Repository is the job store
type Repository interface {
	repository.Repository[*Job]

	Create(ctx context.Context, record *Job, criteria ...repository.InsertCriteria) (*Job, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Job, criteria ...repository.InsertCriteria) (*Job, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)
	ListActive(ctx context.Context) ([]*Job, error)
	ListByPoster(ctx context.Context, accountID uuid.UUID) ([]*Job, error)
	Save(ctx context.Context, job *Job) (*Job, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

type jobsRepo struct {
	repository.Repository[*Job]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Repository                  = (*jobsRepo)(nil)
	_ repository.Repository[*Job] = (*jobsRepo)(nil)
)

func NewRepository(db *bun.DB) Repository {
	repo := repository.NewRepository[*Job](db, repository.ModelHandlers[*Job]{
		NewRecord: func() *Job { return &Job{} },
		GetID: func(j *Job) uuid.UUID {
			if j == nil {
				return uuid.Nil
			}
			return j.ID
		},
		SetID: func(j *Job, id uuid.UUID) {
			if j != nil {
				j.ID = id
			}
		},
	})

	return &jobsRepo{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (r *jobsRepo) Create(ctx context.Context, record *Job, criteria ...repository.InsertCriteria) (*Job, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *jobsRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Job, criteria ...repository.InsertCriteria) (*Job, error) {
	r.prepareJobDefaults(record)

	job, err := r.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create job")
	}
	return job, nil
}

func (r *jobsRepo) FindByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := r.Repository.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, auth.WithMetadata(ErrJobNotFound, map[string]any{"id": id.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve job")
	}
	return job, nil
}

func (r *jobsRepo) ListActive(ctx context.Context) ([]*Job, error) {
	out, err := r.Repository.RawTx(ctx, r.db, ListActiveJobsSQL, false)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list jobs")
	}
	if out == nil {
		out = []*Job{}
	}
	return out, nil
}

func (r *jobsRepo) ListByPoster(ctx context.Context, accountID uuid.UUID) ([]*Job, error) {
	out, err := r.Repository.RawTx(ctx, r.db, ListJobsByPosterSQL, accountID.String())
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list jobs")
	}
	return out, nil
}

// Save writes every editable column of job.
// NOTE: the generic update skips zero values, so clearing a salary bound or
// un-expiring a listing goes through an explicit column list.
func (r *jobsRepo) Save(ctx context.Context, job *Job) (*Job, error) {
	job.UpdatedAt = r.now().UTC()

	res, err := r.db.NewUpdate().
		Model(job).
		Column("title", "description", "category", "country", "city", "location",
			"fixed_salary", "salary_from", "salary_to", "expired", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update job")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, auth.WithMetadata(ErrJobNotFound, map[string]any{"id": job.ID.String()})
	}
	return job, nil
}

func (r *jobsRepo) Remove(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*Job)(nil)).
		Where("id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete job")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.WithMetadata(ErrJobNotFound, map[string]any{"id": id.String()})
	}
	return nil
}

func (r *jobsRepo) prepareJobDefaults(job *Job) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	now := r.now().UTC()
	if job.PostedOn.IsZero() {
		job.PostedOn = now
	}
	job.UpdatedAt = now
}
