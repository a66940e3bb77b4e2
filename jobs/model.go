// Package jobs is the job listing CRUD. Posting is limited to active
// employers and admins; every mutation and detail view is appended to the
// activity log.
package jobs

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Job is a single listing. Salary is either FixedSalary or the
// SalaryFrom..SalaryTo range, never both.
type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description,notnull" json:"description"`
	Category    string    `bun:"category,notnull" json:"category"`
	Country     string    `bun:"country,notnull" json:"country"`
	City        string    `bun:"city,notnull" json:"city"`
	Location    string    `bun:"location,notnull" json:"location"`
	FixedSalary *int64    `bun:"fixed_salary" json:"fixedSalary,omitempty"`
	SalaryFrom  *int64    `bun:"salary_from" json:"salaryFrom,omitempty"`
	SalaryTo    *int64    `bun:"salary_to" json:"salaryTo,omitempty"`
	Expired     bool      `bun:"expired,notnull" json:"expired"`
	PostedOn    time.Time `bun:"posted_on,notnull" json:"jobPostedOn"`
	PostedBy    uuid.UUID `bun:"posted_by,notnull,type:uuid" json:"postedBy"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// OwnedBy reports whether accountID posted the job
func (j *Job) OwnedBy(accountID uuid.UUID) bool {
	return j != nil && j.PostedBy == accountID
}
