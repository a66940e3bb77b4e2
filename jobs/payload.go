package jobs

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	auth "github.com/hirelane/jobboard-auth"
)

// PostJobRequest is the body of a new listing
type PostJobRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Location    string `json:"location"`
	FixedSalary *int64 `json:"fixedSalary"`
	SalaryFrom  *int64 `json:"salaryFrom"`
	SalaryTo    *int64 `json:"salaryTo"`
}

func (r PostJobRequest) Normalize() PostJobRequest {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.TrimSpace(r.Category)
	r.Country = strings.TrimSpace(r.Country)
	r.City = strings.TrimSpace(r.City)
	r.Location = strings.TrimSpace(r.Location)
	return r
}

// Validate checks presence first, then field lengths, then the salary rule
func (r PostJobRequest) Validate() error {
	if r.Title == "" || r.Description == "" || r.Category == "" ||
		r.Country == "" || r.City == "" || r.Location == "" {
		return ErrIncompleteJob
	}

	err := validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.RuneLength(3, 50)),
		validation.Field(&r.Description, validation.RuneLength(30, 500)),
		validation.Field(&r.Location, validation.RuneLength(5, 0)),
		validation.Field(&r.FixedSalary, validation.Min(int64(0))),
		validation.Field(&r.SalaryFrom, validation.Min(int64(0))),
		validation.Field(&r.SalaryTo, validation.Min(int64(0))),
	)
	if err != nil {
		return fieldErrors(err)
	}

	return checkSalary(r.FixedSalary, r.SalaryFrom, r.SalaryTo)
}

// UpdateJobRequest is a partial update, nil fields are left alone
type UpdateJobRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Country     *string `json:"country"`
	City        *string `json:"city"`
	Location    *string `json:"location"`
	FixedSalary *int64  `json:"fixedSalary"`
	SalaryFrom  *int64  `json:"salaryFrom"`
	SalaryTo    *int64  `json:"salaryTo"`
	Expired     *bool   `json:"expired"`
}

// Apply merges the patch into a copy of job and validates the result
func (r UpdateJobRequest) Apply(job Job) (Job, error) {
	setString(&job.Title, r.Title)
	setString(&job.Description, r.Description)
	setString(&job.Category, r.Category)
	setString(&job.Country, r.Country)
	setString(&job.City, r.City)
	setString(&job.Location, r.Location)

	if r.FixedSalary != nil {
		job.FixedSalary = r.FixedSalary
		job.SalaryFrom, job.SalaryTo = nil, nil
	}
	if r.SalaryFrom != nil || r.SalaryTo != nil {
		if r.FixedSalary == nil {
			job.FixedSalary = nil
		}
		if r.SalaryFrom != nil {
			job.SalaryFrom = r.SalaryFrom
		}
		if r.SalaryTo != nil {
			job.SalaryTo = r.SalaryTo
		}
	}
	if r.Expired != nil {
		job.Expired = *r.Expired
	}

	merged := PostJobRequest{
		Title:       job.Title,
		Description: job.Description,
		Category:    job.Category,
		Country:     job.Country,
		City:        job.City,
		Location:    job.Location,
		FixedSalary: job.FixedSalary,
		SalaryFrom:  job.SalaryFrom,
		SalaryTo:    job.SalaryTo,
	}
	if err := merged.Validate(); err != nil {
		return job, err
	}
	return job, nil
}

// Fields lists the keys present in the patch, for the activity log
func (r UpdateJobRequest) Fields() []string {
	var out []string
	add := func(name string, set bool) {
		if set {
			out = append(out, name)
		}
	}
	add("title", r.Title != nil)
	add("description", r.Description != nil)
	add("category", r.Category != nil)
	add("country", r.Country != nil)
	add("city", r.City != nil)
	add("location", r.Location != nil)
	add("fixedSalary", r.FixedSalary != nil)
	add("salaryFrom", r.SalaryFrom != nil)
	add("salaryTo", r.SalaryTo != nil)
	add("expired", r.Expired != nil)
	return out
}

func checkSalary(fixed, from, to *int64) error {
	hasRange := from != nil && to != nil
	switch {
	case fixed == nil && !hasRange:
		return ErrSalaryMissing
	case fixed != nil && (from != nil || to != nil):
		return ErrSalaryBoth
	case hasRange && *from > *to:
		return ErrSalaryRange
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func fieldErrors(err error) error {
	errs, ok := err.(validation.Errors)
	if !ok {
		return auth.WithSource(auth.ErrValidation, err)
	}

	fields := make(map[string]string, len(errs))
	for field, ferr := range errs {
		if ferr != nil {
			fields[field] = ferr.Error()
		}
	}

	out := auth.WithMetadata(auth.ErrValidation, map[string]any{"fields": fields})
	out.Message = errs.Error()
	return out
}
