package jobs

import (
	"github.com/goliatone/go-errors"
	auth "github.com/hirelane/jobboard-auth"
)

const (
	TextCodeJobNotFound = "JOB_NOT_FOUND"
	TextCodeSalary      = "INVALID_SALARY"
)

var (
	ErrJobNotFound = errors.New("Job not found.", errors.CategoryNotFound).
			WithTextCode(TextCodeJobNotFound).
			WithCode(errors.CodeNotFound)

	// ErrNoJobsPosted matches ErrJobNotFound with auth.Matches
	ErrNoJobsPosted = withMessage(ErrJobNotFound, "No jobs found under your account.")

	ErrIncompleteJob = withMessage(auth.ErrValidation, "Please provide full job details.")

	ErrSalaryMissing = withMessage(auth.ErrValidation, "Please either provide a fixed salary or a salary range.").
				WithTextCode(TextCodeSalary)

	ErrSalaryBoth = withMessage(auth.ErrValidation, "Cannot enter both fixed and ranged salary.").
			WithTextCode(TextCodeSalary)

	ErrSalaryRange = withMessage(auth.ErrValidation, "Salary range start must not exceed its end.").
			WithTextCode(TextCodeSalary)

	ErrJobSeeker = withMessage(auth.ErrForbidden, "Job Seekers are not allowed to access this resource.")

	ErrNotOwner = withMessage(auth.ErrForbidden, "Only the employer who posted this job can change it.")
)

func withMessage(base *errors.Error, message string) *errors.Error {
	e := base.Clone()
	e.Message = message
	return e
}
