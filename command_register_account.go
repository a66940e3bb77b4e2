package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

type RegisterAccountMessage struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Normalize trims every field and lowercases the email
func (e RegisterAccountMessage) Normalize() RegisterAccountMessage {
	return RegisterAccountMessage{
		Name:     strings.TrimSpace(e.Name),
		Email:    NormalizeEmail(e.Email),
		Phone:    strings.TrimSpace(e.Phone),
		Password: e.Password,
		Role:     strings.TrimSpace(e.Role),
	}
}

// Validate will validate the payload
func (e RegisterAccountMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required, validation.RuneLength(3, 30)),
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Phone, validation.Required, validation.Match(phonePattern)),
		validation.Field(&e.Password, validation.Required),
		validation.Field(&e.Role, validation.Required, validation.In(SelfRegistrableRoles...)),
	)
	return validationError(err)
}

// RegisterAccountHandler runs the registration pipeline. Each step is an
// explicit call below, nothing runs implicitly on save.
type RegisterAccountHandler struct {
	repo         RepositoryManager
	hasher       PasswordHasher
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

func NewRegisterAccountHandler(repo RepositoryManager, hasher PasswordHasher) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:         repo,
		hasher:       hasher,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) WithActivitySink(sink ActivitySink) *RegisterAccountHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryInternal, "context cancelled during account registration")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) (*Account, error) {
	event = event.Normalize()

	if err := event.Validate(); err != nil {
		return nil, err
	}

	if err := ValidatePasswordLength(event.Password); err != nil {
		return nil, err
	}

	// bcrypt runs outside the transaction so the write lock is held briefly
	hash, err := h.hasher.Hash(event.Password)
	if err != nil {
		return nil, err
	}

	var account *Account
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := h.repo.Accounts().EmailExistsTx(ctx, tx, event.Email)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateEmail
		}

		record := &Account{
			Name:         event.Name,
			Email:        event.Email,
			Phone:        event.Phone,
			Role:         event.Role,
			IsActive:     defaultActivation(event.Role),
			PasswordHash: hash,
		}

		// the unique email_index still arbitrates concurrent registrations
		account, err = h.repo.Accounts().CreateTx(ctx, tx, record)
		return err
	})

	if err != nil {
		if rich, ok := AsError(err); ok {
			return nil, rich
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	RecordActivity(ctx, h.activitySink, h.logger, h.now, ActivityEvent{
		EventType: ActivityEventRegisterSuccess,
		Actor:     ActorFromAccount(account),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"role":      account.Role,
			"is_active": account.IsActive,
		},
	})

	return account, nil
}

// defaultActivation leaves employers pending until an admin activates them
func defaultActivation(role string) bool {
	return role != RoleEmployer
}

const blankMessage = "cannot be blank"

// validationError converts ozzo errors into ErrValidation. A blank required
// field yields the generic "fill in all fields" message.
func validationError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return WithSource(ErrValidation, err)
	}

	fields := make(map[string]string, len(fieldErrs))
	blank := false
	for field, ferr := range fieldErrs {
		if ferr == nil {
			continue
		}
		fields[field] = ferr.Error()
		if ferr.Error() == blankMessage {
			blank = true
		}
	}

	out := WithMetadata(ErrValidation, map[string]any{"fields": fields})
	if !blank {
		out.Message = fieldErrs.Error()
	}
	return out
}
