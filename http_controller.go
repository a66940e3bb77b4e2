package auth

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// AuthControllerRoutes are relative to the group the controller is mounted on
type AuthControllerRoutes struct {
	Register           string
	Login              string
	Logout             string
	Profile            string
	Unlock             string
	AdminUnlock        string
	Employers          string
	EmployerActivation string
	Password           string
}

// AuthController serves the account endpoints
type AuthController struct {
	Logger    Logger
	Auther    *Auther
	Gateway   *RouteAuthenticator
	Admin     *AccountAdmin
	Passwords *ChangePasswordHandler
	Routes    *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithAuther(auther *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithGateway(gateway *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Gateway = gateway
		return c
	}
}

func WithAccountAdmin(admin *AccountAdmin) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Admin = admin
		return c
	}
}

func WithPasswordHandler(h *ChangePasswordHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Passwords = h
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Register:           "/register",
			Login:              "/login",
			Logout:             "/logout",
			Profile:            "/profile",
			Unlock:             "/unlock/:userId",
			AdminUnlock:        "/admin-unlock/:userId",
			Employers:          "/employers",
			EmployerActivation: "/employer/:id",
			Password:           "/password",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if c.Gateway == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.Admin == nil {
		panic("Missing AccountAdmin in auth controller...")
	}

	if c.Passwords == nil {
		panic("Missing ChangePasswordHandler in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the account endpoints on r, usually /api/v1/user
func RegisterAuthRoutes(r fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)
	protected := controller.Gateway.ProtectedRoute()

	r.Post(controller.Routes.Register, controller.Register)
	r.Post(controller.Routes.Login, controller.Login)
	r.Post(controller.Routes.Logout, protected, controller.Logout)
	r.Get(controller.Routes.Profile, protected, controller.Profile)
	r.Post(controller.Routes.Unlock, protected, controller.Unlock)
	r.Post(controller.Routes.AdminUnlock, protected, RequireRole(RoleAdmin), controller.AdminUnlock)
	r.Get(controller.Routes.Employers, protected, RequireRole(RoleAdmin), controller.Employers)
	r.Patch(controller.Routes.EmployerActivation, protected, RequireRole(RoleAdmin), controller.EmployerActivation)
	r.Put(controller.Routes.Password, protected, controller.ChangePassword)

	return controller
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	payload := new(RegisterAccountMessage)
	if err := c.BodyParser(payload); err != nil {
		return WithSource(ErrValidation, err)
	}

	session, err := a.Auther.Register(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	return a.sendSession(c, fiber.StatusCreated, session, "User Registered!")
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		return WithSource(ErrValidation, err)
	}

	session, err := a.Auther.Login(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	return a.sendSession(c, fiber.StatusOK, session, "User Logged In!")
}

func (a *AuthController) Logout(c *fiber.Ctx) error {
	account, _ := CurrentAccount(c)
	a.Auther.Logout(c.UserContext(), account)
	a.Gateway.ClearSessionCookie(c)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Logged Out Successfully.",
	})
}

// Profile answers 401, not 404, for a token whose account is gone. The
// gateway reloads the account before this handler runs.
func (a *AuthController) Profile(c *fiber.Ctx) error {
	account, ok := CurrentAccount(c)
	if !ok {
		return ErrUnauthorized
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"user":    account,
	})
}

func (a *AuthController) Unlock(c *fiber.Ctx) error {
	actor, _ := CurrentAccount(c)
	if _, err := a.Admin.Unlock(c.UserContext(), actor, c.Params("userId")); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Account has been unlocked successfully.",
	})
}

func (a *AuthController) AdminUnlock(c *fiber.Ctx) error {
	actor, _ := CurrentAccount(c)
	if _, err := a.Admin.AdminUnlock(c.UserContext(), actor, c.Params("userId")); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "User account has been unlocked by admin.",
	})
}

func (a *AuthController) Employers(c *fiber.Ctx) error {
	actor, _ := CurrentAccount(c)
	employers, err := a.Admin.ListEmployers(c.UserContext(), actor)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":   true,
		"employers": employers,
	})
}

// EmployerActivationRequest uses a pointer so a missing field and a JSON
// null are both rejected
type EmployerActivationRequest struct {
	IsActive *bool `json:"is_active"`
}

func (a *AuthController) EmployerActivation(c *fiber.Ctx) error {
	payload := new(EmployerActivationRequest)
	if err := json.Unmarshal(c.Body(), payload); err != nil || payload.IsActive == nil {
		return ErrInvalidStatusValue
	}

	actor, _ := CurrentAccount(c)
	updated, err := a.Admin.SetEmployerActivation(c.UserContext(), actor, c.Params("id"), *payload.IsActive)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"user":    updated,
	})
}

func (a *AuthController) ChangePassword(c *fiber.Ctx) error {
	payload := new(ChangePasswordMessage)
	if err := c.BodyParser(payload); err != nil {
		return WithSource(ErrValidation, err)
	}

	actor, _ := CurrentAccount(c)
	if err := a.Passwords.Execute(c.UserContext(), actor, *payload); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Password updated successfully.",
	})
}

func (a *AuthController) sendSession(c *fiber.Ctx, status int, session *Session, message string) error {
	a.Gateway.SetSessionCookie(c, session.Token, session.ExpiresAt)

	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"user":    session.Account,
		"token":   session.Token,
	})
}

// ErrorResponse is the JSON body sent for every failed request
type ErrorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// SendError writes err as an ErrorResponse. Only rich errors expose their
// message, anything else is reported as an internal error.
func SendError(c *fiber.Ctx, err error) error {
	rich, ok := AsError(err)
	if !ok {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorResponse{
				Message: fe.Message,
				Code:    TextCodeForStatus(fe.Code),
			})
		}
		rich = ErrInternal
	}

	status := HTTPStatus(rich)
	body := ErrorResponse{
		Message: rich.Message,
		Code:    rich.TextCode,
	}
	if body.Code == "" {
		body.Code = TextCodeForStatus(status)
	}

	if fields, ok := rich.Metadata["fields"].(map[string]string); ok {
		body.Errors = fields
	}

	return c.Status(status).JSON(body)
}

// TextCodeForStatus gives plain fiber errors a stable code
func TextCodeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return TextCodeValidation
	case fiber.StatusUnauthorized:
		return TextCodeUnauthorized
	case fiber.StatusForbidden:
		return TextCodeForbidden
	case fiber.StatusInternalServerError:
		return TextCodeInternal
	default:
		return goerrors.HTTPStatusToTextCode(status)
	}
}
