package jobs

import (
	"github.com/gofiber/fiber/v2"
	auth "github.com/hirelane/jobboard-auth"
)

// Controller serves /api/v1/job
type Controller struct {
	Service *Service
	Gateway *auth.RouteAuthenticator
}

// RegisterRoutes mounts the job endpoints on r. Static paths are
// registered before /:id so they are not captured as ids.
func RegisterRoutes(r fiber.Router, svc *Service, gateway *auth.RouteAuthenticator) *Controller {
	c := &Controller{Service: svc, Gateway: gateway}
	protected := gateway.ProtectedRoute()

	r.Get("/", c.List)
	r.Post("/", protected, c.Post)
	r.Post("/post", protected, c.Post)
	r.Get("/my-jobs", protected, c.Mine)
	r.Patch("/:id", protected, c.Update)
	r.Delete("/:id", protected, c.Delete)
	r.Get("/:id", gateway.OptionalRoute(), c.Get)

	return c
}

func (h *Controller) List(c *fiber.Ctx) error {
	jobs, err := h.Service.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"jobs":    jobs,
	})
}

func (h *Controller) Post(c *fiber.Ctx) error {
	payload := new(PostJobRequest)
	if err := c.BodyParser(payload); err != nil {
		return auth.WithSource(auth.ErrValidation, err)
	}

	actor, _ := auth.CurrentAccount(c)
	job, err := h.Service.Post(c.UserContext(), actor, *payload)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Job Posted Successfully!",
		"job":     job,
	})
}

func (h *Controller) Mine(c *fiber.Ctx) error {
	actor, _ := auth.CurrentAccount(c)
	jobs, err := h.Service.Mine(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"myJobs":  jobs,
	})
}

func (h *Controller) Update(c *fiber.Ctx) error {
	payload := new(UpdateJobRequest)
	if err := c.BodyParser(payload); err != nil {
		return auth.WithSource(auth.ErrValidation, err)
	}

	actor, _ := auth.CurrentAccount(c)
	job, err := h.Service.Update(c.UserContext(), actor, c.Params("id"), *payload)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Job Updated Successfully!",
		"job":     job,
	})
}

func (h *Controller) Delete(c *fiber.Ctx) error {
	actor, _ := auth.CurrentAccount(c)
	if err := h.Service.Delete(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Job Deleted Successfully!",
	})
}

func (h *Controller) Get(c *fiber.Ctx) error {
	viewer, _ := auth.CurrentAccount(c)
	job, err := h.Service.Get(c.UserContext(), c.Params("id"), viewer)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"job":     job,
	})
}
