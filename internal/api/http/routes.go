package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/i474232898/weather-ai/internal/store"
	"github.com/i474232898/weather-ai/internal/trigger"
)

var validate = validator.New()

// RunService starts runs and reports on them.
type RunService interface {
	Dispatch(ctx context.Context) (uuid.UUID, error)
	Get(id uuid.UUID) (store.Run, error)
	Latest() (store.Run, error)
	List(from, to time.Time) []store.Run
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, runs RunService) {
	v1 := app.Group("/api/v1")

	v1.Post("/runs", func(c *fiber.Ctx) error {
		id, err := runs.Dispatch(c.UserContext())
		if err != nil {
			if errors.Is(err, trigger.ErrRunInFlight) {
				return fiber.NewError(fiber.StatusConflict, "a run is already in progress")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to start run")
		}

		c.Location("/api/v1/runs/" + id.String())
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"id":    id,
			"state": store.StateRunning,
		})
	})

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		run, err := runs.Latest()
		if err != nil {
			return lookupError(err)
		}
		return c.JSON(run)
	})

	v1.Get("/runs/:id", func(c *fiber.Ctx) error {
		req := runQuery{ID: c.Params("id")}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "run id must be a UUID")
		}

		run, err := runs.Get(uuid.MustParse(req.ID))
		if err != nil {
			return lookupError(err)
		}
		return c.JSON(run)
	})

	v1.Get("/runs", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(fiber.Map{
			"from": req.From,
			"to":   req.To,
			"runs": runs.List(req.From, req.To),
		})
	})
}

func lookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "run not found")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to load run")
}

type runQuery struct {
	ID string `validate:"required,uuid"`
}

// historyQuery holds the optional bounds of the run listing.
type historyQuery struct {
	From time.Time
	To   time.Time `validate:"omitempty,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	if s := c.Query("from"); s != "" {
		from, err := parseTime(s)
		if err != nil {
			return err
		}
		h.From = from
	}
	if s := c.Query("to"); s != "" {
		to, err := parseTime(s)
		if err != nil {
			return err
		}
		h.To = to
	}
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
