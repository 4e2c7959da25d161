package trip

import (
	"errors"

	"boston-tracker/internal/engine"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var req StartRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.CourierID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "courier_id required")
		}
		t, err := svc.StartTrip(c.Context(), req)
		if errors.Is(err, ErrCourierBusy) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	})

	r.Post("/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		var req StopRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		summary, err := svc.StopTrip(c.Context(), c.Params("id"), req.InitiatedBy)
		if errors.Is(err, ErrTripNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(summary)
	})

	r.Post("/:id/samples", authMiddleware, func(c *fiber.Ctx) error {
		var raw engine.RawSample
		if err := c.BodyParser(&raw); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.IngestSample(c.Context(), c.Params("id"), raw)
		switch {
		case errors.Is(err, ErrTripNotFound):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case errors.Is(err, ErrTripCompleted):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusAccepted).JSON(res)
	})

	r.Post("/:id/metrics", authMiddleware, func(c *fiber.Ctx) error {
		var snap engine.Snapshot
		if err := c.BodyParser(&snap); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		err := svc.ApplySnapshot(c.Context(), c.Params("id"), snap)
		switch {
		case errors.Is(err, ErrTripNotFound):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case errors.Is(err, ErrTripCompleted):
			// 409 tells the courier app the trip was stopped server-side
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/:id/inactivity-alert", authMiddleware, func(c *fiber.Ctx) error {
		var alert engine.Alert
		if err := c.BodyParser(&alert); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		alert, err := svc.RecordInactivityAlert(c.Context(), c.Params("id"), alert)
		switch {
		case errors.Is(err, ErrTripNotFound):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case errors.Is(err, ErrTripCompleted):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(alert)
	})

	r.Get("/active", authMiddleware, func(c *fiber.Ctx) error {
		trips, err := svc.ActiveTrips(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if trips == nil {
			trips = []Trip{}
		}
		return c.JSON(trips)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		t, err := svc.GetTrip(c.Context(), c.Params("id"))
		if errors.Is(err, ErrTripNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(t)
	})

	r.Get("/:id/history", authMiddleware, func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit")
		history, err := svc.History(c.Context(), c.Params("id"), limit)
		if errors.Is(err, ErrTripNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if history == nil {
			history = []engine.RawSample{}
		}
		return c.JSON(history)
	})

	r.Get("/:id/recompute", authMiddleware, func(c *fiber.Ctx) error {
		res, err := svc.RecomputeDistance(c.Context(), c.Params("id"))
		if errors.Is(err, ErrTripNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(res)
	})
}
