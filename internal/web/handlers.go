package web

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"camtrap/internal/capture"
	"camtrap/internal/logging"
	"camtrap/internal/motion"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Detection *motion.Snapshot `json:"detection,omitempty"`
	Device    *capture.Status  `json:"device,omitempty"`
}

// LogsResponse is the body of GET /api/logs.
type LogsResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

func (s *Server) handleRecenter(c *fiber.Ctx) error {
	if s.detector == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "detector not running")
	}
	x, errX := strconv.Atoi(strings.TrimSpace(c.Query("x")))
	y, errY := strconv.Atoi(strings.TrimSpace(c.Query("y")))
	if errX != nil || errY != nil {
		return errorJSON(c, fiber.StatusBadRequest, "x and y must be integers")
	}
	r, err := s.detector.Recenter(x, y)
	if err != nil {
		if errors.Is(err, motion.ErrInvalidCoordinates) {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(r)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	var resp StatusResponse
	if s.detector != nil {
		snap := s.detector.Snapshot()
		resp.Detection = &snap
	}
	if s.device != nil {
		st := s.device.Status()
		resp.Device = &st
	}
	return c.JSON(resp)
}

func (s *Server) handleCapture(c *fiber.Ctx) error {
	if s.device == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "capture device not configured")
	}
	if err := s.device.Capture(); err != nil {
		if errors.Is(err, capture.ErrQueueClosed) {
			return errorJSON(c, fiber.StatusServiceUnavailable, "queue closed")
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	s.logger.Info("manual capture requested", logging.String(logging.FieldEventType, "manual_capture"))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
}

func (s *Server) handleLogs(c *fiber.Ctx) error {
	if s.logs == nil {
		return c.JSON(LogsResponse{})
	}
	since, _ := strconv.ParseUint(c.Query("since"), 10, 64)
	limit := c.QueryInt("limit", 200)
	follow := c.QueryBool("follow", false)

	ctx := c.UserContext()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.follow)
		defer cancel()
	}

	var (
		events []logging.LogEvent
		next   uint64
	)
	if since == 0 && !follow {
		events, next = s.logs.Tail(limit)
	} else {
		var err error
		events, next, err = s.logs.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}
	}
	if events == nil {
		events = []logging.LogEvent{}
	}
	return c.JSON(LogsResponse{Events: events, Next: next})
}
