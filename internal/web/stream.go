package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"camtrap/internal/feed"
	"camtrap/internal/logging"
)

const mjpegBoundary = "frame"

// nextOrWake waits up to wake for a value newer than after. A wake timeout
// returns fresh false with a nil error.
func nextOrWake[T any](ctx context.Context, wake time.Duration, next func(context.Context, uint64) (T, uint64, error), after uint64) (T, uint64, bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, wake)
	defer cancel()
	v, version, err := next(waitCtx, after)
	switch {
	case err == nil:
		return v, version, true, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return v, after, false, nil
	default:
		return v, version, false, err
	}
}

func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	if s.detector == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "detector not running")
	}
	slot := s.detector.Preview()
	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		frame, version, ok := slot.Latest()
		if ok {
			if err := writeMJPEGPart(w, frame); err != nil {
				return
			}
		}
		for {
			next, nextVersion, fresh, err := nextOrWake(s.ctx, s.keep, slot.Next, version)
			if err != nil {
				return
			}
			if fresh {
				version = nextVersion
				frame, ok = next, true
			}
			// an idle stream repeats the last frame
			if err := writeMJPEGKeepAlive(w, frame, ok); err != nil {
				s.logger.Debug("preview client disconnected", logging.Error(err))
				return
			}
		}
	})
	return nil
}

func writeMJPEGKeepAlive(w *bufio.Writer, frame []byte, ok bool) error {
	if ok {
		return writeMJPEGPart(w, frame)
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

func writeMJPEGPart(w *bufio.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", mjpegBoundary); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) handleStatusText(c *fiber.Ctx) error {
	if s.detector == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "detector not running")
	}
	board := s.detector.Status()
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		status, version := board.Latest()
		if err := writeStatusEvent(w, status); err != nil {
			return
		}
		for {
			next, nextVersion, fresh, err := nextOrWake(s.ctx, s.keep, board.Next, version)
			if err != nil {
				return
			}
			if fresh {
				version = nextVersion
				err = writeStatusEvent(w, next)
			} else {
				err = writeSSEComment(w)
			}
			if err != nil {
				s.logger.Debug("status client disconnected", logging.Error(err))
				return
			}
		}
	})
	return nil
}

func writeSSEComment(w *bufio.Writer) error {
	if _, err := w.WriteString(":\n\n"); err != nil {
		return err
	}
	return w.Flush()
}

func writeStatusEvent(w *bufio.Writer, status feed.Status) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", status.Line()); err != nil {
		return err
	}
	return w.Flush()
}

// watchClose cancels the returned context when the peer goes away.
func (s *Server) watchClose(conn *websocket.Conn) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(s.ctx)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return ctx, cancel
}

func (s *Server) handlePreviewWS(conn *websocket.Conn) {
	if s.detector == nil {
		_ = conn.Close()
		return
	}
	ctx, cancel := s.watchClose(conn)
	defer cancel()
	for frame := range s.detector.Preview().Stream(ctx) {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
	}
}

func (s *Server) handleStatusWS(conn *websocket.Conn) {
	if s.detector == nil {
		_ = conn.Close()
		return
	}
	ctx, cancel := s.watchClose(conn)
	defer cancel()
	board := s.detector.Status()
	if err := conn.WriteJSON(board.Current()); err != nil {
		return
	}
	for status := range board.Changes(ctx) {
		if err := conn.WriteJSON(status); err != nil {
			return
		}
	}
}
