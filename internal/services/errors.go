package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDevice        = errors.New("device error")
	ErrConfiguration = errors.New("configuration error")
	ErrStreamEnded   = errors.New("stream ended")
	ErrProgramming   = errors.New("programming error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrProgramming
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsDevice reports whether err is a device-link fault eligible for recovery.
func IsDevice(err error) bool {
	return errors.Is(err, ErrDevice)
}

// ErrorHint returns a short operator-facing hint for a classified error.
func ErrorHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDevice):
		return "check the camera is powered on, connected and not mounted by another program"
	case errors.Is(err, ErrConfiguration):
		return "fix the configuration file or command line flags"
	case errors.Is(err, ErrStreamEnded):
		return "video source exhausted"
	default:
		return "check logs for details"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
