package capture

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"camtrap/internal/services"
)

// Kind identifies a device command. Lower values are dispatched first.
type Kind int

const (
	KindRelease  Kind = 10
	KindInit     Kind = 20
	KindCapture  Kind = 30
	KindDownload Kind = 40
)

func (k Kind) String() string {
	switch k {
	case KindRelease:
		return "release"
	case KindInit:
		return "init"
	case KindCapture:
		return "capture"
	case KindDownload:
		return "download"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FileLocator addresses a file stored on the camera. Staged is set when the
// capture already transferred the file to a host path.
type FileLocator struct {
	Folder string `json:"folder"`
	Name   string `json:"name"`
	Staged string `json:"staged,omitempty"`
}

// Path returns the camera-side path of the file.
func (l FileLocator) Path() string {
	if l.Folder == "" {
		return l.Name
	}
	return path.Join(l.Folder, l.Name)
}

// IsZero reports whether the locator is empty.
func (l FileLocator) IsZero() bool {
	return strings.TrimSpace(l.Name) == ""
}

// Command is an immutable unit of device work.
type Command struct {
	ID        string
	Kind      Kind
	Target    int         // Init: capture target index
	Autofocus bool        // Capture: drive autofocus first
	File      FileLocator // Download: file to transfer
	Attempt   int
	Submitted time.Time
}

func newCommand(kind Kind) Command {
	return Command{ID: uuid.NewString(), Kind: kind, Submitted: time.Now()}
}

// NewInit opens the camera and applies the capture target.
func NewInit(target int) Command {
	cmd := newCommand(KindInit)
	cmd.Target = target
	return cmd
}

// NewCapture takes a picture.
func NewCapture(autofocus bool) Command {
	cmd := newCommand(KindCapture)
	cmd.Autofocus = autofocus
	return cmd
}

// NewDownload transfers a captured file off the camera.
func NewDownload(file FileLocator) Command {
	cmd := newCommand(KindDownload)
	cmd.File = file
	return cmd
}

// NewRelease closes the camera and stops the worker.
func NewRelease() Command {
	return newCommand(KindRelease)
}

// Retry returns a copy of the command for another attempt.
func (c Command) Retry() Command {
	c.Attempt++
	return c
}

func (c Command) validate() error {
	switch c.Kind {
	case KindRelease, KindCapture:
		return nil
	case KindInit:
		if c.Target < 0 {
			return services.Wrap(services.ErrProgramming, "capture", "validate", fmt.Sprintf("negative capture target %d", c.Target), nil)
		}
		return nil
	case KindDownload:
		if c.File.IsZero() {
			return services.Wrap(services.ErrProgramming, "capture", "validate", "download command without file locator", nil)
		}
		return nil
	default:
		return services.Wrap(services.ErrProgramming, "capture", "validate", "unknown command "+c.Kind.String(), nil)
	}
}
