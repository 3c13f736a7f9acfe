package capture

import "context"

// Driver opens connections to the physical camera.
type Driver interface {
	Open(ctx context.Context, target int) (Handle, error)
}

// Handle is a live camera connection. Operations fail with an error marked
// services.ErrDevice when the device link misbehaves.
type Handle interface {
	Capture(ctx context.Context, autofocus bool) (FileLocator, error)
	Download(ctx context.Context, file FileLocator, destDir string) (string, error)
	Close() error
}
