// Package services defines shared helpers consumed by the capture pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that classify failures as
//     device faults, configuration problems, programming errors or the end of
//     a video stream.
//   - Context helpers that stamp device command identifiers for logging.
//
// Vendor clients (gphoto2, object storage, kafka) live in subpackages.
package services
