// Package daemon coordinates the long-running camtrap process.
//
// It wires the event dispatcher, the capture coordinator, the USB hotplug
// monitor, the frame analysis loop and the web server into a single lifecycle
// with flock-based locking to prevent multiple instances. Components start in
// that order and stop in reverse, so the device worker is released only after
// the analysis loop has stopped requesting captures.
//
// Keep orchestration logic here: detection, device control and transport live
// in their own packages.
package daemon
