// Package capture serializes access to the single physical camera.
//
// Producers submit Commands to a Coordinator. Commands land in a priority
// Queue (Release, then Init, then Capture, then Download, FIFO within a kind)
// and are executed one at a time by a Worker that exclusively owns the open
// camera Handle. Device faults are recovered by closing the handle, waiting a
// settle interval, re-initializing, and retrying the failed command.
package capture
