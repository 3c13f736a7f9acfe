// Package motion runs the frame analysis loop: it pulls frames at a bounded
// rate, diffs the detection region against a reference frame, feeds motion
// samples to the trigger machine and publishes preview and status feeds.
//
// Pixel work is delegated to a Vision implementation (see internal/vision).
package motion
