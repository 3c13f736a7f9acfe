// Package trigger decides when continuous motion should fire the camera.
//
// A Machine feeds per-frame motion samples into a fixed-size Window and fires
// once when every slot shows motion, then re-fires only while motion persists
// longer than the retrigger interval.
package trigger
